package steel

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/bearlytools/steel/errors"
)

type paramKind uint8

const (
	paramNone paramKind = iota
	paramLit
	paramRef
	paramFunc
	paramRemainder
	paramOp
)

// Param is a field parameter that may depend on an instance. It is a literal value, a
// reference to another field, a function of the instance, or arithmetic on other Params.
type Param struct {
	kind paramKind
	lit  any
	path string
	fn   func(in *Instance) (int64, error)
	op   byte
	l, r *Param
}

// Lit returns a Param that always has the value v.
func Lit(v any) Param {
	return Param{kind: paramLit, lit: v}
}

// Ref returns a Param that has the value of another field on the same instance.
// "name" refers to a sibling declared earlier. A leading "../" moves to the parent
// instance and may repeat. Dots walk into sub-structures, as in "header.width".
func Ref(path string) Param {
	return Param{kind: paramRef, path: path}
}

// Func returns a Param computed by fn every time it is needed.
func Func(fn func(in *Instance) (int64, error)) Param {
	return Param{kind: paramFunc, fn: fn}
}

// Remainder is a size that covers everything left in the input.
var Remainder = Param{kind: paramRemainder}

func arith(op byte, a, b Param) Param {
	return Param{kind: paramOp, op: op, l: &a, r: &b}
}

// Add returns a Param with the value a + b.
func Add(a, b Param) Param { return arith('+', a, b) }

// Sub returns a Param with the value a - b.
func Sub(a, b Param) Param { return arith('-', a, b) }

// Mul returns a Param with the value a * b.
func Mul(a, b Param) Param { return arith('*', a, b) }

// Div returns a Param with the value a / b, rounded toward zero.
func Div(a, b Param) Param { return arith('/', a, b) }

// String implements fmt.Stringer.
func (p Param) String() string {
	switch p.kind {
	case paramLit:
		return fmt.Sprint(p.lit)
	case paramRef:
		return "@" + p.path
	case paramFunc:
		return "func"
	case paramRemainder:
		return "remainder"
	case paramOp:
		return fmt.Sprintf("(%s %c %s)", p.l, p.op, p.r)
	}
	return "none"
}

func (p Param) isRemainder() bool {
	return p.kind == paramRemainder
}

func (p Param) literal() (int64, bool) {
	if p.kind != paramLit {
		return 0, false
	}
	n, err := toInt64(p.lit)
	return n, err == nil
}

// sibling returns the field name if p is a plain reference to a sibling field.
func (p Param) sibling() (string, bool) {
	if p.kind != paramRef || strings.HasPrefix(p.path, "../") || strings.Contains(p.path, ".") {
		return "", false
	}
	return p.path, true
}

// refs returns the sibling names p depends on.
func (p Param) refs() []string {
	switch p.kind {
	case paramRef:
		if name, ok := p.sibling(); ok {
			return []string{name}
		}
	case paramOp:
		return append(p.l.refs(), p.r.refs()...)
	}
	return nil
}

func (p Param) check() error {
	switch p.kind {
	case paramNone:
		return fmt.Errorf("parameter is not set")
	case paramRef:
		if p.path == "" {
			return fmt.Errorf("reference has no field name")
		}
	case paramFunc:
		if p.fn == nil {
			return fmt.Errorf("function parameter is nil")
		}
	case paramOp:
		if p.l.isRemainder() || p.r.isRemainder() {
			return fmt.Errorf("Remainder cannot be used in arithmetic")
		}
		if err := p.l.check(); err != nil {
			return err
		}
		return p.r.check()
	}
	return nil
}

// value resolves p against in.
func (p Param) value(in *Instance) (any, error) {
	switch p.kind {
	case paramLit:
		return p.lit, nil
	case paramRef:
		if in == nil {
			return nil, fmt.Errorf("%w: cannot resolve %s without an instance", errors.ErrAbsent, p)
		}
		return in.lookup(p.path)
	case paramFunc:
		return p.fn(in)
	case paramOp:
		return p.int(in)
	case paramRemainder:
		return nil, fmt.Errorf("%w: Remainder has no value", errors.ErrSchema)
	}
	return nil, fmt.Errorf("%w: parameter is not set", errors.ErrSchema)
}

// int resolves p against in as an integer.
func (p Param) int(in *Instance) (int64, error) {
	if p.kind != paramOp {
		v, err := p.value(in)
		if err != nil {
			return 0, err
		}
		n, err := toInt64(v)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", p, err)
		}
		return n, nil
	}

	a, err := p.l.int(in)
	if err != nil {
		return 0, err
	}
	b, err := p.r.int(in)
	if err != nil {
		return 0, err
	}
	switch p.op {
	case '+':
		return a + b, nil
	case '-':
		return a - b, nil
	case '*':
		return a * b, nil
	case '/':
		if b == 0 {
			return 0, errors.Value("%s divides by zero", p)
		}
		return a / b, nil
	}
	return 0, fmt.Errorf("unknown operator %c", p.op)
}

// toInt64 converts any Go integer, or a bool, to int64.
func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return uintToInt64(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToInt64(x)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case Fixed:
		return x.Units, nil
	}
	return 0, errors.Value("%v (%T) is not an integer", v, v)
}

func uintToInt64(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, errors.Value("%d is too large", u)
	}
	return int64(u), nil
}

// Comparator compares the two sides of a Condition.
type Comparator uint8

const (
	Equal Comparator = iota
	NotEqual
	Less
	LessEqual
	Greater
	GreaterEqual
)

var comparatorNames = []string{"==", "!=", "<", "<=", ">", ">="}

// String implements fmt.Stringer.
func (c Comparator) String() string {
	if int(c) < len(comparatorNames) {
		return comparatorNames[c]
	}
	return fmt.Sprintf("Comparator(%d)", c)
}

// ParseComparator returns the Comparator written as s, such as "==" or ">=".
func ParseComparator(s string) (Comparator, bool) {
	for i, n := range comparatorNames {
		if n == s {
			return Comparator(i), true
		}
	}
	return 0, false
}

// Condition is a comparison between two values, either of which may be a field of the instance.
type Condition struct {
	left, right Param
	cmp         Comparator
}

// When returns a Condition. Each side is either a Param, usually a Ref, or a literal value.
func When(left any, cmp Comparator, right any) Condition {
	return Condition{left: asParam(left), right: asParam(right), cmp: cmp}
}

// String implements fmt.Stringer.
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.left, c.cmp, c.right)
}

func asParam(v any) Param {
	if p, ok := v.(Param); ok {
		return p
	}
	return Lit(v)
}

func (c Condition) refs() []string {
	return append(c.left.refs(), c.right.refs()...)
}

func (c Condition) check() error {
	if int(c.cmp) >= len(comparatorNames) {
		return fmt.Errorf("unknown comparator %d", c.cmp)
	}
	if err := c.left.check(); err != nil {
		return err
	}
	if c.left.isRemainder() || c.right.isRemainder() {
		return fmt.Errorf("Remainder cannot be compared")
	}
	return c.right.check()
}

// eval resolves both sides against in and compares them.
func (c Condition) eval(in *Instance) (bool, error) {
	a, err := c.left.value(in)
	if err != nil {
		return false, err
	}
	b, err := c.right.value(in)
	if err != nil {
		return false, err
	}
	order, comparable, err := compareValues(a, b)
	if err != nil {
		return false, err
	}
	switch c.cmp {
	case Equal:
		return order == 0, nil
	case NotEqual:
		return order != 0, nil
	}
	if !comparable {
		return false, errors.Value("%v and %v cannot be ordered", a, b)
	}
	switch c.cmp {
	case Less:
		return order < 0, nil
	case LessEqual:
		return order <= 0, nil
	case Greater:
		return order > 0, nil
	case GreaterEqual:
		return order >= 0, nil
	}
	return false, fmt.Errorf("unknown comparator %d", c.cmp)
}

// compareValues orders a and b. If the values have no order, comparable is false and
// order is only meaningful as equal (0) or not equal (1).
func compareValues(a, b any) (order int, comparable bool, err error) {
	if x, err := toInt64(a); err == nil {
		if y, err := toInt64(b); err == nil {
			return cmp.Compare(x, y), true, nil
		}
	}
	switch x := a.(type) {
	case string:
		switch y := b.(type) {
		case string:
			return cmp.Compare(x, y), true, nil
		case []byte:
			return cmp.Compare(x, string(y)), true, nil
		}
	case []byte:
		switch y := b.(type) {
		case []byte:
			return bytes.Compare(x, y), true, nil
		case string:
			return bytes.Compare(x, []byte(y)), true, nil
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y), true, nil
		}
	}
	if reflect.DeepEqual(a, b) {
		return 0, false, nil
	}
	return 1, false, nil
}
