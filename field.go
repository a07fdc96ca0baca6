package steel

import (
	"fmt"
	"slices"

	"github.com/bearlytools/steel/errors"
)

// Field describes how one attribute of a structure is stored. Fields are created with the
// constructors in this package (Integer, String, List, ...) and are immutable once a Schema is
// built, so one Field may be used by any number of instances at the same time.
type Field interface {
	// Kind returns the name of the field kind, such as "Integer".
	Kind() string
	// Label returns the human readable name set with the Label option.
	Label() string

	base() *fieldBase
	clone() Field
	decode(b binding, raw []byte) (any, error)
	encode(b binding, v any) ([]byte, error)
}

// binding is the instance and slot a Field is being used for. Fields keep no per instance state,
// everything they need to know about an instance comes through here.
type binding struct {
	in   *Instance
	slot int
}

func (b binding) name() string {
	if b.in == nil {
		return ""
	}
	return b.in.schema.slots[b.slot].name
}

// reader is implemented by fields that work out how much to read themselves. They return both the
// raw bytes and the decoded value.
type reader interface {
	read(b binding, src source) (raw []byte, v any, err error)
}

// validator is implemented by fields with checks beyond being encodable.
type validator interface {
	validate(b binding, v any) error
}

// attacher is implemented by fields that need to look at the rest of the schema once it is built.
type attacher interface {
	attach(s *Schema, slot int) error
}

// deriver is implemented by fields that compute their value when none was set.
type deriver interface {
	derive(b binding) (any, error)
}

// measurer is implemented by fields whose size parameter counts something other than bytes.
type measurer interface {
	measure(v any, raw []byte) int64
}

// canonicalizer is implemented by fields that accept several Go types for one value and
// store a single one.
type canonicalizer interface {
	canonical(v any) (any, error)
}

// wrapper is implemented by fields that hold another field.
type wrapper interface {
	inner() Field
	withInner(f Field) Field
}

// fieldBase holds what every field kind shares.
type fieldBase struct {
	kind  string
	rules rules
	o     options
}

func newBase(kind string, r rules, opts []Option) fieldBase {
	fb := fieldBase{kind: kind, rules: r}
	fb.o.apply(opts)
	return fb
}

// Kind implements Field.Kind.
func (f *fieldBase) Kind() string {
	return f.kind
}

// Label implements Field.Label.
func (f *fieldBase) Label() string {
	return f.o.label
}

func (f *fieldBase) base() *fieldBase {
	return f
}

// prepare applies schema defaults to f and checks its options. f must be a fresh clone.
func prepare(f Field, defaults *options) (Field, error) {
	fb := f.base()
	fb.o.inherit(defaults, fb.rules)
	if err := fb.o.check(fb.kind, fb.rules); err != nil {
		return nil, err
	}
	if w, ok := f.(wrapper); ok {
		in, err := prepare(w.inner().clone(), defaults)
		if err != nil {
			return nil, fmt.Errorf("%s element: %w", fb.kind, err)
		}
		f = w.withInner(in)
	}
	if c, ok := f.(interface{ check() error }); ok {
		if err := c.check(); err != nil {
			return nil, fmt.Errorf("%s: %w", fb.kind, err)
		}
	}
	return f, nil
}

// size resolves the size parameter. A Remainder size returns -1.
func (f *fieldBase) size(b binding) (int64, error) {
	if !f.o.has(optSize) {
		return 0, fmt.Errorf("%w: %s has no size", errors.ErrSchema, f.kind)
	}
	if f.o.size.isRemainder() {
		return -1, nil
	}
	n, err := f.o.size.int(b.in)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.Value("size resolved to %d", n)
	}
	return n, nil
}

// tracked reports whether the size comes straight from a sibling that is kept up to date by
// writes to this field. Such fields are encoded at their natural size.
func (f *fieldBase) tracked() bool {
	if !f.o.has(optSize) {
		return false
	}
	_, ok := f.o.size.sibling()
	return ok
}

// checkChoices returns an error if choices are set and v is not one of them.
func (f *fieldBase) checkChoices(v any) error {
	if !f.o.has(optChoices) {
		return nil
	}
	found := slices.ContainsFunc(f.o.choices, func(c any) bool {
		order, _, err := compareValues(c, v)
		return err == nil && order == 0
	})
	if !found {
		return errors.Value("%v is not a valid choice", v)
	}
	return nil
}

// readField reads one field from src and decodes it.
func readField(f Field, b binding, src source) ([]byte, any, error) {
	if r, ok := f.(reader); ok {
		return r.read(b, src)
	}
	n, err := f.base().size(b)
	if err != nil {
		return nil, nil, err
	}
	var raw []byte
	if n < 0 {
		raw, err = src.readAll()
	} else {
		raw, err = src.read(int(n))
	}
	if err != nil {
		return nil, nil, err
	}
	v, err := f.decode(b, raw)
	if err != nil {
		return raw, nil, err
	}
	return raw, v, nil
}

// validateField checks that v can be encoded by f and is one of its choices.
func validateField(f Field, b binding, v any) error {
	if _, err := f.encode(b, v); err != nil {
		return err
	}
	if val, ok := f.(validator); ok {
		if err := val.validate(b, v); err != nil {
			return err
		}
	}
	return f.base().checkChoices(v)
}

// canonical returns the stored form of v for f.
func canonical(f Field, v any) (any, error) {
	if c, ok := f.(canonicalizer); ok {
		return c.canonical(v)
	}
	return v, nil
}

// Encode returns the bytes f stores for v. Fields whose parameters refer to other fields cannot
// be used here, use an Instance instead.
func Encode(f Field, v any) ([]byte, error) {
	f, err := prepare(f.clone(), &options{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrSchema, err)
	}
	return f.encode(binding{}, v)
}

// Decode returns the value f reads from raw. As with Encode, parameters that refer to other
// fields cannot be resolved.
func Decode(f Field, raw []byte) (any, error) {
	f, err := prepare(f.clone(), &options{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrSchema, err)
	}
	if _, ok := f.(reader); ok {
		_, v, err := readField(f, binding{}, newBufferSource(raw, false))
		return v, err
	}
	return f.decode(binding{}, raw)
}

// Inner returns the field held by a List or Compressed field.
func Inner(f Field) (Field, bool) {
	w, ok := f.(wrapper)
	if !ok {
		return nil, false
	}
	return w.inner(), true
}

// StructSchema returns the Schema of a SubStructure field.
func StructSchema(f Field) (*Schema, bool) {
	s, ok := f.(*subStructureField)
	if !ok {
		return nil, false
	}
	return s.schema, true
}
