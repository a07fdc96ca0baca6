package steel

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/bearlytools/steel/errors"
	"github.com/bearlytools/steel/internal/binary"
	"github.com/bearlytools/steel/internal/bits"
	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/values/sizes"
)

var bufferPool = sync.NewPool[*bytes.Buffer](
	context.Background(),
	"bufferPool",
	func() *bytes.Buffer {
		return &bytes.Buffer{}
	},
	sync.WithBuffer(100),
)

type mode uint8

const (
	modeWrite mode = iota
	modeRead
)

type groupState uint8

const (
	groupUnresolved groupState = iota
	groupTrue
	groupFalse
)

// Instance is one structure being read or written. An Instance either reads from a source
// (Open, Parse) or is built from values and bytes fed to Write (New, NewWith), never both.
// An Instance is not safe for concurrent use; its Schema is.
type Instance struct {
	schema *Schema
	parent *Instance
	mode   mode
	src    source
	start  int64

	values []any
	has    []bool
	raw    [][]byte
	hasRaw []bool
	groups []groupState
	busy   []bool

	// next is the next unit to read. active is the unit being read, or -1.
	next   int
	active int
	bitr   bits.Reader
	err    error

	carry []byte
	fed   int64
}

func newInstance(s *Schema, m mode) *Instance {
	n := len(s.slots)
	return &Instance{
		schema: s,
		mode:   m,
		values: make([]any, n),
		has:    make([]bool, n),
		raw:    make([][]byte, n),
		hasRaw: make([]bool, n),
		groups: make([]groupState, len(s.groups)),
		busy:   make([]bool, n),
		active: -1,
	}
}

// New returns an empty Instance of s for building a structure. Fields are given values with Set
// or by feeding encoded bytes to Write.
func New(s *Schema) *Instance {
	return newInstance(s, modeWrite)
}

// NewWith is New followed by a Set for every entry of values, in field order.
func NewWith(s *Schema, values map[string]any) (*Instance, error) {
	in := New(s)
	for name := range values {
		if _, err := s.slotOf(name); err != nil {
			return nil, err
		}
	}
	for _, sl := range s.slots {
		v, ok := values[sl.name]
		if !ok {
			continue
		}
		if err := in.Set(sl.name, v); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// Open returns an Instance of s that reads from r. Nothing is read until a field is asked for.
// The Instance reads exactly the bytes its fields need and never past them.
func Open(s *Schema, r io.Reader) *Instance {
	in := newInstance(s, modeRead)
	in.src = newStreamSource(r)
	return in
}

// Parse reads a whole structure from r.
func Parse(s *Schema, r io.Reader) (*Instance, error) {
	in := Open(s, r)
	if err := in.resolveAll(); err != nil {
		return nil, err
	}
	return in, nil
}

// ParseBytes reads a whole structure from b. Bytes after the structure are ignored.
func ParseBytes(s *Schema, b []byte) (*Instance, error) {
	in := newChild(s, newBufferSource(b, false), nil)
	if err := in.resolveAll(); err != nil {
		return nil, err
	}
	return in, nil
}

// newChild returns an Instance that reads from a source shared with its parent.
func newChild(s *Schema, src source, parent *Instance) *Instance {
	in := newInstance(s, modeRead)
	in.src = src
	in.start = src.pos()
	in.parent = parent
	return in
}

// Schema returns the Schema of the Instance.
func (in *Instance) Schema() *Schema {
	return in.schema
}

// Parent returns the Instance that holds this one as a sub-structure, list element or chunk.
// It is nil for top level instances.
func (in *Instance) Parent() *Instance {
	return in.parent
}

// Position returns the number of bytes of input the Instance has consumed.
func (in *Instance) Position() int64 {
	if in.mode == modeRead {
		return in.src.pos() - in.start
	}
	return in.fed
}

// Complete reports whether every field has been read from input.
func (in *Instance) Complete() bool {
	return in.next >= len(in.schema.units)
}

// Buffered returns the number of bytes given to Write that are held until more input arrives.
func (in *Instance) Buffered() int {
	return len(in.carry)
}

// Get returns the value of the named field. In read mode this reads every field up to and
// including it. A field that is not on the wire, because its condition is false or the input
// ended, returns its Default if it has one and otherwise an error wrapping errors.ErrAbsent or
// errors.ErrOutOfData.
func (in *Instance) Get(name string) (any, error) {
	i, err := in.schema.slotOf(name)
	if err != nil {
		return nil, err
	}
	v, err := in.get(i)
	if err != nil {
		return nil, errors.E(in.schema.name, name, err)
	}
	return v, nil
}

func (in *Instance) get(i int) (any, error) {
	if in.has[i] {
		return in.values[i], nil
	}
	sl := in.schema.slots[i]

	if in.mode == modeRead {
		err := in.resolveThrough(in.schema.unitOf[i])
		switch {
		case err == nil && in.has[i]:
			return in.values[i], nil
		case err == nil:
			return in.absent(i)
		case errors.Is(err, errors.ErrOutOfData):
			if o := &sl.field.base().o; o.has(optDefault) {
				return o.def, nil
			}
		}
		return nil, err
	}

	if sl.group >= 0 {
		ok, err := in.evalGroup(sl.group)
		if err == nil && !ok {
			return in.absent(i)
		}
	}
	if d, ok := sl.field.(deriver); ok {
		return d.derive(binding{in, i})
	}
	return in.absent(i)
}

func (in *Instance) absent(i int) (any, error) {
	if o := &in.schema.slots[i].field.base().o; o.has(optDefault) {
		return o.def, nil
	}
	return nil, errors.ErrAbsent
}

// Has reports whether the named field has a value of its own, as opposed to a default or nothing.
// It never reads input.
func (in *Instance) Has(name string) bool {
	i, ok := in.schema.index[name]
	return ok && in.has[i]
}

// Set gives the named field a value and encodes it immediately. Fields that depend on it, such as
// the field holding its size or a checksum over it, are updated. On an Instance that reads from a
// source, the whole structure is read first.
func (in *Instance) Set(name string, v any) error {
	i, err := in.schema.slotOf(name)
	if err != nil {
		return err
	}
	if in.mode == modeRead {
		if err := in.resolveAll(); err != nil {
			return err
		}
	}
	if err := in.setSlot(i, v); err != nil {
		return errors.E(in.schema.name, name, err)
	}
	return nil
}

func (in *Instance) setSlot(i int, v any) error {
	f := in.schema.slots[i].field
	b := binding{in, i}
	cv, err := canonical(f, v)
	if err != nil {
		return err
	}
	raw, err := f.encode(b, cv)
	if err != nil {
		return err
	}
	in.values[i], in.has[i] = cv, true
	in.raw[i], in.hasRaw[i] = raw, true
	for _, h := range in.schema.encodeHooks[i] {
		if err := h(in, i, cv, raw); err != nil {
			return err
		}
	}
	return nil
}

// lookup resolves a reference path. See Ref.
func (in *Instance) lookup(path string) (any, error) {
	cur := in
	for strings.HasPrefix(path, "../") {
		if cur.parent == nil {
			return nil, fmt.Errorf("%w: %s has no parent to resolve %q", errors.ErrAbsent, cur.schema.name, path)
		}
		cur = cur.parent
		path = path[3:]
	}
	var v any
	for i, part := range strings.Split(path, ".") {
		if i > 0 {
			child, ok := v.(*Instance)
			if !ok {
				return nil, errors.Value("%q: %T is not a structure", path, v)
			}
			cur = child
		}
		var err error
		if v, err = cur.Get(part); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (in *Instance) resolveAll() error {
	if in.mode != modeRead {
		return nil
	}
	return in.resolveThrough(len(in.schema.units) - 1)
}

// resolveThrough reads units in order until unit u has been read.
func (in *Instance) resolveThrough(u int) error {
	if in.err != nil {
		return in.err
	}
	if in.active >= 0 && u >= in.active {
		return fmt.Errorf("%w: %s refers to a field that is still being read", errors.ErrAbsent, in.schema.name)
	}
	for in.next <= u {
		if err := in.readUnit(in.next); err != nil {
			in.err = err
			return err
		}
		in.next++
	}
	return nil
}

// readUnit reads one field, or every field of a conditional group when its condition holds.
func (in *Instance) readUnit(u int) error {
	in.active = u
	defer func() { in.active = -1 }()

	un := in.schema.units[u]
	if un.group < 0 {
		return in.readSlot(un.slot)
	}
	g := in.schema.groups[un.group]
	ok, err := g.cond.eval(in)
	if err != nil {
		return errors.E(in.schema.name, "", fmt.Errorf("condition %s: %w", g.cond, err))
	}
	if !ok {
		in.groups[un.group] = groupFalse
		return nil
	}
	for _, s := range g.slots {
		if err := in.readSlot(s); err != nil {
			return err
		}
	}
	in.groups[un.group] = groupTrue
	return nil
}

func (in *Instance) readSlot(s int) error {
	if in.has[s] && in.hasRaw[s] {
		return nil
	}
	sl := in.schema.slots[s]
	b := binding{in, s}

	var (
		raw []byte
		v   any
		err error
	)
	if in.schema.bits {
		raw, v, err = in.readBits(sl.field.(bitField), b)
	} else {
		raw, v, err = readField(sl.field, b, in.src)
	}
	if err != nil {
		return errors.E(in.schema.name, sl.name, err)
	}
	in.values[s], in.has[s] = v, true
	in.raw[s], in.hasRaw[s] = raw, true
	for _, h := range in.schema.decodeHooks[s] {
		if err := h(in, s, v, raw); err != nil {
			return errors.E(in.schema.name, sl.name, err)
		}
	}
	return nil
}

func (in *Instance) readBits(f bitField, b binding) ([]byte, any, error) {
	w, err := f.width(b)
	if err != nil {
		return nil, nil, err
	}
	u, err := in.bitr.Read(w, in.src.read)
	if err != nil {
		return nil, nil, err
	}
	v, err := f.decodeBits(b, u)
	if err != nil {
		return nil, nil, err
	}
	return bitsRaw(u, w), v, nil
}

// bitsRaw is the byte form of a bit field: its value, big endian, in as few bytes as hold it.
func bitsRaw(u uint64, w uint) []byte {
	return binary.BigEndian.Encode(u, int(w+7)/8)
}

// evalGroup reports whether group g is on the wire.
func (in *Instance) evalGroup(g int) (bool, error) {
	switch in.groups[g] {
	case groupTrue:
		return true, nil
	case groupFalse:
		return false, nil
	}
	if in.mode == modeRead {
		if err := in.resolveThrough(in.schema.groups[g].unit); err != nil {
			return false, err
		}
		return in.groups[g] == groupTrue, nil
	}
	return in.schema.groups[g].cond.eval(in)
}

// rawOf returns the encoded bytes of a field, encoding its current, default or derived value if
// it has none yet. Filling the cache this way does not run hooks.
func (in *Instance) rawOf(i int) ([]byte, error) {
	if in.hasRaw[i] {
		return in.raw[i], nil
	}
	sl := in.schema.slots[i]
	if sl.group >= 0 {
		ok, err := in.evalGroup(sl.group)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}
	v, err := in.get(i)
	if err != nil {
		return nil, err
	}
	cv, err := canonical(sl.field, v)
	if err != nil {
		return nil, err
	}
	raw, err := sl.field.encode(binding{in, i}, cv)
	if err != nil {
		return nil, err
	}
	in.values[i], in.has[i] = cv, true
	in.raw[i], in.hasRaw[i] = raw, true
	return raw, nil
}

// checksumOf computes the checksum held in slot cs from the fields it covers.
func (in *Instance) checksumOf(cs int) (uint64, error) {
	f, ok := in.schema.slots[cs].field.(*checksumField)
	if !ok {
		return 0, fmt.Errorf("%s is not a checksum", in.schema.slots[cs].name)
	}
	var data []byte
	for _, m := range in.schema.spans[cs] {
		raw, err := in.rawOf(m)
		if err != nil {
			return 0, err
		}
		data = append(data, raw...)
	}
	return f.compute(data)
}

// recompute updates checksum cs after a field it covers changed. Fields that have no value yet
// leave the checksum alone, it is computed again when they get one.
func (in *Instance) recompute(cs int) error {
	if in.busy[cs] {
		return nil
	}
	in.busy[cs] = true
	defer func() { in.busy[cs] = false }()

	v, err := in.checksumOf(cs)
	if err != nil {
		if errors.Is(err, errors.ErrAbsent) {
			return nil
		}
		return err
	}
	return in.setSlot(cs, v)
}

// fill makes sure every field on the wire has encoded bytes and returns them in order.
func (in *Instance) fill() ([]int, error) {
	var present []int
	for _, un := range in.schema.units {
		if un.group < 0 {
			if err := in.ensure(un.slot); err != nil {
				return nil, err
			}
			present = append(present, un.slot)
			continue
		}
		ok, err := in.evalGroup(un.group)
		if err != nil {
			return nil, errors.E(in.schema.name, "", fmt.Errorf("condition %s: %w", in.schema.groups[un.group].cond, err))
		}
		if !ok {
			continue
		}
		for _, s := range in.schema.groups[un.group].slots {
			if err := in.ensure(s); err != nil {
				return nil, err
			}
			present = append(present, s)
		}
	}
	return present, nil
}

func (in *Instance) ensure(s int) error {
	if in.hasRaw[s] {
		return nil
	}
	var v any
	if in.has[s] {
		v = in.values[s]
	} else {
		var err error
		if v, err = in.get(s); err != nil {
			return errors.E(in.schema.name, in.schema.slots[s].name, err)
		}
	}
	if err := in.setSlot(s, v); err != nil {
		return errors.E(in.schema.name, in.schema.slots[s].name, err)
	}
	return nil
}

// Bytes returns the encoded structure. Fields without a value get their default or derived value
// first; a field with neither is an error. In read mode the whole structure is read first.
func (in *Instance) Bytes() ([]byte, error) {
	if err := in.resolveAll(); err != nil {
		return nil, err
	}
	present, err := in.fill()
	if err != nil {
		return nil, err
	}

	if in.schema.bits {
		w := &bits.Writer{}
		for _, s := range present {
			width, err := in.schema.slots[s].field.(bitField).width(binding{in, s})
			if err != nil {
				return nil, errors.E(in.schema.name, in.schema.slots[s].name, err)
			}
			if err := w.Write(binary.BigEndian.Decode(in.raw[s]), width); err != nil {
				return nil, errors.E(in.schema.name, in.schema.slots[s].name, err)
			}
		}
		return w.Flush(), nil
	}

	ctx := context.Background()
	buf := bufferPool.Get(ctx)
	buf.Reset()
	defer func() {
		if buf.Cap() <= 64*sizes.KiB {
			bufferPool.Put(ctx, buf)
		}
	}()
	for _, s := range present {
		buf.Write(in.raw[s])
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Save writes the encoded structure to w.
func (in *Instance) Save(w io.Writer) error {
	b, err := in.Bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// RawBytes returns the encoded bytes of one field. Bit fields return their value big endian in
// as few bytes as hold it.
func (in *Instance) RawBytes(name string) ([]byte, error) {
	i, err := in.schema.slotOf(name)
	if err != nil {
		return nil, err
	}
	if in.mode == modeRead {
		if err := in.resolveThrough(in.schema.unitOf[i]); err != nil {
			return nil, err
		}
	}
	raw, err := in.rawOf(i)
	if err != nil {
		return nil, errors.E(in.schema.name, name, err)
	}
	return bytes.Clone(raw), nil
}

// Validate checks every field on the wire and returns all problems found. Fields must have a value
// that can be encoded and that is one of their Choices, if set.
func (in *Instance) Validate() []error {
	var errs []error
	check := func(s int) {
		sl := in.schema.slots[s]
		if sl.anon {
			return
		}
		v, err := in.get(s)
		if err == nil {
			err = validateField(sl.field, binding{in, s}, v)
		}
		if err != nil {
			errs = append(errs, errors.E(in.schema.name, sl.name, err))
		}
	}
	for _, un := range in.schema.units {
		if un.group < 0 {
			check(un.slot)
			continue
		}
		ok, err := in.evalGroup(un.group)
		if err != nil {
			errs = append(errs, errors.E(in.schema.name, "", err))
			continue
		}
		if !ok {
			continue
		}
		for _, s := range in.schema.groups[un.group].slots {
			check(s)
		}
	}
	return errs
}

// Write feeds encoded bytes to an Instance created with New. As many fields as the bytes allow
// are decoded. A field that is only partly there is held back, with the rest of the bytes, until
// the next Write. Fields that were already Set are not read. Running out of data is never an
// error here.
//
// Fields that run to the end of the input, such as a Remainder sized Bytes, wait for Flush.
func (in *Instance) Write(p []byte) (int, error) {
	if err := in.feed(p, true); err != nil {
		return len(p), err
	}
	return len(p), nil
}

// Flush tells the Instance no more input follows and decodes fields that run to the end of the
// input. Bytes still held after that are returned in an error wrapping errors.ErrOutOfData.
func (in *Instance) Flush() error {
	if err := in.feed(nil, false); err != nil {
		return err
	}
	if len(in.carry) > 0 && !in.Complete() {
		return errors.E(in.schema.name, "", errors.OutOfData(len(in.carry)+1, len(in.carry)))
	}
	return nil
}

func (in *Instance) feed(p []byte, more bool) error {
	if in.mode != modeWrite {
		return errors.E(in.schema.name, "", errors.ErrMode)
	}
	data := append(in.carry, p...)
	src := newBufferSource(data, more)
	in.src = src
	defer func() { in.src = nil }()

	var err error
	for in.next < len(in.schema.units) {
		mark, snap := src.off, in.bitr.Snapshot()
		slots := in.unitSlots(in.next)
		had := make([]bool, len(slots))
		for j, s := range slots {
			had[j] = in.has[s]
		}

		if err = in.readUnit(in.next); err == nil {
			in.next++
			continue
		}

		for j, s := range slots {
			if !had[j] {
				in.values[s], in.has[s] = nil, false
				in.raw[s], in.hasRaw[s] = nil, false
			}
		}
		if g := in.schema.units[in.next].group; g >= 0 {
			in.groups[g] = groupUnresolved
		}
		src.off = mark
		in.bitr.Restore(snap)
		if errors.Is(err, errors.ErrOutOfData) {
			err = nil
		}
		break
	}

	in.fed += int64(src.off)
	in.carry = bytes.Clone(src.rest())
	if len(in.carry) > 0 {
		in.schema.logger.Debug("holding partial input", "schema", in.schema.name, "bytes", len(in.carry), "next", in.next)
	}
	return err
}

func (in *Instance) unitSlots(u int) []int {
	un := in.schema.units[u]
	if un.group < 0 {
		return []int{un.slot}
	}
	return in.schema.groups[un.group].slots
}

// Map returns the values of every named field that has one, reading them first in read mode.
// Sub-structures become nested maps.
func (in *Instance) Map() (map[string]any, error) {
	if err := in.resolveAll(); err != nil {
		return nil, err
	}
	m := map[string]any{}
	for i, sl := range in.schema.slots {
		if sl.anon {
			continue
		}
		v, err := in.get(i)
		if err != nil {
			if errors.Is(err, errors.ErrAbsent) {
				continue
			}
			return nil, errors.E(in.schema.name, sl.name, err)
		}
		if m[sl.name], err = plain(v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// plain turns instances and chunks inside v into maps.
func plain(v any) (any, error) {
	switch x := v.(type) {
	case *Instance:
		return x.Map()
	case Chunks:
		out := make([]any, 0, len(x))
		for _, c := range x {
			m, err := c.Data.Map()
			if err != nil {
				return nil, err
			}
			out = append(out, map[string]any{"tag": c.Tag, "data": m})
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			p, err := plain(e)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	}
	return v, nil
}

// toSlice returns the elements of any slice or array.
func toSlice(v any) ([]any, error) {
	if s, ok := v.([]any); ok {
		return s, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return nil, errors.Value("%v (%T) is not a list", v, v)
}
