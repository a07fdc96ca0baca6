package steel

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bearlytools/steel/errors"
)

// Hook is called after a field is encoded (OnEncode) or decoded (OnDecode) on an instance.
type Hook func(in *Instance, value any) error

// hook is the form hooks take inside a Schema.
type hook func(in *Instance, slot int, v any, raw []byte) error

// Schema is a built, immutable structure definition. It is safe to share between goroutines.
type Schema struct {
	name     string
	bits     bool
	logger   *slog.Logger
	defaults options

	items []item
	hooks []userHook

	slots  []slot
	index  map[string]int
	units  []unit
	groups []group
	unitOf []int

	encodeHooks [][]hook
	decodeHooks [][]hook
	spans       map[int][]int
}

// slot is one field of a Schema, including fields inside conditional groups.
type slot struct {
	name  string
	field Field
	group int
	anon  bool
}

// unit is the thing the engine reads in one step: a single field or a whole conditional group.
type unit struct {
	slot  int
	group int
}

type group struct {
	cond  Condition
	slots []int
	unit  int
}

type item struct {
	name  string
	field Field
	anon  bool
	group *groupItem
}

type groupItem struct {
	cond  Condition
	items []item
}

type userHook struct {
	name   string
	encode bool
	fn     Hook
}

// Name returns the name given to Define.
func (s *Schema) Name() string {
	return s.name
}

// IsBits reports whether the schema is a bit structure.
func (s *Schema) IsBits() bool {
	return s.bits
}

// Fields returns the names of the fields, in wire order. Anonymous fields are left out.
func (s *Schema) Fields() []string {
	names := make([]string, 0, len(s.slots))
	for _, sl := range s.slots {
		if !sl.anon {
			names = append(names, sl.name)
		}
	}
	return names
}

// Field returns the named field.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.slots[i].field, true
}

// Logger returns the logger set with WithLogger.
func (s *Schema) Logger() *slog.Logger {
	return s.logger
}

func (s *Schema) slotOf(name string) (int, error) {
	i, ok := s.index[name]
	if !ok {
		return 0, fmt.Errorf("%w %q in %s", errors.ErrUnknownField, name, s.name)
	}
	return i, nil
}

// Builder collects the fields of a Schema. Mistakes are remembered and returned by Build, so
// calls can be chained.
type Builder struct {
	name   string
	bits   bool
	so     schemaOptions
	items  []item
	hooks  []userHook
	errs   []error
	nested bool
}

// Define starts a Schema for a byte oriented structure.
func Define(name string, opts ...SchemaOption) *Builder {
	b := &Builder{name: name}
	for _, o := range opts {
		o(&b.so)
	}
	return b
}

// DefineBits starts a Schema for a bit structure. Its fields are packed most significant bit first.
// Only bit fields (Bits, Flag, FixedBits, BitReserved) may be used.
func DefineBits(name string, opts ...SchemaOption) *Builder {
	b := Define(name, opts...)
	b.bits = true
	return b
}

func (b *Builder) errorf(format string, a ...any) {
	b.errs = append(b.errs, fmt.Errorf(format, a...))
}

func anonymousOnly(f Field) bool {
	switch f.(type) {
	case *reservedField, *bitReservedField:
		return true
	}
	return false
}

// Field adds a named field.
func (b *Builder) Field(name string, f Field) *Builder {
	switch {
	case f == nil:
		b.errorf("field %q is nil", name)
	case name == "":
		b.errorf("%s fields need a name, use Skip for fields without one", f.Kind())
	case strings.ContainsAny(name, "./@ \t"):
		b.errorf("field name %q cannot contain '.', '/', '@' or spaces", name)
	case anonymousOnly(f):
		b.errorf("%s fields cannot have a name (%q), use Skip", f.Kind(), name)
	default:
		b.items = append(b.items, item{name: name, field: f})
	}
	return b
}

// Skip adds an anonymous Reserved or BitReserved field.
func (b *Builder) Skip(f Field) *Builder {
	switch {
	case f == nil:
		b.errorf("skipped field is nil")
	case !anonymousOnly(f):
		b.errorf("only Reserved fields can be skipped, got %s", f.Kind())
	default:
		b.items = append(b.items, item{field: f, anon: true})
	}
	return b
}

// If adds a group of fields that are only on the wire when c holds. The fields are declared by
// fn on the Builder it is given. Groups cannot be nested.
func (b *Builder) If(c Condition, fn func(g *Builder)) *Builder {
	if b.nested {
		b.errorf("conditions cannot be nested (%s)", c)
		return b
	}
	g := &Builder{name: b.name, bits: b.bits, nested: true}
	fn(g)
	b.errs = append(b.errs, g.errs...)
	b.hooks = append(b.hooks, g.hooks...)
	b.items = append(b.items, item{group: &groupItem{cond: c, items: g.items}})
	return b
}

// Extend adds every field and hook of base, in order.
func (b *Builder) Extend(base *Schema) *Builder {
	if base == nil {
		b.errorf("cannot extend a nil schema")
		return b
	}
	if base.bits != b.bits {
		b.errorf("%s cannot extend %s: one is a bit structure and the other is not", b.name, base.name)
		return b
	}
	for _, it := range base.items {
		b.items = append(b.items, it.copy())
	}
	b.hooks = append(b.hooks, base.hooks...)
	return b
}

func (it item) copy() item {
	if it.group != nil {
		g := &groupItem{cond: it.group.cond, items: make([]item, len(it.group.items))}
		copy(g.items, it.group.items)
		it.group = g
	}
	return it
}

// find returns the list holding the named item and its position.
func (b *Builder) find(name string) (*[]item, int) {
	for i, it := range b.items {
		if it.group == nil && it.name == name {
			return &b.items, i
		}
		if it.group != nil {
			for j, gi := range it.group.items {
				if gi.name == name {
					return &it.group.items, j
				}
			}
		}
	}
	return nil, -1
}

// Override changes options of a field already added, usually one that came from Extend.
func (b *Builder) Override(name string, opts ...Option) *Builder {
	list, i := b.find(name)
	if list == nil {
		b.errs = append(b.errs, fmt.Errorf("cannot override %w %q", errors.ErrUnknownField, name))
		return b
	}
	f := (*list)[i].field.clone()
	f.base().o.apply(opts)
	(*list)[i].field = f
	return b
}

// Without removes a field already added, usually one that came from Extend.
func (b *Builder) Without(name string) *Builder {
	list, i := b.find(name)
	if list == nil {
		b.errs = append(b.errs, fmt.Errorf("cannot remove %w %q", errors.ErrUnknownField, name))
		return b
	}
	*list = append((*list)[:i:i], (*list)[i+1:]...)
	return b
}

// OnEncode calls h every time the named field is encoded, which happens when it is set.
func (b *Builder) OnEncode(name string, h Hook) *Builder {
	b.hooks = append(b.hooks, userHook{name: name, encode: true, fn: h})
	return b
}

// OnDecode calls h every time the named field is decoded from input.
func (b *Builder) OnDecode(name string, h Hook) *Builder {
	b.hooks = append(b.hooks, userHook{name: name, fn: h})
	return b
}

// MustBuild is Build for package level schemas. It panics on error.
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// Build checks the definition and returns the Schema. Every mistake found is returned, joined,
// and each wraps errors.ErrSchema.
func (b *Builder) Build() (*Schema, error) {
	if b.nested {
		return nil, fmt.Errorf("%w: Build called on a condition group", errors.ErrSchema)
	}
	s := &Schema{
		name:     b.name,
		bits:     b.bits,
		logger:   b.so.logger,
		defaults: b.so.defaults,
		index:    map[string]int{},
		spans:    map[int][]int{},
		hooks:    b.hooks,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	errs := append([]error(nil), b.errs...)

	for _, it := range b.items {
		if it.name != "" {
			s.index[it.name] = -1
		}
		if it.group != nil {
			for _, gi := range it.group.items {
				if gi.name != "" {
					s.index[gi.name] = -1
				}
			}
		}
	}

	anon := 0
	add := func(it item, g int) {
		f, err := prepare(it.field.clone(), &s.defaults)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", it.name, err))
			return
		}
		name := it.name
		if it.anon {
			for {
				name = fmt.Sprintf("_reserved_%d", anon)
				anon++
				if _, taken := s.index[name]; !taken {
					break
				}
			}
		} else if i, ok := s.index[name]; ok && i >= 0 {
			errs = append(errs, fmt.Errorf("field %q is declared twice", name))
			return
		}
		if _, isBit := f.(bitField); isBit != s.bits {
			if s.bits {
				errs = append(errs, fmt.Errorf("%s: %s is not a bit field", name, f.Kind()))
			} else {
				errs = append(errs, fmt.Errorf("%s: %s can only be used in a bit structure", name, f.Kind()))
			}
			return
		}
		s.index[name] = len(s.slots)
		s.slots = append(s.slots, slot{name: name, field: f, group: g, anon: it.anon})
	}

	for _, it := range b.items {
		if it.group == nil {
			before := len(s.slots)
			add(it, -1)
			if len(s.slots) > before {
				s.unitOf = append(s.unitOf, len(s.units))
				s.units = append(s.units, unit{slot: before, group: -1})
			}
			continue
		}
		gi := len(s.groups)
		g := group{cond: it.group.cond, unit: len(s.units)}
		if err := g.cond.check(); err != nil {
			errs = append(errs, fmt.Errorf("condition %s: %w", g.cond, err))
		}
		for _, ref := range g.cond.refs() {
			if i, ok := s.index[ref]; !ok || i < 0 {
				errs = append(errs, fmt.Errorf("condition %s refers to %q, which is not declared before it", g.cond, ref))
			}
		}
		for _, child := range it.group.items {
			before := len(s.slots)
			add(child, gi)
			if len(s.slots) > before {
				g.slots = append(g.slots, before)
				s.unitOf = append(s.unitOf, len(s.units))
			}
		}
		s.groups = append(s.groups, g)
		s.units = append(s.units, unit{slot: -1, group: gi})
	}
	for name, i := range s.index {
		if i < 0 {
			delete(s.index, name)
		}
	}

	s.encodeHooks = make([][]hook, len(s.slots))
	s.decodeHooks = make([][]hook, len(s.slots))
	for i, sl := range s.slots {
		o := &sl.field.base().o
		if o.has(optSize) {
			for _, ref := range o.size.refs() {
				if j, ok := s.index[ref]; !ok || j >= i {
					errs = append(errs, fmt.Errorf("%s: size refers to %q, which is not declared before it", sl.name, ref))
				}
			}
			if target, ok := o.size.sibling(); ok {
				if j, ok := s.index[target]; ok && j < i {
					s.encodeHooks[i] = append(s.encodeHooks[i], sizeHook(j))
				}
			}
		}
		if a, ok := sl.field.(attacher); ok {
			if err := a.attach(s, i); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sl.name, err))
			}
		}
	}

	for _, h := range b.hooks {
		i, ok := s.index[h.name]
		if !ok {
			errs = append(errs, fmt.Errorf("hook for %w %q", errors.ErrUnknownField, h.name))
			continue
		}
		fn := h.fn
		wrapped := func(in *Instance, _ int, v any, _ []byte) error { return fn(in, v) }
		if h.encode {
			s.encodeHooks[i] = append(s.encodeHooks[i], wrapped)
		} else {
			s.decodeHooks[i] = append(s.decodeHooks[i], wrapped)
		}
	}

	if len(errs) > 0 {
		return nil, &schemaError{name: b.name, err: errors.Join(errs...)}
	}

	// Items are kept prepared so a Schema that extends this one keeps these defaults.
	s.items = make([]item, 0, len(b.items))
	for _, it := range b.items {
		s.items = append(s.items, it.copy())
	}
	for i := range s.items {
		s.items[i] = s.preparedItem(s.items[i])
	}
	return s, nil
}

// preparedItem swaps the field of it for the prepared one held in the slots.
func (s *Schema) preparedItem(it item) item {
	if it.group != nil {
		for j := range it.group.items {
			it.group.items[j] = s.preparedItem(it.group.items[j])
		}
		return it
	}
	if it.anon {
		return it
	}
	if i, ok := s.index[it.name]; ok {
		it.field = s.slots[i].field
	}
	return it
}

// schemaError is returned by Build.
type schemaError struct {
	name string
	err  error
}

func (e *schemaError) Error() string {
	return fmt.Sprintf("schema %s: %s", e.name, e.err)
}

func (e *schemaError) Unwrap() []error {
	return []error{errors.ErrSchema, e.err}
}

// sizeHook keeps the sibling a field takes its size from up to date.
func sizeHook(target int) hook {
	return func(in *Instance, slot int, v any, raw []byte) error {
		n := int64(len(raw))
		if m, ok := in.schema.slots[slot].field.(measurer); ok {
			n = m.measure(v, raw)
		}
		return in.setSlot(target, n)
	}
}
