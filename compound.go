package steel

import (
	"bytes"
	"fmt"

	"github.com/bearlytools/steel/errors"
)

type listField struct {
	fieldBase
	elem Field
}

// List is a sequence of elem. Size is the number of elements, or Remainder to read elements until
// the input ends. A sibling holding the count is kept up to date when the list is set.
// Values are []any.
func List(elem Field, opts ...Option) Field {
	return &listField{
		fieldBase: newBase("List", rules{allowed: optSize | commonOpts, required: optSize}, opts),
		elem:      elem,
	}
}

func (f *listField) clone() Field {
	c := *f
	return &c
}

func (f *listField) inner() Field {
	return f.elem
}

func (f *listField) withInner(e Field) Field {
	f.elem = e
	return f
}

func (f *listField) check() error {
	if f.elem == nil {
		return fmt.Errorf("element field is nil")
	}
	if _, ok := f.elem.(bitField); ok {
		return fmt.Errorf("%s elements can only be used in a bit structure", f.elem.Kind())
	}
	return nil
}

func (f *listField) measure(v any, raw []byte) int64 {
	s, _ := v.([]any)
	return int64(len(s))
}

func (f *listField) canonical(v any) (any, error) {
	items, err := toSlice(v)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, e := range items {
		if out[i], err = canonical(f.elem, e); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

func (f *listField) read(b binding, src source) ([]byte, any, error) {
	n, err := f.size(b)
	if err != nil {
		return nil, nil, err
	}
	var (
		raw   []byte
		items = []any{}
	)
	for i := int64(0); n < 0 || i < n; i++ {
		start := src.pos()
		r, v, err := readField(f.elem, b, src)
		if err != nil {
			if n < 0 && !src.partial() && src.pos() == start && errors.Is(err, errors.ErrOutOfData) {
				break
			}
			return nil, nil, fmt.Errorf("element %d: %w", i, err)
		}
		if n < 0 && len(r) == 0 {
			return nil, nil, errors.Value("element %d is empty, a list running to the end of the input would never end", i)
		}
		raw = append(raw, r...)
		items = append(items, v)
	}
	return raw, items, nil
}

func (f *listField) decode(b binding, raw []byte) (any, error) {
	src := newBufferSource(raw, false)
	n, err := f.size(b)
	if err != nil {
		if !errors.Is(err, errors.ErrAbsent) {
			return nil, err
		}
		n = -1
	}
	items := []any{}
	for i := int64(0); n < 0 || i < n; i++ {
		if n < 0 && len(src.rest()) == 0 {
			break
		}
		_, v, err := readField(f.elem, b, src)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		items = append(items, v)
	}
	if len(src.rest()) > 0 {
		return nil, errors.Value("%d bytes left after %d elements", len(src.rest()), len(items))
	}
	return items, nil
}

func (f *listField) encode(b binding, v any) ([]byte, error) {
	items, err := toSlice(v)
	if err != nil {
		return nil, err
	}
	if !f.o.size.isRemainder() && !f.tracked() {
		n, err := f.size(b)
		switch {
		case err == nil && int64(len(items)) != n:
			return nil, errors.Value("wanted %d elements, got %d", n, len(items))
		case err != nil && !errors.Is(err, errors.ErrAbsent):
			return nil, err
		}
	}
	var buf bytes.Buffer
	for i, e := range items {
		raw, err := f.elem.encode(b, e)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

func (f *listField) validate(b binding, v any) error {
	items, err := toSlice(v)
	if err != nil {
		return err
	}
	for i, e := range items {
		if err := validateField(f.elem, b, e); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

type subStructureField struct {
	fieldBase
	schema *Schema
}

// SubStructure embeds a whole structure of schema s. Its fields can refer to fields of the
// enclosing structure with "../" references. Values are *Instance; a map[string]any is accepted
// when setting and turned into one.
func SubStructure(s *Schema, opts ...Option) Field {
	return &subStructureField{
		fieldBase: newBase("SubStructure", rules{allowed: optLabel}, opts),
		schema:    s,
	}
}

func (f *subStructureField) clone() Field {
	c := *f
	return &c
}

func (f *subStructureField) check() error {
	if f.schema == nil {
		return fmt.Errorf("schema is nil")
	}
	return nil
}

func (f *subStructureField) read(b binding, src source) ([]byte, any, error) {
	child := newChild(f.schema, src, b.in)
	if err := child.resolveAll(); err != nil {
		return nil, nil, err
	}
	raw, err := child.Bytes()
	if err != nil {
		return nil, nil, err
	}
	return raw, child, nil
}

func (f *subStructureField) decode(b binding, raw []byte) (any, error) {
	child := newChild(f.schema, newBufferSource(raw, false), b.in)
	if err := child.resolveAll(); err != nil {
		return nil, err
	}
	return child, nil
}

func (f *subStructureField) canonical(v any) (any, error) {
	switch x := v.(type) {
	case *Instance:
		if x.schema != f.schema {
			return nil, errors.Value("got a %s, wanted a %s", x.schema.name, f.schema.name)
		}
		return x, nil
	case map[string]any:
		return NewWith(f.schema, x)
	}
	return nil, errors.Value("%T cannot be used as a %s", v, f.schema.name)
}

func (f *subStructureField) encode(b binding, v any) ([]byte, error) {
	cv, err := f.canonical(v)
	if err != nil {
		return nil, err
	}
	child := cv.(*Instance)
	if child.parent == nil && b.in != nil {
		child.parent = b.in
	}
	return child.Bytes()
}

func (f *subStructureField) validate(b binding, v any) error {
	cv, err := f.canonical(v)
	if err != nil {
		return err
	}
	return errors.Join(cv.(*Instance).Validate()...)
}
