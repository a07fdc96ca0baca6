package steel

import (
	"fmt"

	"github.com/bearlytools/steel/compress"
	"github.com/bearlytools/steel/errors"
)

type compressedField struct {
	fieldBase
	elem Field
}

// Compressed stores the value of inner compressed. Size is the size of the compressed bytes and is
// usually taken from a sibling or is Remainder. Algorithm picks the compression, compress.Zlib
// unless set. Values are whatever inner uses.
func Compressed(inner Field, opts ...Option) Field {
	r := rules{allowed: optSize | optAlgorithm | optLabel, required: optSize}
	return &compressedField{fieldBase: newBase("Compressed", r, opts), elem: inner}
}

func (f *compressedField) clone() Field {
	c := *f
	return &c
}

func (f *compressedField) inner() Field {
	return f.elem
}

func (f *compressedField) withInner(e Field) Field {
	f.elem = e
	return f
}

func (f *compressedField) algorithm() compress.Algorithm {
	if !f.o.has(optAlgorithm) {
		return compress.Zlib
	}
	return f.o.algorithm
}

func (f *compressedField) check() error {
	if f.elem == nil {
		return fmt.Errorf("inner field is nil")
	}
	if a := f.algorithm(); a != compress.None && compress.Get(a) == nil {
		return fmt.Errorf("no compressor registered for %s", a)
	}
	return nil
}

func (f *compressedField) canonical(v any) (any, error) {
	return canonical(f.elem, v)
}

func (f *compressedField) decode(b binding, raw []byte) (any, error) {
	data, err := compress.Decompress(f.algorithm(), raw)
	if err != nil {
		return nil, errors.Value("%s: %s", f.algorithm(), err)
	}
	src := newBufferSource(data, false)
	_, v, err := readField(f.elem, b, src)
	if err != nil {
		return nil, err
	}
	if left := len(src.rest()); left > 0 {
		return nil, errors.Value("%d bytes left after decompressing", left)
	}
	return v, nil
}

func (f *compressedField) encode(b binding, v any) ([]byte, error) {
	data, err := f.elem.encode(b, v)
	if err != nil {
		return nil, err
	}
	raw, err := compress.Compress(f.algorithm(), data)
	if err != nil {
		return nil, errors.Value("%s: %s", f.algorithm(), err)
	}
	n, err := f.wantSize(b)
	if err != nil {
		return nil, err
	}
	if n >= 0 && int64(len(raw)) != n {
		return nil, errors.Value("compressed to %d bytes, wanted %d", len(raw), n)
	}
	return raw, nil
}

func (f *compressedField) validate(b binding, v any) error {
	return validateField(f.elem, b, v)
}
