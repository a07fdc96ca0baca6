package steel

import (
	"fmt"
	"slices"

	"github.com/bearlytools/steel/digest"
	"github.com/bearlytools/steel/errors"
	"github.com/bearlytools/steel/internal/binary"
)

type checksumField struct {
	fieldBase
}

// Checksum is a digest of the fields from First through Last, both included, stored in Size bytes.
// First defaults to the first field of the structure and Last to the field just before the
// checksum. The digest is Digest, digest.Sum unless set, cut down to the size of the field.
//
// The checksum is checked when it is read and a mismatch is an error wrapping
// errors.ErrIntegrity. Setting a field it covers computes it again. Values are uint64.
func Checksum(opts ...Option) Field {
	r := rules{allowed: optSize | optEndian | optFirst | optLast | optDigest | optLabel, required: optSize}
	return &checksumField{newBase("Checksum", r, opts)}
}

// CRC32 is a Checksum using the CRC-32 of zlib and PNG, four bytes unless Size says otherwise.
func CRC32(opts ...Option) Field {
	f := Checksum(append([]Option{Size(4), Digest(digest.CRC32)}, opts...)...).(*checksumField)
	f.kind = "CRC32"
	return f
}

// Adler32 is a Checksum using Adler-32, four bytes unless Size says otherwise.
func Adler32(opts ...Option) Field {
	f := Checksum(append([]Option{Size(4), Digest(digest.Adler32)}, opts...)...).(*checksumField)
	f.kind = "Adler32"
	return f
}

func (f *checksumField) clone() Field {
	c := *f
	return &c
}

func (f *checksumField) check() error {
	return f.checkIntSize()
}

func (f *checksumField) digest() digest.Func {
	if f.o.digest == nil {
		return digest.Sum
	}
	return f.o.digest
}

// compute returns the checksum of data as it is stored.
func (f *checksumField) compute(data []byte) (uint64, error) {
	return f.digest()(data) & binary.Mask[uint64](uint(f.literalSize()*8)), nil
}

// attach records which slots the checksum covers and has each of them recompute it when set.
func (f *checksumField) attach(s *Schema, slot int) error {
	first, last := 0, slot-1
	if f.o.has(optFirst) {
		i, ok := s.index[f.o.first]
		if !ok {
			return fmt.Errorf("First refers to %w %q", errors.ErrUnknownField, f.o.first)
		}
		first = i
	}
	if f.o.has(optLast) {
		i, ok := s.index[f.o.last]
		if !ok {
			return fmt.Errorf("Last refers to %w %q", errors.ErrUnknownField, f.o.last)
		}
		last = i
	}
	switch {
	case last >= slot:
		return fmt.Errorf("must come after the fields it covers, %q does not", s.slots[last].name)
	case first > last:
		return fmt.Errorf("covers no fields")
	}
	span := make([]int, 0, last-first+1)
	for i := first; i <= last; i++ {
		span = append(span, i)
		s.encodeHooks[i] = append(s.encodeHooks[i], recomputeHook(slot))
	}
	s.spans[slot] = span
	return nil
}

func recomputeHook(cs int) hook {
	return func(in *Instance, _ int, _ any, _ []byte) error {
		return in.recompute(cs)
	}
}

func (f *checksumField) canonical(v any) (any, error) {
	if u, ok := v.(uint64); ok {
		return u, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.Value("checksum cannot be negative, got %d", n)
	}
	return uint64(n), nil
}

func (f *checksumField) derive(b binding) (any, error) {
	return b.in.checksumOf(b.slot)
}

func (f *checksumField) encode(b binding, v any) ([]byte, error) {
	cv, err := f.canonical(v)
	if err != nil {
		return nil, err
	}
	u := cv.(uint64)
	size := f.literalSize()
	if u&^binary.Mask[uint64](uint(size*8)) != 0 {
		return nil, errors.Value("%d does not fit in %d bytes", u, size)
	}
	return f.o.endianness().Encode(u, size), nil
}

func (f *checksumField) decode(b binding, raw []byte) (any, error) {
	if len(raw) != f.literalSize() {
		return nil, errors.Value("wanted %d bytes, got %d", f.literalSize(), len(raw))
	}
	return f.o.endianness().Decode(raw), nil
}

func (f *checksumField) read(b binding, src source) ([]byte, any, error) {
	raw, err := src.read(f.literalSize())
	if err != nil {
		return nil, nil, err
	}
	v, err := f.decode(b, raw)
	if err != nil {
		return nil, nil, err
	}
	if b.in == nil {
		return raw, v, nil
	}
	want, err := b.in.checksumOf(b.slot)
	if err != nil {
		return nil, nil, err
	}
	if got := v.(uint64); got != want {
		return nil, nil, errors.Integrity("stored %#x, computed %#x", got, want)
	}
	return slices.Clone(raw), v, nil
}

func (f *checksumField) validate(b binding, v any) error {
	if b.in == nil {
		return nil
	}
	want, err := b.in.checksumOf(b.slot)
	if err != nil {
		return err
	}
	if got, _ := v.(uint64); got != want {
		return errors.Integrity("holds %#x, computed %#x", got, want)
	}
	return nil
}
