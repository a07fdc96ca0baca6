package steel

import (
	"fmt"

	"github.com/bearlytools/steel/errors"
	"github.com/bearlytools/steel/internal/binary"
	"github.com/bearlytools/steel/internal/bits"
)

// bitField is a field of a bit structure. Its size is a number of bits.
type bitField interface {
	Field
	width(b binding) (uint, error)
	decodeBits(b binding, u uint64) (any, error)
	encodeBits(b binding, v any) (uint64, error)
}

// bitBase holds what the bit fields share.
type bitBase struct {
	fieldBase
}

func (f *bitBase) width(b binding) (uint, error) {
	n, ok := f.o.size.literal()
	if !ok {
		return 0, fmt.Errorf("bit width must be a literal, got %s", f.o.size)
	}
	return uint(n), nil
}

func (f *bitBase) checkWidth() error {
	n, ok := f.o.size.literal()
	if !ok {
		return fmt.Errorf("size must be a literal number of bits, got %s", f.o.size)
	}
	if n < 1 || n > bits.MaxWidth {
		return fmt.Errorf("size must be between 1 and %d bits, got %d", bits.MaxWidth, n)
	}
	return nil
}

// bitsEncode and bitsDecode give bit fields the byte form used outside a bit structure.
func bitsEncode(f bitField, b binding, v any) ([]byte, error) {
	u, err := f.encodeBits(b, v)
	if err != nil {
		return nil, err
	}
	w, err := f.width(b)
	if err != nil {
		return nil, err
	}
	return bitsRaw(u, w), nil
}

func bitsDecode(f bitField, b binding, raw []byte) (any, error) {
	w, err := f.width(b)
	if err != nil {
		return nil, err
	}
	if want := int(w+7) / 8; len(raw) != want {
		return nil, errors.Value("wanted %d bytes for %d bits, got %d", want, w, len(raw))
	}
	return f.decodeBits(b, binary.BigEndian.Decode(raw))
}

type bitsField struct {
	bitBase
}

// Bits is a whole number stored in Size bits, 1 through 64, inside a bit structure. It is
// unsigned unless Signed or Signing say otherwise. Values are int64.
func Bits(opts ...Option) Field {
	r := rules{allowed: optSize | optSigned | optSigning | commonOpts, required: optSize}
	return &bitsField{bitBase{newBase("Bits", r, opts)}}
}

func (f *bitsField) clone() Field {
	c := *f
	return &c
}

func (f *bitsField) check() error {
	return f.checkWidth()
}

func (f *bitsField) canonical(v any) (any, error) {
	return toInt64(v)
}

func (f *bitsField) encodeBits(b binding, v any) (uint64, error) {
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	w, err := f.width(b)
	if err != nil {
		return 0, err
	}
	switch {
	case f.o.signed:
		u, err := f.o.signingScheme().Encode(n, w)
		if err != nil {
			return 0, errors.Value("%s", err)
		}
		return u, nil
	case n < 0:
		return 0, errors.Value("%d cannot be stored unsigned", n)
	case !binary.Fits(n, w):
		return 0, errors.Value("%d does not fit in %d bits", n, w)
	}
	return uint64(n), nil
}

func (f *bitsField) decodeBits(b binding, u uint64) (any, error) {
	w, err := f.width(b)
	if err != nil {
		return nil, err
	}
	if f.o.signed {
		return f.o.signingScheme().Decode(u, w), nil
	}
	return uintToInt64(u)
}

func (f *bitsField) encode(b binding, v any) ([]byte, error) {
	return bitsEncode(f, b, v)
}

func (f *bitsField) decode(b binding, raw []byte) (any, error) {
	return bitsDecode(f, b, raw)
}

type flagField struct {
	bitBase
}

// Flag is a single bit. Values are bool.
func Flag(opts ...Option) Field {
	f := &flagField{bitBase{newBase("Flag", rules{allowed: commonOpts}, opts)}}
	f.o.size = Lit(1)
	return f
}

func (f *flagField) clone() Field {
	c := *f
	return &c
}

func (f *flagField) width(b binding) (uint, error) {
	return 1, nil
}

func (f *flagField) canonical(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	if n != 0 && n != 1 {
		return nil, errors.Value("%d is not a flag value", n)
	}
	return n == 1, nil
}

func (f *flagField) encodeBits(b binding, v any) (uint64, error) {
	cv, err := f.canonical(v)
	if err != nil {
		return 0, err
	}
	if cv.(bool) {
		return 1, nil
	}
	return 0, nil
}

func (f *flagField) decodeBits(b binding, u uint64) (any, error) {
	return u == 1, nil
}

func (f *flagField) encode(b binding, v any) ([]byte, error) {
	return bitsEncode(f, b, v)
}

func (f *flagField) decode(b binding, raw []byte) (any, error) {
	return bitsDecode(f, b, raw)
}

type fixedBitsField struct {
	bitsField
	value int64
}

// FixedBits is a Bits field that must always hold value.
func FixedBits(value int64, opts ...Option) Field {
	r := rules{allowed: optSize | optSigned | optSigning | optLabel, required: optSize}
	return &fixedBitsField{bitsField: bitsField{bitBase{newBase("FixedBits", r, opts)}}, value: value}
}

func (f *fixedBitsField) clone() Field {
	c := *f
	return &c
}

func (f *fixedBitsField) check() error {
	if err := f.checkWidth(); err != nil {
		return err
	}
	_, err := f.bitsField.encodeBits(binding{}, f.value)
	return err
}

func (f *fixedBitsField) derive(b binding) (any, error) {
	return f.value, nil
}

func (f *fixedBitsField) encodeBits(b binding, v any) (uint64, error) {
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if n != f.value {
		return 0, errors.Value("expected %d, got %d", f.value, n)
	}
	return f.bitsField.encodeBits(b, n)
}

func (f *fixedBitsField) decodeBits(b binding, u uint64) (any, error) {
	v, err := f.bitsField.decodeBits(b, u)
	if err != nil {
		return nil, err
	}
	if v.(int64) != f.value {
		return nil, errors.Value("expected %d, got %d", f.value, v)
	}
	return v, nil
}

func (f *fixedBitsField) encode(b binding, v any) ([]byte, error) {
	return bitsEncode(f, b, v)
}

func (f *fixedBitsField) decode(b binding, raw []byte) (any, error) {
	return bitsDecode(f, b, raw)
}

type bitReservedField struct {
	bitBase
}

// BitReserved is Size bits written as zeros and ignored when read. Add it with Builder.Skip.
func BitReserved(opts ...Option) Field {
	return &bitReservedField{bitBase{newBase("BitReserved", rules{allowed: optSize | optLabel, required: optSize}, opts)}}
}

func (f *bitReservedField) clone() Field {
	c := *f
	return &c
}

func (f *bitReservedField) check() error {
	return f.checkWidth()
}

func (f *bitReservedField) derive(b binding) (any, error) {
	return nil, nil
}

func (f *bitReservedField) encodeBits(b binding, v any) (uint64, error) {
	return 0, nil
}

func (f *bitReservedField) decodeBits(b binding, u uint64) (any, error) {
	return nil, nil
}

func (f *bitReservedField) encode(b binding, v any) ([]byte, error) {
	return bitsEncode(f, b, v)
}

func (f *bitReservedField) decode(b binding, raw []byte) (any, error) {
	return bitsDecode(f, b, raw)
}
