// Package binary holds the byte order and signed number codecs used by integer fields.
// Everything here is a pure function of its input: values travel as uint64 bit patterns
// between the byte order and signing layers.
package binary

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// MaxSize is the largest integer, in bytes, the codecs support.
const MaxSize = 8

// Endianness converts between an unsigned value and its wire bytes.
type Endianness interface {
	// Encode returns the size byte representation of v. Bits above size*8 are dropped.
	Encode(v uint64, size int) []byte
	// Decode returns the value held in b. Only the first MaxSize bytes are considered.
	Decode(b []byte) uint64
	String() string
}

// Signing converts between a signed value and the unsigned bit pattern stored on the wire.
type Signing interface {
	// Encode returns the bits wide pattern for v or an error if v cannot be represented.
	Encode(v int64, bits uint) (uint64, error)
	// Decode returns the signed value held in the bits wide pattern u.
	Decode(u uint64, bits uint) int64
	String() string
}

var (
	// BigEndian stores the most significant byte first.
	BigEndian Endianness = bigEndian{}
	// LittleEndian stores the least significant byte first.
	LittleEndian Endianness = littleEndian{}

	// SignMagnitude uses the top bit as a sign flag and the rest as the magnitude.
	SignMagnitude Signing = signMagnitude{}
	// OnesComplement stores negative numbers as the bitwise inverse of their magnitude.
	OnesComplement Signing = onesComplement{}
	// TwosComplement is the representation used by nearly every modern machine.
	TwosComplement Signing = twosComplement{}
)

type bigEndian struct{}

func (bigEndian) Encode(v uint64, size int) []byte {
	b := make([]byte, size)
	for i := 0; i < size; i++ {
		shift := uint(size-i-1) * 8
		if shift < 64 {
			b[i] = byte(v >> shift)
		}
	}
	return b
}

func (bigEndian) Decode(b []byte) uint64 {
	if len(b) > MaxSize {
		b = b[:MaxSize]
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func (bigEndian) String() string { return "big" }

type littleEndian struct{}

func (littleEndian) Encode(v uint64, size int) []byte {
	b := make([]byte, size)
	for i := 0; i < size; i++ {
		if i < MaxSize {
			b[i] = byte(v >> (uint(i) * 8))
		}
	}
	return b
}

func (littleEndian) Decode(b []byte) uint64 {
	if len(b) > MaxSize {
		b = b[:MaxSize]
	}
	var v uint64
	for i, c := range b {
		v |= uint64(c) << (uint(i) * 8)
	}
	return v
}

func (littleEndian) String() string { return "little" }

// Mask returns a value of type U with the low bits set.
func Mask[U constraints.Unsigned](bits uint) U {
	if bits >= uint(8*sizeOf[U]()) {
		return ^U(0)
	}
	return U(1)<<bits - 1
}

func sizeOf[U constraints.Unsigned]() int {
	var u U
	switch any(u).(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32:
		return 4
	}
	return 8
}

// Fits reports whether v can be stored in bits unsigned bits.
func Fits[I constraints.Integer](v I, bits uint) bool {
	if v < 0 {
		return false
	}
	return uint64(v) <= Mask[uint64](bits)
}

// magnitudeMax is the largest magnitude representable by the sign-magnitude and
// ones' complement schemes in bits bits.
func magnitudeMax(bits uint) uint64 {
	return Mask[uint64](bits - 1)
}

func checkBits(bits uint) {
	if bits == 0 || bits > 64 {
		panic(fmt.Sprintf("signing width %d is outside 1..64", bits))
	}
}

func magnitude(v int64) uint64 {
	if v == math.MinInt64 {
		return 1 << 63
	}
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

type signMagnitude struct{}

func (signMagnitude) Encode(v int64, bits uint) (uint64, error) {
	checkBits(bits)
	m := magnitude(v)
	if m > magnitudeMax(bits) {
		return 0, fmt.Errorf("%d is too large for %d bit sign-magnitude", v, bits)
	}
	if v < 0 {
		return m | 1<<(bits-1), nil
	}
	return m, nil
}

func (signMagnitude) Decode(u uint64, bits uint) int64 {
	checkBits(bits)
	u &= Mask[uint64](bits)
	sign := uint64(1) << (bits - 1)
	if u&sign != 0 {
		return -int64(u &^ sign)
	}
	return int64(u)
}

func (signMagnitude) String() string { return "sign-magnitude" }

type onesComplement struct{}

func (onesComplement) Encode(v int64, bits uint) (uint64, error) {
	checkBits(bits)
	m := magnitude(v)
	if m > magnitudeMax(bits) {
		return 0, fmt.Errorf("%d is too large for %d bit ones' complement", v, bits)
	}
	if v < 0 {
		return ^m & Mask[uint64](bits), nil
	}
	return m, nil
}

func (onesComplement) Decode(u uint64, bits uint) int64 {
	checkBits(bits)
	mask := Mask[uint64](bits)
	u &= mask
	if u>>(bits-1) != 0 {
		return -int64(^u & mask)
	}
	return int64(u)
}

func (onesComplement) String() string { return "ones-complement" }

type twosComplement struct{}

func (twosComplement) Encode(v int64, bits uint) (uint64, error) {
	checkBits(bits)
	if bits < 64 {
		limit := int64(1) << (bits - 1)
		if v >= limit || v < -limit {
			return 0, fmt.Errorf("%d is too large for %d bit two's complement", v, bits)
		}
	}
	return uint64(v) & Mask[uint64](bits), nil
}

func (twosComplement) Decode(u uint64, bits uint) int64 {
	checkBits(bits)
	mask := Mask[uint64](bits)
	u &= mask
	if u>>(bits-1) != 0 {
		return int64(u | ^mask)
	}
	return int64(u)
}

func (twosComplement) String() string { return "twos-complement" }
