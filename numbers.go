package steel

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"

	"github.com/bearlytools/steel/errors"
	"github.com/bearlytools/steel/internal/binary"
)

// encodeInt stores v in size bytes using the number options in o.
func encodeInt(o *options, size int, v int64) ([]byte, error) {
	width := uint(size * 8)
	var u uint64
	switch {
	case o.signed:
		var err error
		u, err = o.signingScheme().Encode(v, width)
		if err != nil {
			return nil, errors.Value("%s", err)
		}
	case v < 0:
		return nil, errors.Value("%d cannot be stored unsigned", v)
	case !binary.Fits(v, width):
		return nil, errors.Value("%d does not fit in %d bytes", v, size)
	default:
		u = uint64(v)
	}
	return o.endianness().Encode(u, size), nil
}

// decodeInt reads the number stored in raw using the number options in o.
func decodeInt(o *options, raw []byte) (int64, error) {
	if len(raw) == 0 || len(raw) > binary.MaxSize {
		return 0, errors.Value("cannot decode a %d byte integer", len(raw))
	}
	u := o.endianness().Decode(raw)
	if o.signed {
		return o.signingScheme().Decode(u, uint(len(raw)*8)), nil
	}
	return uintToInt64(u)
}

// literalSize returns the size of a field whose size must be known when the schema is built.
func (f *fieldBase) literalSize() int {
	n, _ := f.o.size.literal()
	return int(n)
}

func (f *fieldBase) checkIntSize() error {
	n, ok := f.o.size.literal()
	if !ok {
		return fmt.Errorf("size must be a literal number of bytes, got %s", f.o.size)
	}
	if n < 1 || n > binary.MaxSize {
		return fmt.Errorf("size must be between 1 and %d bytes, got %d", binary.MaxSize, n)
	}
	return nil
}

type integerField struct {
	fieldBase
}

// Integer is a whole number stored in Size(n) bytes, 1 through 8. It is unsigned and big endian
// unless Signed, Signing or Endian say otherwise. Values are int64.
func Integer(opts ...Option) Field {
	return &integerField{newBase("Integer", rules{allowed: integerOpts, required: optSize}, opts)}
}

func (f *integerField) clone() Field {
	c := *f
	return &c
}

func (f *integerField) check() error {
	return f.checkIntSize()
}

func (f *integerField) canonical(v any) (any, error) {
	return toInt64(v)
}

func (f *integerField) encode(b binding, v any) ([]byte, error) {
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	return encodeInt(&f.o, f.literalSize(), n)
}

func (f *integerField) decode(b binding, raw []byte) (any, error) {
	if len(raw) != f.literalSize() {
		return nil, errors.Value("wanted %d bytes, got %d", f.literalSize(), len(raw))
	}
	return decodeInt(&f.o, raw)
}

type fixedIntegerField struct {
	fieldBase
	value int64
}

// FixedInteger is an integer that must always have the given value, such as a version number
// or a magic number. Reading a different value is an error. The size defaults to the fewest
// bytes that hold the value and the field is signed when the value is negative.
func FixedInteger(value int64, opts ...Option) Field {
	f := &fixedIntegerField{
		fieldBase: newBase("FixedInteger", rules{allowed: optSize | optEndian | optSigned | optSigning | optLabel}, opts),
		value:     value,
	}
	if !f.o.has(optSize) {
		mag := uint64(value)
		if value < 0 {
			mag = uint64(-value)
		}
		n := (bits.Len64(mag) + 7) / 8
		if n == 0 {
			n = 1
		}
		f.o.size = Lit(int64(n))
		f.o.set |= optSize
	}
	if value < 0 {
		f.o.signed = true
	}
	return f
}

func (f *fixedIntegerField) clone() Field {
	c := *f
	return &c
}

func (f *fixedIntegerField) check() error {
	if err := f.checkIntSize(); err != nil {
		return err
	}
	_, err := encodeInt(&f.o, f.literalSize(), f.value)
	return err
}

func (f *fixedIntegerField) canonical(v any) (any, error) {
	return toInt64(v)
}

func (f *fixedIntegerField) derive(b binding) (any, error) {
	return f.value, nil
}

func (f *fixedIntegerField) encode(b binding, v any) ([]byte, error) {
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	if n != f.value {
		return nil, errors.Value("expected %d, got %d", f.value, n)
	}
	return encodeInt(&f.o, f.literalSize(), n)
}

func (f *fixedIntegerField) decode(b binding, raw []byte) (any, error) {
	n, err := decodeInt(&f.o, raw)
	if err != nil {
		return nil, err
	}
	if n != f.value {
		return nil, errors.Value("expected %d, got %d", f.value, n)
	}
	return n, nil
}

// Fixed is a decimal number held as a whole number of units of 10^-Places.
type Fixed struct {
	Units  int64
	Places int
}

var pow10 = func() [19]int64 {
	var p [19]int64
	p[0] = 1
	for i := 1; i < len(p); i++ {
		p[i] = p[i-1] * 10
	}
	return p
}()

// ParseFixed parses a decimal string such as "-12.05".
func ParseFixed(s string) (Fixed, error) {
	neg := false
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	whole, frac := s, ""
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			whole, frac = s[:i], s[i+1:]
			break
		}
	}
	if len(frac) >= len(pow10) {
		return Fixed{}, fmt.Errorf("%q has too many decimal places", s)
	}
	u, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return Fixed{}, fmt.Errorf("%q is not a decimal number: %w", s, err)
	}
	if neg {
		u = -u
	}
	return Fixed{Units: u, Places: len(frac)}, nil
}

// String implements fmt.Stringer.
func (x Fixed) String() string {
	if x.Places <= 0 {
		return strconv.FormatInt(x.Units, 10)
	}
	neg := x.Units < 0
	u := uint64(x.Units)
	if neg {
		u = -u
	}
	s := strconv.FormatUint(u, 10)
	for len(s) <= x.Places {
		s = "0" + s
	}
	s = s[:len(s)-x.Places] + "." + s[len(s)-x.Places:]
	if neg {
		s = "-" + s
	}
	return s
}

// Float64 returns x as a float64.
func (x Fixed) Float64() float64 {
	if x.Places <= 0 || x.Places >= len(pow10) {
		return float64(x.Units)
	}
	return float64(x.Units) / float64(pow10[x.Places])
}

// Rescale returns the number of units x holds at the given number of places. Dropping places
// rounds half away from zero.
func (x Fixed) Rescale(places int) (int64, error) {
	if places < 0 || places >= len(pow10) || x.Places < 0 || x.Places >= len(pow10) {
		return 0, errors.Value("cannot rescale %s to %d places", x, places)
	}
	switch {
	case places == x.Places:
		return x.Units, nil
	case places > x.Places:
		m := pow10[places-x.Places]
		if x.Units > math.MaxInt64/m || x.Units < math.MinInt64/m {
			return 0, errors.Value("%s overflows at %d places", x, places)
		}
		return x.Units * m, nil
	}
	d := pow10[x.Places-places]
	q, r := x.Units/d, x.Units%d
	if 2*abs(r) >= d {
		if x.Units < 0 {
			q--
		} else {
			q++
		}
	}
	return q, nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

type fixedPointField struct {
	fieldBase
}

// FixedPoint is a decimal number stored as an Integer scaled by 10^Places. Values are Fixed.
// Setting a float64 or an integer is also accepted.
func FixedPoint(opts ...Option) Field {
	return &fixedPointField{newBase("FixedPoint", rules{allowed: integerOpts | optPlaces, required: optSize | optPlaces}, opts)}
}

func (f *fixedPointField) clone() Field {
	c := *f
	return &c
}

func (f *fixedPointField) check() error {
	return f.checkIntSize()
}

func (f *fixedPointField) units(v any) (int64, error) {
	switch x := v.(type) {
	case Fixed:
		return x.Rescale(f.o.places)
	case float64:
		return floatUnits(x, f.o.places)
	case float32:
		return floatUnits(float64(x), f.o.places)
	case string:
		fx, err := ParseFixed(x)
		if err != nil {
			return 0, errors.Value("%s", err)
		}
		return fx.Rescale(f.o.places)
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	return Fixed{Units: n}.Rescale(f.o.places)
}

func floatUnits(v float64, places int) (int64, error) {
	scaled := math.Round(v * float64(pow10[places]))
	if math.IsNaN(scaled) || scaled > math.MaxInt64 || scaled < math.MinInt64 {
		return 0, errors.Value("%v cannot be stored with %d places", v, places)
	}
	return int64(scaled), nil
}

func (f *fixedPointField) canonical(v any) (any, error) {
	n, err := f.units(v)
	if err != nil {
		return nil, err
	}
	return Fixed{Units: n, Places: f.o.places}, nil
}

func (f *fixedPointField) encode(b binding, v any) ([]byte, error) {
	n, err := f.units(v)
	if err != nil {
		return nil, err
	}
	return encodeInt(&f.o, f.literalSize(), n)
}

func (f *fixedPointField) decode(b binding, raw []byte) (any, error) {
	n, err := decodeInt(&f.o, raw)
	if err != nil {
		return nil, err
	}
	return Fixed{Units: n, Places: f.o.places}, nil
}
