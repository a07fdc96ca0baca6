package idl

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/bearlytools/steel"
	"github.com/bearlytools/steel/compress"
	"github.com/bearlytools/steel/digest"
)

// opts is the parsed option list of a field line.
type opts struct {
	steel []steel.Option
	elem  []string
	value string
	has   bool
	of    string
	sch   string
}

var endians = map[string]steel.Endianness{
	"big":    steel.BigEndian,
	"little": steel.LittleEndian,
}

var signings = map[string]steel.SigningScheme{
	"sign-magnitude":  steel.SignMagnitude,
	"ones-complement": steel.OnesComplement,
	"twos-complement": steel.TwosComplement,
}

func schemaOption(kv string) (steel.SchemaOption, error) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok {
		return nil, fmt.Errorf("schema option %q must be key=value", kv)
	}
	switch k {
	case "endian":
		e, ok := endians[v]
		if !ok {
			return nil, fmt.Errorf("endian must be big or little, got %q", v)
		}
		return steel.WithEndianness(e), nil
	case "encoding":
		return steel.WithEncoding(v), nil
	}
	return nil, fmt.Errorf("unknown schema option %q", k)
}

func parseOpts(list []string) (opts, error) {
	var o opts
	for _, kv := range list {
		if strings.HasPrefix(kv, "elem.") {
			o.elem = append(o.elem, strings.TrimPrefix(kv, "elem."))
			continue
		}
		k, v, hasValue := strings.Cut(kv, "=")
		if !hasValue && k != "signed" {
			return o, fmt.Errorf("option %q must be key=value", kv)
		}
		switch k {
		case "size":
			p, err := parseSize(v)
			if err != nil {
				return o, err
			}
			o.steel = append(o.steel, steel.SizeFrom(p))
		case "endian":
			e, ok := endians[v]
			if !ok {
				return o, fmt.Errorf("endian must be big or little, got %q", v)
			}
			o.steel = append(o.steel, steel.Endian(e))
		case "signed":
			o.steel = append(o.steel, steel.Signed())
		case "signing":
			s, ok := signings[v]
			if !ok {
				return o, fmt.Errorf("unknown signing %q", v)
			}
			o.steel = append(o.steel, steel.Signing(s))
		case "encoding":
			o.steel = append(o.steel, steel.Encoding(v))
		case "pad", "term":
			b, err := parseHex(v)
			if err != nil {
				return o, fmt.Errorf("%s: %w", k, err)
			}
			if k == "pad" {
				o.steel = append(o.steel, steel.Padding(b))
			} else {
				o.steel = append(o.steel, steel.Terminator(b))
			}
		case "default":
			o.steel = append(o.steel, steel.Default(parseValue(v)))
		case "choices":
			var values []any
			for _, c := range strings.Split(v, ",") {
				values = append(values, parseValue(c))
			}
			o.steel = append(o.steel, steel.Choices(values...))
		case "label":
			o.steel = append(o.steel, steel.Label(strings.ReplaceAll(v, "_", " ")))
		case "first":
			o.steel = append(o.steel, steel.First(v))
		case "last":
			o.steel = append(o.steel, steel.Last(v))
		case "digest":
			d, ok := digest.Lookup(v)
			if !ok {
				return o, fmt.Errorf("unknown digest %q, want one of %s", v, strings.Join(digest.Names(), ", "))
			}
			o.steel = append(o.steel, steel.Digest(d))
		case "algorithm":
			a, ok := compress.Lookup(v)
			if !ok {
				return o, fmt.Errorf("unknown compression algorithm %q", v)
			}
			o.steel = append(o.steel, steel.Algorithm(a))
		case "places":
			n, err := strconv.Atoi(v)
			if err != nil {
				return o, fmt.Errorf("places must be a number, got %q", v)
			}
			o.steel = append(o.steel, steel.Places(n))
		case "value":
			o.value, o.has = v, true
		case "of":
			o.of = v
		case "schema":
			o.sch = v
		default:
			return o, fmt.Errorf("unknown option %q", k)
		}
	}
	return o, nil
}

// field builds a field of the given kind.
func (f *File) field(kind string, list []string) (steel.Field, error) {
	o, err := parseOpts(list)
	if err != nil {
		return nil, err
	}
	needValue := func() error {
		if !o.has {
			return fmt.Errorf("%s needs value=", kind)
		}
		return nil
	}

	switch kind {
	case "integer":
		return steel.Integer(o.steel...), nil
	case "fixedinteger", "fixedbits":
		if err := needValue(); err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(o.value, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("value must be a number, got %q", o.value)
		}
		if kind == "fixedbits" {
			return steel.FixedBits(n, o.steel...), nil
		}
		return steel.FixedInteger(n, o.steel...), nil
	case "fixedpoint":
		return steel.FixedPoint(o.steel...), nil
	case "bytes":
		return steel.Bytes(o.steel...), nil
	case "payload":
		return steel.Payload(o.steel...), nil
	case "string":
		return steel.String(o.steel...), nil
	case "lenstring":
		return steel.LengthIndexedString(o.steel...), nil
	case "fixedstring":
		if err := needValue(); err != nil {
			return nil, err
		}
		return steel.FixedString(o.value, o.steel...), nil
	case "fixedbytes":
		if err := needValue(); err != nil {
			return nil, err
		}
		b, err := parseHex(o.value)
		if err != nil {
			return nil, err
		}
		return steel.FixedBytes(b, o.steel...), nil
	case "reserved":
		return steel.Reserved(o.steel...), nil
	case "checksum":
		return steel.Checksum(o.steel...), nil
	case "crc32":
		return steel.CRC32(o.steel...), nil
	case "adler32":
		return steel.Adler32(o.steel...), nil
	case "bits":
		return steel.Bits(o.steel...), nil
	case "flag":
		return steel.Flag(o.steel...), nil
	case "bitreserved":
		return steel.BitReserved(o.steel...), nil
	case "struct":
		s, ok := f.Schemas[o.sch]
		if !ok {
			return nil, fmt.Errorf("struct needs schema= naming a schema defined earlier, got %q", o.sch)
		}
		return steel.SubStructure(s, o.steel...), nil
	case "list", "compressed":
		elem, err := f.element(o)
		if err != nil {
			return nil, err
		}
		if kind == "list" {
			return steel.List(elem, o.steel...), nil
		}
		return steel.Compressed(elem, o.steel...), nil
	}
	return nil, fmt.Errorf("unknown field kind %q", kind)
}

// element builds the inner field of a list or compressed field.
func (f *File) element(o opts) (steel.Field, error) {
	if o.of == "" {
		return nil, fmt.Errorf("needs of= naming the element kind or schema")
	}
	if s, ok := f.Schemas[o.of]; ok {
		if len(o.elem) > 0 {
			return nil, fmt.Errorf("elem. options cannot be used with schema %s", o.of)
		}
		return steel.SubStructure(s), nil
	}
	switch o.of {
	case "list", "compressed":
		return nil, fmt.Errorf("%s elements are not supported", o.of)
	}
	elem, err := f.field(o.of, o.elem)
	if err != nil {
		return nil, fmt.Errorf("element: %w", err)
	}
	return elem, nil
}

// parseSize reads a size: a number, "remainder" or a reference with at most one arithmetic step.
func parseSize(s string) (steel.Param, error) {
	if s == "remainder" {
		return steel.Remainder, nil
	}
	if !strings.HasPrefix(s, "@") {
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return steel.Param{}, fmt.Errorf("size %q is not a number, a reference or remainder", s)
		}
		return steel.Lit(n), nil
	}
	ref := s[1:]
	i := strings.IndexAny(ref, "+-*/")
	if i < 0 {
		return steel.Ref(ref), nil
	}
	n, err := strconv.ParseInt(ref[i+1:], 0, 64)
	if err != nil {
		return steel.Param{}, fmt.Errorf("size %q: %q is not a number", s, ref[i+1:])
	}
	left, right := steel.Ref(ref[:i]), steel.Lit(n)
	switch ref[i] {
	case '+':
		return steel.Add(left, right), nil
	case '-':
		return steel.Sub(left, right), nil
	case '*':
		return steel.Mul(left, right), nil
	}
	return steel.Div(left, right), nil
}

func parseHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		return nil, fmt.Errorf("%q must be hex starting with 0x", s)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("%q is not valid hex: %w", s, err)
	}
	return b, nil
}

// parseValue reads a literal: true, false, a number, 0x hex bytes, or else a string.
// Double quotes around a string are removed.
func parseValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if strings.HasPrefix(s, "0x") {
		if b, err := parseHex(s); err == nil {
			return b
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if uq, err := strconv.Unquote(s); err == nil {
		return uq
	}
	return s
}
