package steel

import (
	"bytes"
	"fmt"

	"github.com/bearlytools/steel/errors"
	"github.com/bearlytools/steel/textenc"
)

func toBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case nil:
		return nil, nil
	}
	return nil, errors.Value("%v (%T) is not bytes", v, v)
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return "", errors.Value("%v (%T) is not a string", v, v)
}

// wantSize resolves the size a value must be encoded at. It returns -1 when the value is free
// to take its natural size: the size is tracked from a sibling, is Remainder, or refers to a
// field that has no value yet.
func (f *fieldBase) wantSize(b binding) (int64, error) {
	if !f.o.has(optSize) || f.tracked() || f.o.size.isRemainder() {
		return -1, nil
	}
	n, err := f.size(b)
	if err != nil {
		if errors.Is(err, errors.ErrAbsent) {
			return -1, nil
		}
		return 0, err
	}
	return n, nil
}

type bytesField struct {
	fieldBase
}

// Bytes is raw data of Size bytes. Values are []byte.
func Bytes(opts ...Option) Field {
	return &bytesField{newBase("Bytes", rules{allowed: optSize | commonOpts, required: optSize}, opts)}
}

// Payload is the body of a chunk. It stores like Bytes and is the field a ChunkFormat hands
// to the Schema of a chunk type.
func Payload(opts ...Option) Field {
	return &bytesField{newBase("Payload", rules{allowed: optSize | commonOpts, required: optSize}, opts)}
}

func (f *bytesField) clone() Field {
	c := *f
	return &c
}

func (f *bytesField) canonical(v any) (any, error) {
	return toBytes(v)
}

func (f *bytesField) encode(b binding, v any) ([]byte, error) {
	data, err := toBytes(v)
	if err != nil {
		return nil, err
	}
	n, err := f.wantSize(b)
	if err != nil {
		return nil, err
	}
	if n >= 0 && int64(len(data)) != n {
		return nil, errors.Value("wanted %d bytes, got %d", n, len(data))
	}
	return data, nil
}

func (f *bytesField) decode(b binding, raw []byte) (any, error) {
	return bytes.Clone(raw), nil
}

type stringField struct {
	fieldBase
}

// String is text. With a Size it occupies exactly that many bytes, filled out with Padding. Without
// one it runs up to and including its Terminator. Values are string.
func String(opts ...Option) Field {
	return &stringField{newBase("String", rules{allowed: stringOpts}, opts)}
}

func (f *stringField) clone() Field {
	c := *f
	return &c
}

func (f *stringField) check() error {
	if !f.o.has(optSize) && len(f.o.term()) == 0 {
		return fmt.Errorf("needs a Size or a non-empty Terminator")
	}
	return nil
}

func (f *stringField) canonical(v any) (any, error) {
	return toString(v)
}

func (f *stringField) read(b binding, src source) ([]byte, any, error) {
	if f.o.has(optSize) {
		return readSized(f, b, src)
	}
	term := f.o.term()
	var raw []byte
	for !bytes.HasSuffix(raw, term) {
		c, err := src.read(1)
		if err != nil {
			return nil, nil, err
		}
		raw = append(raw, c[0])
	}
	v, err := f.decode(b, raw)
	return raw, v, err
}

// readSized is the default read for a field with a size parameter.
func readSized(f Field, b binding, src source) ([]byte, any, error) {
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
	return raw, v, err
}

func trimRepeated(b, suffix []byte) []byte {
	if len(suffix) == 0 {
		return b
	}
	for bytes.HasSuffix(b, suffix) {
		b = b[:len(b)-len(suffix)]
	}
	return b
}

func (f *stringField) decode(b binding, raw []byte) (any, error) {
	if f.o.has(optSize) {
		raw = trimRepeated(raw, f.o.term())
		raw = trimRepeated(raw, f.o.pad())
	} else {
		raw = bytes.TrimSuffix(raw, f.o.term())
	}
	s, err := textenc.Decode(f.o.textEncoding(), raw)
	if err != nil {
		return nil, errors.Value("%s", err)
	}
	return s, nil
}

func (f *stringField) encode(b binding, v any) ([]byte, error) {
	s, err := toString(v)
	if err != nil {
		return nil, err
	}
	data, err := textenc.Encode(f.o.textEncoding(), s)
	if err != nil {
		return nil, errors.Value("%s", err)
	}
	if !f.o.has(optSize) {
		return append(data, f.o.term()...), nil
	}
	n, err := f.wantSize(b)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return data, nil
	}
	if int64(len(data)) > n {
		return nil, errors.Value("%q is longer than %d bytes", s, n)
	}
	pad := f.o.pad()
	if int64(len(data)) < n && len(pad) == 0 {
		return nil, errors.Value("%q is shorter than %d bytes and there is no padding", s, n)
	}
	for int64(len(data)) < n {
		data = append(data, pad...)
	}
	return data[:n], nil
}

type lengthIndexedStringField struct {
	fieldBase
}

// LengthIndexedString is text preceded by its length in bytes. Size is the size of the
// length, 1 through 8 bytes.
func LengthIndexedString(opts ...Option) Field {
	r := rules{allowed: optSize | optEndian | optEncoding | commonOpts, required: optSize}
	return &lengthIndexedStringField{newBase("LengthIndexedString", r, opts)}
}

func (f *lengthIndexedStringField) clone() Field {
	c := *f
	return &c
}

func (f *lengthIndexedStringField) check() error {
	return f.checkIntSize()
}

func (f *lengthIndexedStringField) canonical(v any) (any, error) {
	return toString(v)
}

func (f *lengthIndexedStringField) read(b binding, src source) ([]byte, any, error) {
	prefix, err := src.read(f.literalSize())
	if err != nil {
		return nil, nil, err
	}
	n, err := decodeInt(&f.o, prefix)
	if err != nil {
		return nil, nil, err
	}
	if n < 0 {
		return nil, nil, errors.Value("negative length %d", n)
	}
	content, err := src.read(int(n))
	if err != nil {
		return nil, nil, err
	}
	raw := append(bytes.Clone(prefix), content...)
	v, err := f.decode(b, raw)
	return raw, v, err
}

func (f *lengthIndexedStringField) decode(b binding, raw []byte) (any, error) {
	size := f.literalSize()
	if len(raw) < size {
		return nil, errors.Value("wanted at least %d bytes, got %d", size, len(raw))
	}
	n, err := decodeInt(&f.o, raw[:size])
	if err != nil {
		return nil, err
	}
	if int64(len(raw)-size) != n {
		return nil, errors.Value("length says %d bytes, got %d", n, len(raw)-size)
	}
	s, err := textenc.Decode(f.o.textEncoding(), raw[size:])
	if err != nil {
		return nil, errors.Value("%s", err)
	}
	return s, nil
}

func (f *lengthIndexedStringField) encode(b binding, v any) ([]byte, error) {
	s, err := toString(v)
	if err != nil {
		return nil, err
	}
	data, err := textenc.Encode(f.o.textEncoding(), s)
	if err != nil {
		return nil, errors.Value("%s", err)
	}
	prefix, err := encodeInt(&f.o, f.literalSize(), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return append(prefix, data...), nil
}

type fixedStringField struct {
	fieldBase
	text   string
	data   []byte
	isText bool
}

// FixedString is text that must always be s, such as a signature at the start of a file.
// It is checked as soon as it is read, so nothing after a wrong signature is read. The
// encoding defaults to ASCII.
func FixedString(s string, opts ...Option) Field {
	return &fixedStringField{
		fieldBase: newBase("FixedString", rules{allowed: optEncoding | optLabel}, opts),
		text:      s,
		isText:    true,
	}
}

// FixedBytes is like FixedString for raw bytes. Values are []byte.
func FixedBytes(b []byte, opts ...Option) Field {
	return &fixedStringField{
		fieldBase: newBase("FixedBytes", rules{allowed: optLabel}, opts),
		data:      bytes.Clone(b),
	}
}

func (f *fixedStringField) clone() Field {
	c := *f
	return &c
}

func (f *fixedStringField) encoded() ([]byte, error) {
	if !f.isText {
		return f.data, nil
	}
	return textenc.Encode(f.o.textEncoding(), f.text)
}

func (f *fixedStringField) value() any {
	if f.isText {
		return f.text
	}
	return bytes.Clone(f.data)
}

func (f *fixedStringField) check() error {
	_, err := f.encoded()
	return err
}

func (f *fixedStringField) derive(b binding) (any, error) {
	return f.value(), nil
}

func (f *fixedStringField) read(b binding, src source) ([]byte, any, error) {
	want, err := f.encoded()
	if err != nil {
		return nil, nil, err
	}
	raw, err := src.read(len(want))
	if err != nil {
		return nil, nil, err
	}
	v, err := f.decode(b, raw)
	return raw, v, err
}

func (f *fixedStringField) decode(b binding, raw []byte) (any, error) {
	want, err := f.encoded()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(raw, want) {
		return nil, errors.Value("expected %q, got %q", want, raw)
	}
	return f.value(), nil
}

func (f *fixedStringField) encode(b binding, v any) ([]byte, error) {
	got, err := toBytes(v)
	if err != nil {
		return nil, err
	}
	if f.isText {
		if string(got) != f.text {
			return nil, errors.Value("expected %q, got %q", f.text, got)
		}
		return f.encoded()
	}
	if !bytes.Equal(got, f.data) {
		return nil, errors.Value("expected %q, got %q", f.data, got)
	}
	return f.data, nil
}

type reservedField struct {
	fieldBase
}

// Reserved is Size bytes that are written as zeros and ignored when read. It has no name,
// add it to a schema with Builder.Skip.
func Reserved(opts ...Option) Field {
	return &reservedField{newBase("Reserved", rules{allowed: optSize | optLabel, required: optSize}, opts)}
}

func (f *reservedField) clone() Field {
	c := *f
	return &c
}

func (f *reservedField) derive(b binding) (any, error) {
	return nil, nil
}

func (f *reservedField) encode(b binding, v any) ([]byte, error) {
	n, err := f.size(b)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	return make([]byte, n), nil
}

func (f *reservedField) decode(b binding, raw []byte) (any, error) {
	return nil, nil
}
