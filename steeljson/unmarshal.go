package steeljson

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/bearlytools/steel"
	"github.com/go-json-experiment/json/jsontext"
)

// Unmarshal builds an instance of s from JSON written by Marshal. options must match the ones
// given to Marshal; only WithHexBytes has an effect. Chunk lists cannot be read back.
func Unmarshal(data []byte, s *steel.Schema, options ...MarshalOption) (*steel.Instance, error) {
	opts := marshalOptions{}
	for _, opt := range options {
		var err error
		if opts, err = opt(opts); err != nil {
			return nil, err
		}
	}
	dec := jsontext.NewDecoder(bytes.NewReader(data))
	u := unmarshaler{dec: dec, opts: opts}
	m, err := u.object(s)
	if err != nil {
		return nil, err
	}
	return steel.NewWith(s, m)
}

type unmarshaler struct {
	dec  *jsontext.Decoder
	opts marshalOptions
}

func (u *unmarshaler) expect(kind jsontext.Kind) error {
	tok, err := u.dec.ReadToken()
	if err != nil {
		return err
	}
	if tok.Kind() != kind {
		return fmt.Errorf("got JSON %s, want %s", tok.Kind(), kind)
	}
	return nil
}

// object reads a JSON object into the values of a structure of schema s.
func (u *unmarshaler) object(s *steel.Schema) (map[string]any, error) {
	if err := u.expect('{'); err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}
	m := map[string]any{}
	for u.dec.PeekKind() != '}' {
		tok, err := u.dec.ReadToken()
		if err != nil {
			return nil, err
		}
		name := tok.String()
		f, ok := s.Field(name)
		if !ok {
			return nil, fmt.Errorf("%s has no field %q", s.Name(), name)
		}
		v, err := u.value(f)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.Name(), name, err)
		}
		if v != nil {
			m[name] = v
		}
	}
	if _, err := u.dec.ReadToken(); err != nil {
		return nil, err
	}
	return m, nil
}

func (u *unmarshaler) value(f steel.Field) (any, error) {
	if sub, ok := steel.StructSchema(f); ok {
		return u.object(sub)
	}
	switch f.Kind() {
	case "ChunkList":
		return nil, fmt.Errorf("chunk lists cannot be read from JSON")
	case "Compressed":
		inner, _ := steel.Inner(f)
		return u.value(inner)
	case "List":
		elem, _ := steel.Inner(f)
		if err := u.expect('['); err != nil {
			return nil, err
		}
		items := []any{}
		for u.dec.PeekKind() != ']' {
			v, err := u.value(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", len(items), err)
			}
			items = append(items, v)
		}
		if _, err := u.dec.ReadToken(); err != nil {
			return nil, err
		}
		return items, nil
	}

	tok, err := u.dec.ReadToken()
	if err != nil {
		return nil, err
	}
	switch tok.Kind() {
	case 'n':
		return nil, nil
	case 't', 'f':
		return tok.Bool(), nil
	case '0':
		raw := tok.String()
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n, nil
		}
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			return n, nil
		}
		return strconv.ParseFloat(raw, 64)
	case '"':
		switch f.Kind() {
		case "Bytes", "Payload", "FixedBytes":
			if u.opts.hexBytes {
				return hex.DecodeString(tok.String())
			}
			return base64.StdEncoding.DecodeString(tok.String())
		}
		return tok.String(), nil
	}
	return nil, fmt.Errorf("unexpected JSON %s for a %s field", tok.Kind(), f.Kind())
}
