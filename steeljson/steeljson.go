// Package steeljson renders steel instances as JSON and builds instances from JSON.
//
// Structures become objects keyed by field name, in field order. Fields without a value, such as
// those in a conditional group whose condition is false, are left out. Bytes are base64 unless
// WithHexBytes is set. Chunk lists become arrays of {"tag": ..., "data": {...}} objects, with
// "payload" in place of "data" for chunks whose tag is not known.
package steeljson

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"iter"

	"github.com/bearlytools/steel"
	"github.com/bearlytools/steel/errors"
	"github.com/go-json-experiment/json/jsontext"
)

// TokenKind is the kind of a Token.
type TokenKind uint8

const (
	TokenUnknown TokenKind = iota
	TokenStructStart
	TokenStructEnd
	TokenListStart
	TokenListEnd
	TokenField
)

// Token is one step of walking an instance. StructStart, ListStart and Field tokens carry the
// field name, which is empty for list elements and the top level structure.
type Token struct {
	Kind  TokenKind
	Name  string
	Value any
	// Err is set on the last token when the walk failed.
	Err error
}

// Walk returns the tokens of in, reading it as needed.
func Walk(ctx context.Context, in *steel.Instance) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		w := walker{ctx: ctx, yield: yield}
		if err := w.structure("", in); err != nil && !w.stopped {
			yield(Token{Err: err})
		}
	}
}

type walker struct {
	ctx     context.Context
	yield   func(Token) bool
	stopped bool
}

var errStopped = fmt.Errorf("walk stopped")

func (w *walker) emit(t Token) error {
	if w.stopped {
		return errStopped
	}
	if !w.yield(t) {
		w.stopped = true
		return errStopped
	}
	return nil
}

func (w *walker) structure(name string, in *steel.Instance) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if err := w.emit(Token{Kind: TokenStructStart, Name: name}); err != nil {
		return err
	}
	for _, field := range in.Schema().Fields() {
		v, err := in.Get(field)
		if err != nil {
			if errors.Is(err, errors.ErrAbsent) {
				continue
			}
			return err
		}
		if err := w.value(field, v); err != nil {
			return err
		}
	}
	return w.emit(Token{Kind: TokenStructEnd})
}

func (w *walker) value(name string, v any) error {
	switch x := v.(type) {
	case *steel.Instance:
		return w.structure(name, x)
	case steel.Chunks:
		if err := w.emit(Token{Kind: TokenListStart, Name: name}); err != nil {
			return err
		}
		for _, c := range x {
			if err := w.chunk(c); err != nil {
				return err
			}
		}
		return w.emit(Token{Kind: TokenListEnd})
	case []any:
		if err := w.emit(Token{Kind: TokenListStart, Name: name}); err != nil {
			return err
		}
		for _, e := range x {
			if err := w.value("", e); err != nil {
				return err
			}
		}
		return w.emit(Token{Kind: TokenListEnd})
	}
	return w.emit(Token{Kind: TokenField, Name: name, Value: v})
}

func (w *walker) chunk(c *steel.Chunk) error {
	if err := w.emit(Token{Kind: TokenStructStart}); err != nil {
		return err
	}
	if err := w.emit(Token{Kind: TokenField, Name: "tag", Value: c.Tag}); err != nil {
		return err
	}
	if c.Data != nil {
		if err := w.structure("data", c.Data); err != nil {
			return err
		}
	} else if err := w.emit(Token{Kind: TokenField, Name: "payload", Value: c.Payload}); err != nil {
		return err
	}
	return w.emit(Token{Kind: TokenStructEnd})
}

type marshalOptions struct {
	hexBytes bool
	indent   string
}

// MarshalOption is an option for Marshal and MarshalWriter.
type MarshalOption func(marshalOptions) (marshalOptions, error)

// WithHexBytes writes bytes as hex strings instead of base64.
func WithHexBytes(use bool) MarshalOption {
	return func(m marshalOptions) (marshalOptions, error) {
		m.hexBytes = use
		return m, nil
	}
}

// WithIndent writes one value per line, indented with indent.
func WithIndent(indent string) MarshalOption {
	return func(m marshalOptions) (marshalOptions, error) {
		for _, r := range indent {
			if r != ' ' && r != '\t' {
				return m, fmt.Errorf("indent may only hold spaces and tabs, got %q", indent)
			}
		}
		m.indent = indent
		return m, nil
	}
}

// Marshal returns in as JSON.
func Marshal(ctx context.Context, in *steel.Instance, options ...MarshalOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := MarshalWriter(ctx, in, &buf, options...); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalWriter writes in as JSON to w.
func MarshalWriter(ctx context.Context, in *steel.Instance, w io.Writer, options ...MarshalOption) error {
	opts := marshalOptions{}
	for _, opt := range options {
		var err error
		if opts, err = opt(opts); err != nil {
			return err
		}
	}

	var jopts []jsontext.Options
	if opts.indent != "" {
		jopts = append(jopts, jsontext.Multiline(true), jsontext.WithIndent(opts.indent))
	}
	enc := jsontext.NewEncoder(w, jopts...)

	for tok := range Walk(ctx, in) {
		if tok.Err != nil {
			return tok.Err
		}
		if tok.Name != "" {
			if err := enc.WriteToken(jsontext.String(tok.Name)); err != nil {
				return err
			}
		}
		var err error
		switch tok.Kind {
		case TokenStructStart:
			err = enc.WriteToken(jsontext.BeginObject)
		case TokenStructEnd:
			err = enc.WriteToken(jsontext.EndObject)
		case TokenListStart:
			err = enc.WriteToken(jsontext.BeginArray)
		case TokenListEnd:
			err = enc.WriteToken(jsontext.EndArray)
		case TokenField:
			err = writeValue(enc, tok.Value, opts)
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", tok.Name, err)
		}
	}
	return nil
}

func writeValue(enc *jsontext.Encoder, v any, opts marshalOptions) error {
	switch x := v.(type) {
	case nil:
		return enc.WriteToken(jsontext.Null)
	case bool:
		return enc.WriteToken(jsontext.Bool(x))
	case int64:
		return enc.WriteToken(jsontext.Int(x))
	case uint64:
		return enc.WriteToken(jsontext.Uint(x))
	case float64:
		return enc.WriteToken(jsontext.Float(x))
	case string:
		return enc.WriteToken(jsontext.String(x))
	case []byte:
		if opts.hexBytes {
			return enc.WriteToken(jsontext.String(hex.EncodeToString(x)))
		}
		return enc.WriteToken(jsontext.String(base64.StdEncoding.EncodeToString(x)))
	case fmt.Stringer:
		return enc.WriteToken(jsontext.String(x.String()))
	}
	return fmt.Errorf("cannot write %T as JSON", v)
}
