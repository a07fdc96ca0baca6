// Package idl reads structure definitions from text and builds steel Schemas from them.
//
// A file holds any number of definitions. Each one is a "schema" (byte structure) or "bits"
// (bit structure) block:
//
//	// A bitmap file header.
//	schema Header endian=little encoding=ascii {
//		magic     fixedstring value=BM
//		size      integer size=4
//		_         reserved size=4
//		offset    integer size=4
//	}
//
//	bits Flags {
//		compressed flag
//		level      bits size=3
//		_          bitreserved size=4
//	}
//
//	schema Record {
//		flags   struct schema=Flags
//		count   integer size=2
//		names   list of=lenstring elem.size=1 size=@count
//		if @flags.compressed == true {
//			length  integer size=4
//			body    compressed of=bytes elem.size=remainder size=@length algorithm=zlib
//		}
//		sum     crc32
//	}
//
// A field line is a name, a kind and options. A name of "_" declares an anonymous reserved field.
// Options are key=value pairs with no spaces, or a bare key for Signed. Sizes are numbers,
// "remainder", or references to earlier fields written as @name, optionally with one arithmetic
// step such as @size-4. Options that start with "elem." apply to the element of a list or
// compressed field.
//
// Kinds: integer, fixedinteger, fixedpoint, bytes, payload, string, lenstring, fixedstring,
// fixedbytes, reserved, list, struct, compressed, checksum, crc32 and adler32. Bit structures
// use bits, flag, fixedbits and bitreserved. "of=" in a list or compressed field is a kind or the
// name of a schema defined earlier in the file.
package idl

import (
	"context"
	"fmt"
	"strings"

	"github.com/bearlytools/steel"
	"github.com/johnsiilver/halfpike"
	"github.com/pkg/errors"
)

// File is the result of parsing a definition file.
type File struct {
	// Schemas holds every schema by name.
	Schemas map[string]*steel.Schema
	// Order lists the schema names in the order they were defined.
	Order []string

	opts []steel.SchemaOption
	err  error
}

// Parse reads content and builds every schema in it. opts apply to every schema before the
// options given on its definition line.
func Parse(ctx context.Context, content string, opts ...steel.SchemaOption) (*File, error) {
	f := &File{Schemas: map[string]*steel.Schema{}, opts: opts}
	if err := halfpike.Parse(ctx, content, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Schema returns the named schema.
func (f *File) Schema(name string) (*steel.Schema, bool) {
	s, ok := f.Schemas[name]
	return s, ok
}

// Validate implements halfpike.Validator.
func (f *File) Validate() error {
	if f.err != nil {
		return f.err
	}
	if len(f.Schemas) == 0 {
		return fmt.Errorf("no schema definitions found")
	}
	return nil
}

// Start is the entry point for halfpike parsing.
func (f *File) Start(ctx context.Context, p *halfpike.Parser) halfpike.ParseFn {
	return f.findNext
}

// words returns the values of a line up to any comment, without blanks.
func words(line halfpike.Line) []string {
	var out []string
	for _, item := range line.Items {
		v := strings.TrimSpace(item.Val)
		if v == "" {
			continue
		}
		if strings.HasPrefix(v, "//") {
			break
		}
		out = append(out, v)
	}
	return out
}

// nextWords returns the next line that has something other than a comment on it.
func nextWords(p *halfpike.Parser) (halfpike.Line, []string, bool) {
	for {
		line := p.Next()
		w := words(line)
		if len(w) > 0 {
			return line, w, true
		}
		if p.EOF(line) {
			return line, nil, false
		}
	}
}

func (f *File) findNext(ctx context.Context, p *halfpike.Parser) halfpike.ParseFn {
	line, w, ok := nextWords(p)
	if !ok {
		return nil
	}
	switch w[0] {
	case "schema", "bits":
		if err := f.parseSchema(p, line, w); err != nil {
			f.err = err
			return p.Errorf("%s", err)
		}
		return f.findNext
	}
	if strings.EqualFold(w[0], "schema") || strings.EqualFold(w[0], "bits") {
		return p.Errorf("[Line %d] error: %q keyword found, but it is required to be %q", line.LineNum, w[0], strings.ToLower(w[0]))
	}
	return p.Errorf("[Line %d] error: got %q, want 'schema' or 'bits'", line.LineNum, w[0])
}

// parseSchema reads one definition, from the line holding its name through its closing brace.
func (f *File) parseSchema(p *halfpike.Parser, line halfpike.Line, w []string) error {
	if len(w) < 3 || w[len(w)-1] != "{" {
		return errors.Errorf("[Line %d] error: got %q, want '%s {{Name}} [options] {'", line.LineNum, line.Raw, w[0])
	}
	name := w[1]
	if err := validIdent(name); err != nil {
		return errors.Wrapf(err, "[Line %d] error", line.LineNum)
	}
	if _, ok := f.Schemas[name]; ok {
		return errors.Errorf("[Line %d] error: schema %q is defined twice", line.LineNum, name)
	}

	opts := append([]steel.SchemaOption(nil), f.opts...)
	for _, kv := range w[2 : len(w)-1] {
		o, err := schemaOption(kv)
		if err != nil {
			return errors.Wrapf(err, "[Line %d] error", line.LineNum)
		}
		opts = append(opts, o)
	}

	var b *steel.Builder
	if w[0] == "bits" {
		b = steel.DefineBits(name, opts...)
	} else {
		b = steel.Define(name, opts...)
	}

	specs, err := f.parseBody(p, line, false)
	if err != nil {
		return err
	}
	for _, s := range specs {
		s.add(b)
	}
	s, err := b.Build()
	if err != nil {
		return errors.Wrapf(err, "[Line %d] error: schema %s", line.LineNum, name)
	}
	f.Schemas[name] = s
	f.Order = append(f.Order, name)
	return nil
}

// spec is a field line or a condition group waiting to be added to a Builder.
type spec struct {
	name  string
	field steel.Field
	cond  *steel.Condition
	group []spec
}

func (s spec) add(b *steel.Builder) {
	switch {
	case s.cond != nil:
		group := s.group
		b.If(*s.cond, func(g *steel.Builder) {
			for _, gs := range group {
				gs.add(g)
			}
		})
	case s.name == "_":
		b.Skip(s.field)
	default:
		b.Field(s.name, s.field)
	}
}

// parseBody reads field lines until the closing brace.
func (f *File) parseBody(p *halfpike.Parser, start halfpike.Line, nested bool) ([]spec, error) {
	var specs []spec
	for {
		line, w, ok := nextWords(p)
		if !ok {
			return nil, errors.Errorf("[Line %d] error: EOF reached before the closing '}'", start.LineNum)
		}
		switch {
		case w[0] == "}":
			if len(w) > 1 {
				return nil, errors.Errorf("[Line %d] error: got %q after '}', which was unexpected", line.LineNum, strings.Join(w[1:], " "))
			}
			return specs, nil
		case w[0] == "if":
			if nested {
				return nil, errors.Errorf("[Line %d] error: 'if' blocks cannot be nested", line.LineNum)
			}
			if len(w) != 5 || w[4] != "{" {
				return nil, errors.Errorf("[Line %d] error: got %q, want 'if {{left}} {{comparator}} {{right}} {'", line.LineNum, line.Raw)
			}
			cmp, ok := steel.ParseComparator(w[2])
			if !ok {
				return nil, errors.Errorf("[Line %d] error: unknown comparator %q", line.LineNum, w[2])
			}
			cond := steel.When(operand(w[1]), cmp, operand(w[3]))
			group, err := f.parseBody(p, line, true)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec{cond: &cond, group: group})
		default:
			if len(w) < 2 {
				return nil, errors.Errorf("[Line %d] error: got %q, want '{{name}} {{kind}} [options]'", line.LineNum, line.Raw)
			}
			if w[0] != "_" {
				if err := validField(w[0]); err != nil {
					return nil, errors.Wrapf(err, "[Line %d] error", line.LineNum)
				}
			}
			fld, err := f.field(w[1], w[2:])
			if err != nil {
				return nil, errors.Wrapf(err, "[Line %d] error: field %s", line.LineNum, w[0])
			}
			specs = append(specs, spec{name: w[0], field: fld})
		}
	}
}

// operand turns one side of a condition into a value or a reference.
func operand(s string) any {
	if strings.HasPrefix(s, "@") {
		return steel.Ref(s[1:])
	}
	return parseValue(s)
}

func validIdent(s string) error {
	for i, r := range s {
		switch {
		case r == '_', 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case i > 0 && '0' <= r && r <= '9':
		default:
			return fmt.Errorf("%q is not a valid name", s)
		}
	}
	return nil
}

func validField(s string) error {
	if s == "_" || strings.HasPrefix(s, "_reserved_") {
		return fmt.Errorf("%q is reserved for anonymous fields", s)
	}
	return validIdent(s)
}
