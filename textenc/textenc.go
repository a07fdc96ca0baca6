// Package textenc converts between Go strings and the byte encodings binary formats
// store text in.
package textenc

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Default is the encoding used when a field does not name one.
const Default = "ascii"

var codecs = map[string]encoding.Encoding{
	"latin-1":      charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"cp437":        charmap.CodePage437,
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
	"utf-16le":     unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	"utf-16be":     unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
}

func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "us-ascii":
		return "ascii"
	case "utf8":
		return "utf-8"
	case "latin1":
		return "latin-1"
	}
	return name
}

// Known reports whether name is an encoding Encode and Decode understand.
func Known(name string) bool {
	switch n := normalize(name); n {
	case "ascii", "utf-8":
		return true
	default:
		_, ok := codecs[n]
		return ok
	}
}

// Encode returns s in the named encoding.
func Encode(name, s string) ([]byte, error) {
	switch n := normalize(name); n {
	case "ascii":
		for i := 0; i < len(s); i++ {
			if s[i] >= utf8.RuneSelf {
				return nil, fmt.Errorf("%q is not ascii at byte %d", s, i)
			}
		}
		return []byte(s), nil
	case "utf-8":
		if !utf8.ValidString(s) {
			return nil, fmt.Errorf("%q is not valid utf-8", s)
		}
		return []byte(s), nil
	default:
		enc, ok := codecs[n]
		if !ok {
			return nil, fmt.Errorf("unknown text encoding %q", name)
		}
		b, err := enc.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("cannot encode %q as %s: %w", s, n, err)
		}
		return b, nil
	}
}

// Decode returns b, stored in the named encoding, as a string.
func Decode(name string, b []byte) (string, error) {
	switch n := normalize(name); n {
	case "ascii":
		for i, c := range b {
			if c >= utf8.RuneSelf {
				return "", fmt.Errorf("byte %#x at %d is not ascii", c, i)
			}
		}
		return string(b), nil
	case "utf-8":
		if !utf8.Valid(b) {
			return "", fmt.Errorf("%q is not valid utf-8", b)
		}
		return string(b), nil
	default:
		enc, ok := codecs[n]
		if !ok {
			return "", fmt.Errorf("unknown text encoding %q", name)
		}
		out, err := enc.NewDecoder().Bytes(b)
		if err != nil {
			return "", fmt.Errorf("cannot decode %q as %s: %w", b, n, err)
		}
		return string(out), nil
	}
}
