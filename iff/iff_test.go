package iff

import (
	"bytes"
	"testing"

	"github.com/bearlytools/steel"
	"github.com/bearlytools/steel/errors"
)

var name = steel.Define("Name").
	Field("text", steel.String(steel.SizeFrom(steel.Remainder))).
	MustBuild()

var nameType = NewType("NAME", name)

func form(chunks ...string) []byte {
	var body bytes.Buffer
	body.WriteString("TEST")
	for _, c := range chunks {
		body.WriteString(c)
	}
	n := body.Len()
	return append([]byte{'F', 'O', 'R', 'M', byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}, body.Bytes()...)
}

func TestReadForm(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		wantTexts []string
		wantErr   bool
	}{
		{
			name:      "Success: known chunk",
			data:      form("NAME\x00\x00\x00\x04abcd"),
			wantTexts: []string{"abcd"},
		},
		{
			name:      "Success: unknown chunk is skipped",
			data:      form("NAME\x00\x00\x00\x04abcd", "JUNK\x00\x00\x00\x02xy"),
			wantTexts: []string{"abcd"},
		},
		{
			name:      "Success: empty id ends the chunks",
			data:      form("NAME\x00\x00\x00\x04abcd", "\x00\x00\x00\x00"),
			wantTexts: []string{"abcd"},
		},
		{
			name:    "Error: not a FORM",
			data:    []byte("FROM\x00\x00\x00\x04TEST"),
			wantErr: true,
		},
		{
			name:    "Error: chunk runs past the form",
			data:    form("NAME\x00\x00\x00\x09abcd"),
			wantErr: true,
		},
		{
			name:    "Error: known chunk repeated",
			data:    form("NAME\x00\x00\x00\x01a", "NAME\x00\x00\x00\x01b"),
			wantErr: true,
		},
	}

	for _, test := range tests {
		f, err := ReadForm(bytes.NewReader(test.data), nameType)
		switch {
		case err == nil && test.wantErr:
			t.Errorf("TestReadForm(%s): got err == nil, want err != nil", test.name)
			continue
		case err != nil && !test.wantErr:
			t.Errorf("TestReadForm(%s): got err == %s, want err == nil", test.name, err)
			continue
		case err != nil:
			continue
		}

		if f.Type != "TEST" {
			t.Errorf("TestReadForm(%s): got type %q, want %q", test.name, f.Type, "TEST")
		}
		var got []string
		for _, c := range f.Chunks.OfType("NAME") {
			v, err := c.Data.Get("text")
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, v.(string))
		}
		if len(got) != len(test.wantTexts) || (len(got) > 0 && got[0] != test.wantTexts[0]) {
			t.Errorf("TestReadForm(%s): got %v, want %v", test.name, got, test.wantTexts)
		}
	}
}

func TestFormBytes(t *testing.T) {
	f, err := ReadForm(bytes.NewReader(form("NAME\x00\x00\x00\x04abcd", "JUNK\x00\x00\x00\x02xy")), nameType)
	if err != nil {
		t.Fatal(err)
	}

	got, err := f.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	// The unknown chunk is not kept.
	want := form("NAME\x00\x00\x00\x04abcd")
	if !bytes.Equal(got, want) {
		t.Errorf("TestFormBytes: got %q, want %q", got, want)
	}

	c, err := nameType.New(map[string]any{"text": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	built := &File{Type: "TEST", Chunks: steel.Chunks{c}}
	var buf bytes.Buffer
	if err := built.Save(&buf); err != nil {
		t.Fatal(err)
	}
	if want := form("NAME\x00\x00\x00\x05hello"); !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("TestFormBytes(built): got %q, want %q", buf.Bytes(), want)
	}
}

func TestChunkIDPadding(t *testing.T) {
	short := steel.NewChunkType(Format, "AB", steel.Define("Empty").MustBuild())
	c, err := short.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte("AB  \x00\x00\x00\x00"); !bytes.Equal(got, want) {
		t.Errorf("TestChunkIDPadding: got %q, want %q", got, want)
	}

	_, err = steel.ReadChunk(bytes.NewReader([]byte("\x00\x00\x00\x00")), Format)
	if !errors.Is(err, errors.ErrAbsent) {
		t.Errorf("TestChunkIDPadding(empty id): got err == %v, want ErrAbsent", err)
	}
}
