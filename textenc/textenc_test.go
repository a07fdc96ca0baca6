package textenc

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		input    string
		want     []byte
		wantErr  bool
	}{
		{name: "Success: ascii", encoding: "ascii", input: "valid", want: []byte("valid")},
		{name: "Success: empty name is ascii", encoding: "", input: "abc", want: []byte("abc")},
		{name: "Success: utf-8", encoding: "UTF-8", input: "é", want: []byte{0xc3, 0xa9}},
		{name: "Success: latin-1", encoding: "latin-1", input: "é", want: []byte{0xe9}},
		{name: "Success: cp437", encoding: "cp437", input: "é", want: []byte{0x82}},
		{name: "Success: utf-16le", encoding: "utf-16le", input: "A", want: []byte{0x41, 0}},
		{name: "Success: utf-16be", encoding: "utf-16be", input: "A", want: []byte{0, 0x41}},
		{name: "Error: ascii rejects non-ascii", encoding: "ascii", input: "é", wantErr: true},
		{name: "Error: unknown encoding", encoding: "ebcdic", input: "a", wantErr: true},
	}

	for _, test := range tests {
		got, err := Encode(test.encoding, test.input)
		switch {
		case err == nil && test.wantErr:
			t.Errorf("TestEncode(%s): got err == nil, want err != nil", test.name)
			continue
		case err != nil && !test.wantErr:
			t.Errorf("TestEncode(%s): got err == %s, want err == nil", test.name, err)
			continue
		case err != nil:
			continue
		}

		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestEncode(%s): -want/+got:\n%s", test.name, diff)
		}
		back, err := Decode(test.encoding, got)
		if err != nil {
			t.Errorf("TestEncode(%s): Decode got err == %s", test.name, err)
			continue
		}
		if back != test.input {
			t.Errorf("TestEncode(%s): Decode got %q, want %q", test.name, back, test.input)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode("ascii", []byte{0x80}); err == nil {
		t.Errorf("TestDecodeErrors(ascii): got err == nil, want err != nil")
	}
	if _, err := Decode("utf-8", []byte{0xff, 0xfe}); err == nil {
		t.Errorf("TestDecodeErrors(utf-8): got err == nil, want err != nil")
	}
}

func TestKnown(t *testing.T) {
	for _, name := range []string{"ascii", "utf-8", "utf8", "latin1", "cp437", "windows-1252", "utf-16le"} {
		if !Known(name) {
			t.Errorf("TestKnown(%s): got false, want true", name)
		}
	}
	if Known("klingon") {
		t.Errorf("TestKnown(klingon): got true, want false")
	}
}
