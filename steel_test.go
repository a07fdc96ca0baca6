package steel

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/bearlytools/steel/compress"
	"github.com/bearlytools/steel/errors"
	"github.com/kylelemons/godebug/pretty"
)

var text = Define("Text").
	Field("length", Integer(Size(1))).
	Field("content", String(SizeFrom(Ref("length")))).
	MustBuild()

func TestSizeTracking(t *testing.T) {
	in, err := ParseBytes(text, []byte("\x05valid"))
	if err != nil {
		t.Fatalf("TestSizeTracking: ParseBytes: %s", err)
	}
	got, err := in.Get("content")
	if err != nil {
		t.Fatal(err)
	}
	if got != "valid" {
		t.Errorf("TestSizeTracking: got content %q, want %q", got, "valid")
	}

	if err := in.Set("content", "automatic"); err != nil {
		t.Fatal(err)
	}
	n, err := in.Get("length")
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(9) {
		t.Errorf("TestSizeTracking: got length %v, want 9", n)
	}
	b, err := in.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte("\x09automatic"); !bytes.Equal(b, want) {
		t.Errorf("TestSizeTracking: got %q, want %q", b, want)
	}
}

func TestParse(t *testing.T) {
	record := Define("Record", WithEndianness(LittleEndian)).
		Field("magic", FixedString("RC")).
		Field("id", Integer(Size(2))).
		Field("delta", Integer(Size(1), Signed())).
		Skip(Reserved(Size(1))).
		Field("name", String(Terminator([]byte{0}))).
		Field("note", Integer(Size(1), Default(int64(42)))).
		MustBuild()

	tests := []struct {
		name    string
		data    string
		want    map[string]any
		wantErr error
	}{
		{
			name: "Success: every field",
			data: "RC\x01\x02\xff\x00bob\x00\x07",
			want: map[string]any{"magic": "RC", "id": int64(0x0201), "delta": int64(-1), "name": "bob", "note": int64(7)},
		},
		{
			name:    "Error: wrong signature",
			data:    "RX\x01\x02",
			wantErr: errors.ErrValue,
		},
		{
			name:    "Error: ends inside a field",
			data:    "RC\x01",
			wantErr: errors.ErrOutOfData,
		},
		{
			name:    "Error: no terminator",
			data:    "RC\x01\x02\xff\x00bob",
			wantErr: errors.ErrOutOfData,
		},
	}

	for _, test := range tests {
		in, err := ParseBytes(record, []byte(test.data))
		switch {
		case err == nil && test.wantErr != nil:
			t.Errorf("TestParse(%s): got err == nil, want err != nil", test.name)
			continue
		case err != nil && test.wantErr == nil:
			t.Errorf("TestParse(%s): got err == %s, want err == nil", test.name, err)
			continue
		case err != nil:
			if !errors.Is(err, test.wantErr) {
				t.Errorf("TestParse(%s): got err == %s, want it to wrap %s", test.name, err, test.wantErr)
			}
			continue
		}

		got, err := in.Map()
		if err != nil {
			t.Fatal(err)
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestParse(%s): -want/+got:\n%s", test.name, diff)
		}

		b, err := in.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(b, []byte(test.data)) {
			t.Errorf("TestParse(%s): round trip got %q, want %q", test.name, b, test.data)
		}
	}
}

func TestDefaultAtEndOfInput(t *testing.T) {
	s := Define("Short").
		Field("a", Integer(Size(1))).
		Field("b", Integer(Size(1), Default(int64(3)))).
		MustBuild()

	in := Open(s, bytes.NewReader([]byte{1}))
	got, err := in.Get("b")
	if err != nil {
		t.Fatalf("TestDefaultAtEndOfInput: got err == %s, want err == nil", err)
	}
	if got != int64(3) {
		t.Errorf("TestDefaultAtEndOfInput: got %v, want 3", got)
	}
	if in.Has("b") {
		t.Errorf("TestDefaultAtEndOfInput: Has(b) == true, want false")
	}
}

func TestLazyRead(t *testing.T) {
	s := Define("Pair").
		Field("a", Integer(Size(1))).
		Field("b", Integer(Size(1))).
		MustBuild()

	r := bytes.NewReader([]byte{1, 2, 3})
	in := Open(s, r)
	if r.Len() != 3 {
		t.Fatalf("TestLazyRead: Open read %d bytes, want 0", 3-r.Len())
	}
	if _, err := in.Get("a"); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 2 {
		t.Errorf("TestLazyRead: after Get(a) %d bytes are left, want 2", r.Len())
	}
	if _, err := in.Get("b"); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 1 || in.Position() != 2 || !in.Complete() {
		t.Errorf("TestLazyRead: got left %d, position %d, complete %v; want 1, 2, true", r.Len(), in.Position(), in.Complete())
	}
}

var letters = Define("Letters").
	Field("a", Integer(Size(1))).
	Field("b", Integer(Size(1))).
	Field("c", Integer(Size(1))).
	Field("d", Integer(Size(1))).
	Field("e", Integer(Size(1))).
	Field("sum", Checksum(Size(2))).
	MustBuild()

func TestChecksum(t *testing.T) {
	// 'a' through 'e' add up to 495.
	in, err := ParseBytes(letters, []byte("abcde\x01\xef"))
	if err != nil {
		t.Fatalf("TestChecksum: %s", err)
	}
	if errs := in.Validate(); len(errs) != 0 {
		t.Errorf("TestChecksum: Validate() == %v, want nothing", errs)
	}

	_, err = ParseBytes(letters, []byte("abcdf\x01\xef"))
	if !errors.Is(err, errors.ErrIntegrity) {
		t.Errorf("TestChecksum(flipped byte): got err == %v, want ErrIntegrity", err)
	}

	if err := in.Set("a", 'b'); err != nil {
		t.Fatal(err)
	}
	sum, err := in.Get("sum")
	if err != nil {
		t.Fatal(err)
	}
	if sum != uint64(496) {
		t.Errorf("TestChecksum: after Set got sum %v, want 496", sum)
	}
}

func TestChecksumBuilt(t *testing.T) {
	s := Define("Framed").
		Field("length", Integer(Size(1))).
		Field("data", Bytes(SizeFrom(Ref("length")))).
		Field("crc", CRC32(First("data"))).
		MustBuild()

	in, err := NewWith(s, map[string]any{"data": []byte("IEND")})
	if err != nil {
		t.Fatal(err)
	}
	b, err := in.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte("\x04IEND\xae\x42\x60\x82"); !bytes.Equal(b, want) {
		t.Errorf("TestChecksumBuilt: got %x, want %x", b, want)
	}
}

func TestBits(t *testing.T) {
	small := DefineBits("Small").
		Field("a", Flag()).
		Field("b", Bits(Size(3))).
		Field("c", Flag()).
		Field("d", Bits(Size(3))).
		MustBuild()
	wide := DefineBits("Wide").
		Field("a", Bits(Size(3))).
		Field("b", Bits(Size(6))).
		Field("c", Bits(Size(3), Signed())).
		MustBuild()

	tests := []struct {
		name   string
		schema *Schema
		data   []byte
		want   map[string]any
	}{
		{
			name:   "Success: one byte",
			schema: small,
			data:   []byte{0b1010_0111},
			want:   map[string]any{"a": true, "b": int64(2), "c": false, "d": int64(7)},
		},
		{
			name:   "Success: last byte is padded",
			schema: wide,
			data:   []byte{0b1011_1001, 0b1111_0000},
			want:   map[string]any{"a": int64(5), "b": int64(0b110011), "c": int64(-1)},
		},
	}

	for _, test := range tests {
		in, err := ParseBytes(test.schema, test.data)
		if err != nil {
			t.Errorf("TestBits(%s): %s", test.name, err)
			continue
		}
		got, err := in.Map()
		if err != nil {
			t.Fatal(err)
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestBits(%s): -want/+got:\n%s", test.name, diff)
		}

		built, err := NewWith(test.schema, test.want)
		if err != nil {
			t.Fatal(err)
		}
		b, err := built.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(b, test.data) {
			t.Errorf("TestBits(%s): got %08b, want %08b", test.name, b, test.data)
		}
	}
}

func TestBitsInsideStructure(t *testing.T) {
	flags := DefineBits("Flags").
		Field("compressed", Flag()).
		Skip(BitReserved(Size(3))).
		Field("version", FixedBits(2, Size(4))).
		MustBuild()
	s := Define("Header").
		Field("flags", SubStructure(flags)).
		Field("length", Integer(Size(1))).
		MustBuild()

	in, err := ParseBytes(s, []byte{0b1000_0010, 9})
	if err != nil {
		t.Fatal(err)
	}
	f, err := in.Get("flags")
	if err != nil {
		t.Fatal(err)
	}
	c, err := f.(*Instance).Get("compressed")
	if err != nil {
		t.Fatal(err)
	}
	n, err := in.Get("length")
	if err != nil {
		t.Fatal(err)
	}
	if c != true || n != int64(9) {
		t.Errorf("TestBitsInsideStructure: got compressed %v length %v, want true 9", c, n)
	}

	if _, err := ParseBytes(s, []byte{0b1000_0011, 9}); !errors.Is(err, errors.ErrValue) {
		t.Errorf("TestBitsInsideStructure(bad version): got err == %v, want ErrValue", err)
	}
}

var tagged = Define("Tagged").
	Field("kind", Integer(Size(1))).
	If(When(Ref("kind"), Equal, 1), func(g *Builder) {
		g.Field("extra", Integer(Size(2)))
		g.Field("more", Integer(Size(1), Default(int64(0))))
	}).
	Field("tail", Integer(Size(1))).
	MustBuild()

func TestConditional(t *testing.T) {
	in, err := ParseBytes(tagged, []byte{1, 0, 5, 6, 7})
	if err != nil {
		t.Fatal(err)
	}
	got, err := in.Map()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"kind": int64(1), "extra": int64(5), "more": int64(6), "tail": int64(7)}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestConditional(true): -want/+got:\n%s", diff)
	}

	in, err = ParseBytes(tagged, []byte{0, 7})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := in.Get("extra"); !errors.Is(err, errors.ErrAbsent) {
		t.Errorf("TestConditional(false): Get(extra) err == %v, want ErrAbsent", err)
	}
	if v, err := in.Get("more"); err != nil || v != int64(0) {
		t.Errorf("TestConditional(false): Get(more) == %v, %v, want the default", v, err)
	}
	if v, err := in.Get("tail"); err != nil || v != int64(7) {
		t.Errorf("TestConditional(false): Get(tail) == %v, %v, want 7", v, err)
	}

	built, err := NewWith(tagged, map[string]any{"kind": 0, "extra": 5, "tail": 7})
	if err != nil {
		t.Fatal(err)
	}
	b, err := built.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0, 7}; !bytes.Equal(b, want) {
		t.Errorf("TestConditional(build): got %v, want %v", b, want)
	}
}

func TestWrite(t *testing.T) {
	s := Define("Message").
		Field("length", Integer(Size(1))).
		Field("content", String(SizeFrom(Ref("length")))).
		Field("tail", Integer(Size(2))).
		MustBuild()
	data := []byte("\x05valid\x01\x02")

	whole := New(s)
	if _, err := whole.Write(data); err != nil {
		t.Fatal(err)
	}
	want, err := whole.Map()
	if err != nil {
		t.Fatal(err)
	}

	pieces := New(s)
	for i, c := range data {
		if _, err := pieces.Write([]byte{c}); err != nil {
			t.Fatalf("TestWrite: byte %d: %s", i, err)
		}
		if i == 2 {
			if !pieces.Has("length") || pieces.Has("content") || pieces.Buffered() != 2 {
				t.Errorf("TestWrite: after 3 bytes got length %v content %v buffered %d", pieces.Has("length"), pieces.Has("content"), pieces.Buffered())
			}
		}
	}
	got, err := pieces.Map()
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestWrite: -whole/+pieces:\n%s", diff)
	}
	if !pieces.Complete() || pieces.Position() != int64(len(data)) {
		t.Errorf("TestWrite: got complete %v position %d, want true %d", pieces.Complete(), pieces.Position(), len(data))
	}

	if _, err := Open(s, bytes.NewReader(data)).Write(data); !errors.Is(err, errors.ErrMode) {
		t.Errorf("TestWrite(read mode): got err == %v, want ErrMode", err)
	}
}

func TestFlush(t *testing.T) {
	s := Define("Tail").
		Field("n", Integer(Size(1))).
		Field("rest", Bytes(SizeFrom(Remainder))).
		MustBuild()

	in := New(s)
	if _, err := in.Write([]byte("\x01ab")); err != nil {
		t.Fatal(err)
	}
	if _, err := in.Write([]byte("c")); err != nil {
		t.Fatal(err)
	}
	if in.Has("rest") {
		t.Fatalf("TestFlush: rest was read before Flush")
	}
	if err := in.Flush(); err != nil {
		t.Fatal(err)
	}
	got, err := in.Get("rest")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.([]byte), []byte("abc")) {
		t.Errorf("TestFlush: got %q, want %q", got, "abc")
	}

	short := New(text)
	if _, err := short.Write([]byte("\x05val")); err != nil {
		t.Fatal(err)
	}
	if err := short.Flush(); !errors.Is(err, errors.ErrOutOfData) {
		t.Errorf("TestFlush(short): got err == %v, want ErrOutOfData", err)
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		build   func() (*Schema, error)
		wantErr bool
	}{
		{
			name: "Success: extend and override",
			build: func() (*Schema, error) {
				return Define("Longer").Extend(text).Override("length", Size(2)).Build()
			},
		},
		{
			name: "Error: field declared twice",
			build: func() (*Schema, error) {
				return Define("Twice").Field("a", Integer(Size(1))).Field("a", Integer(Size(1))).Build()
			},
			wantErr: true,
		},
		{
			name: "Error: size refers to a later field",
			build: func() (*Schema, error) {
				return Define("Later").Field("data", Bytes(SizeFrom(Ref("n")))).Field("n", Integer(Size(1))).Build()
			},
			wantErr: true,
		},
		{
			name: "Error: integer without a size",
			build: func() (*Schema, error) {
				return Define("NoSize").Field("a", Integer()).Build()
			},
			wantErr: true,
		},
		{
			name: "Error: integer too wide",
			build: func() (*Schema, error) {
				return Define("Wide").Field("a", Integer(Size(9))).Build()
			},
			wantErr: true,
		},
		{
			name: "Error: string without size or terminator",
			build: func() (*Schema, error) {
				return Define("Loose").Field("a", String()).Build()
			},
			wantErr: true,
		},
		{
			name: "Error: bit field in a byte structure",
			build: func() (*Schema, error) {
				return Define("Mixed").Field("a", Flag()).Build()
			},
			wantErr: true,
		},
		{
			name: "Error: option the field does not take",
			build: func() (*Schema, error) {
				return Define("Odd").Field("a", Integer(Size(1), Places(2))).Build()
			},
			wantErr: true,
		},
		{
			name: "Error: condition on a later field",
			build: func() (*Schema, error) {
				return Define("Cond").
					If(When(Ref("kind"), Equal, 1), func(g *Builder) { g.Field("a", Integer(Size(1))) }).
					Field("kind", Integer(Size(1))).
					Build()
			},
			wantErr: true,
		},
		{
			name: "Error: hook on an unknown field",
			build: func() (*Schema, error) {
				return Define("Hook").Field("a", Integer(Size(1))).OnEncode("b", func(*Instance, any) error { return nil }).Build()
			},
			wantErr: true,
		},
	}

	for _, test := range tests {
		_, err := test.build()
		switch {
		case err == nil && test.wantErr:
			t.Errorf("TestBuild(%s): got err == nil, want err != nil", test.name)
		case err != nil && !test.wantErr:
			t.Errorf("TestBuild(%s): got err == %s, want err == nil", test.name, err)
		case err != nil && !errors.Is(err, errors.ErrSchema):
			t.Errorf("TestBuild(%s): got err == %s, want it to wrap ErrSchema", test.name, err)
		}
	}
}

func TestNewWith(t *testing.T) {
	if _, err := NewWith(text, map[string]any{"content": "x", "colour": 1}); !errors.Is(err, errors.ErrUnknownField) {
		t.Errorf("TestNewWith: got err == %v, want ErrUnknownField", err)
	}

	in, err := NewWith(text, map[string]any{"content": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := in.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte("\x02hi"); !bytes.Equal(b, want) {
		t.Errorf("TestNewWith: got %q, want %q", b, want)
	}

	if _, err := New(text).Bytes(); !errors.Is(err, errors.ErrAbsent) {
		t.Errorf("TestNewWith(empty): Bytes() err == %v, want ErrAbsent", err)
	}
}

func TestValidate(t *testing.T) {
	s := Define("Picky").
		Field("v", Integer(Size(1), Choices(1, 2))).
		Field("w", Integer(Size(1), Choices(3))).
		Field("x", Integer(Size(1))).
		MustBuild()

	in, err := ParseBytes(s, []byte{5, 4, 1})
	if err != nil {
		t.Fatal(err)
	}
	errs := in.Validate()
	if len(errs) != 2 {
		t.Fatalf("TestValidate: got %d errors (%v), want 2", len(errs), errs)
	}
	for _, err := range errs {
		if !errors.Is(err, errors.ErrValue) {
			t.Errorf("TestValidate: got %s, want it to wrap ErrValue", err)
		}
	}

	in, err = ParseBytes(s, []byte{2, 3, 1})
	if err != nil {
		t.Fatal(err)
	}
	if errs := in.Validate(); len(errs) != 0 {
		t.Errorf("TestValidate: got %v, want no errors", errs)
	}
}

func TestSubStructureParentRef(t *testing.T) {
	item := Define("Item").
		Field("data", Bytes(SizeFrom(Ref("../width")))).
		MustBuild()
	s := Define("Grid").
		Field("width", Integer(Size(1))).
		Field("first", SubStructure(item)).
		Field("second", SubStructure(item)).
		MustBuild()

	in, err := ParseBytes(s, []byte("\x02abcd"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := in.Map()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"width":  int64(2),
		"first":  map[string]any{"data": []byte("ab")},
		"second": map[string]any{"data": []byte("cd")},
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestSubStructureParentRef: -want/+got:\n%s", diff)
	}
	data, err := in.lookup("second.data")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data.([]byte), []byte("cd")) {
		t.Errorf("TestSubStructureParentRef: lookup(second.data) == %q, want %q", data, "cd")
	}
}

func TestList(t *testing.T) {
	counted := Define("Counted").
		Field("count", Integer(Size(1))).
		Field("items", List(Integer(Size(2)), SizeFrom(Ref("count")))).
		MustBuild()
	rest := Define("Rest").
		Field("items", List(String(Terminator([]byte{0})), SizeFrom(Remainder))).
		MustBuild()

	in, err := ParseBytes(counted, []byte{2, 0, 1, 0, 2, 9})
	if err != nil {
		t.Fatal(err)
	}
	got, err := in.Get("items")
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare([]any{int64(1), int64(2)}, got); diff != "" {
		t.Errorf("TestList(counted): -want/+got:\n%s", diff)
	}
	if err := in.Set("items", []int{7, 8, 9}); err != nil {
		t.Fatal(err)
	}
	if n, _ := in.Get("count"); n != int64(3) {
		t.Errorf("TestList(counted): after Set got count %v, want 3", n)
	}

	in, err = ParseBytes(rest, []byte("a\x00bc\x00"))
	if err != nil {
		t.Fatal(err)
	}
	got, err = in.Get("items")
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare([]any{"a", "bc"}, got); diff != "" {
		t.Errorf("TestList(remainder): -want/+got:\n%s", diff)
	}
}

func TestCompressed(t *testing.T) {
	for _, a := range []compress.Algorithm{compress.Zlib, compress.Gzip, compress.Snappy, compress.Zstd} {
		s := Define("Packed").
			Field("size", Integer(Size(2))).
			Field("body", Compressed(String(SizeFrom(Remainder)), SizeFrom(Ref("size")), Algorithm(a))).
			Field("after", Integer(Size(1))).
			MustBuild()

		in, err := NewWith(s, map[string]any{"body": "hello hello hello hello", "after": 1})
		if err != nil {
			t.Fatalf("TestCompressed(%s): %s", a, err)
		}
		b, err := in.Bytes()
		if err != nil {
			t.Fatalf("TestCompressed(%s): %s", a, err)
		}

		back, err := ParseBytes(s, b)
		if err != nil {
			t.Fatalf("TestCompressed(%s): %s", a, err)
		}
		got, err := back.Map()
		if err != nil {
			t.Fatal(err)
		}
		want := map[string]any{"size": int64(len(b) - 3), "body": "hello hello hello hello", "after": int64(1)}
		if diff := pretty.Compare(want, got); diff != "" {
			t.Errorf("TestCompressed(%s): -want/+got:\n%s", a, diff)
		}
	}
}

func TestStream(t *testing.T) {
	s := Define("Pair").
		Field("a", Integer(Size(1))).
		Field("b", Integer(Size(1))).
		MustBuild()

	var got []any
	for in, err := range Stream(s, bytes.NewReader([]byte{1, 2, 3, 4})) {
		if err != nil {
			t.Fatal(err)
		}
		m, err := in.Map()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, m)
	}
	want := []any{
		map[string]any{"a": int64(1), "b": int64(2)},
		map[string]any{"a": int64(3), "b": int64(4)},
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestStream: -want/+got:\n%s", diff)
	}

	var errs int
	for _, err := range Stream(s, bytes.NewReader([]byte{1, 2, 3})) {
		if err != nil {
			errs++
			if !errors.Is(err, errors.ErrOutOfData) {
				t.Errorf("TestStream(short): got err == %s, want ErrOutOfData", err)
			}
		}
	}
	if errs != 1 {
		t.Errorf("TestStream(short): got %d errors, want 1", errs)
	}
}

func TestHooks(t *testing.T) {
	var seen []any
	s := Define("Hooked").
		Field("a", Integer(Size(1))).
		OnDecode("a", func(in *Instance, v any) error {
			seen = append(seen, v)
			return nil
		}).
		MustBuild()

	if _, err := ParseBytes(s, []byte{4}); err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare([]any{int64(4)}, seen); diff != "" {
		t.Errorf("TestHooks: -want/+got:\n%s", diff)
	}
}

func TestDeclaredLengthPastInput(t *testing.T) {
	wide := Define("Wide").
		Field("n", Integer(Size(8))).
		Field("data", Bytes(SizeFrom(Ref("n")))).
		MustBuild()
	large := bytes.Repeat([]byte{'x'}, 100*1024)

	tests := []struct {
		name    string
		data    []byte
		want    int
		wantErr bool
	}{
		{
			name:    "Error: length larger than memory",
			data:    []byte{0, 4, 0, 0, 0, 0, 0, 0, 'a', 'b'},
			wantErr: true,
		},
		{
			name:    "Error: length of 4 GiB",
			data:    []byte{0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff, 'a', 'b'},
			wantErr: true,
		},
		{
			name: "Success: large field that is all there",
			data: append([]byte{0, 0, 0, 0, 0, 1, 0x90, 0}, large...),
			want: len(large),
		},
	}

	for _, test := range tests {
		in, err := Parse(wide, bytes.NewReader(test.data))
		switch {
		case err == nil && test.wantErr:
			t.Errorf("TestDeclaredLengthPastInput(%s): got err == nil, want err != nil", test.name)
			continue
		case err != nil && !test.wantErr:
			t.Errorf("TestDeclaredLengthPastInput(%s): got err == %s, want err == nil", test.name, err)
			continue
		case err != nil:
			if !errors.Is(err, errors.ErrOutOfData) {
				t.Errorf("TestDeclaredLengthPastInput(%s): got err == %s, want ErrOutOfData", test.name, err)
			}
			continue
		}

		v, err := in.Get("data")
		if err != nil {
			t.Fatal(err)
		}
		if got := len(v.([]byte)); got != test.want {
			t.Errorf("TestDeclaredLengthPastInput(%s): got %d bytes, want %d", test.name, got, test.want)
		}
	}

	huge := []byte("\xff\xff\xff\xffJUNK")
	_, err := ReadChunk(bytes.NewReader(huge), MustChunkFormat(Define("Big").
		Field("size", Integer(Size(4))).
		Field("id", String(Size(4))).
		Field("payload", Payload(SizeFrom(Ref("size")))).
		MustBuild()))
	if !errors.Is(err, errors.ErrOutOfData) {
		t.Errorf("TestDeclaredLengthPastInput(chunk): got err == %v, want ErrOutOfData", err)
	}
}

func TestConcurrentInstances(t *testing.T) {
	var wg sync.WaitGroup
	for i := range 64 {
		wg.Go(func() {
			a := byte('a' + i%20)
			data := []byte{a, 'b', 'c', 'd', 'e'}
			sum := int(a) + 'b' + 'c' + 'd' + 'e'
			data = append(data, byte(sum>>8), byte(sum))

			in, err := ParseBytes(letters, data)
			if err != nil {
				t.Errorf("TestConcurrentInstances(%d): %s", i, err)
				return
			}
			if err := in.Set("e", 'f'); err != nil {
				t.Errorf("TestConcurrentInstances(%d): %s", i, err)
				return
			}
			got, err := in.Get("sum")
			if err != nil || got != uint64(sum+1) {
				t.Errorf("TestConcurrentInstances(%d): got sum %v, %v, want %d", i, got, err, sum+1)
			}

			msg := New(text)
			if err := msg.Set("content", fmt.Sprintf("record %d", i)); err != nil {
				t.Errorf("TestConcurrentInstances(%d): %s", i, err)
				return
			}
			b, err := msg.Bytes()
			if err != nil {
				t.Errorf("TestConcurrentInstances(%d): %s", i, err)
				return
			}
			back, err := ParseBytes(text, b)
			if err != nil {
				t.Errorf("TestConcurrentInstances(%d): %s", i, err)
				return
			}
			if v, _ := back.Get("content"); v != fmt.Sprintf("record %d", i) {
				t.Errorf("TestConcurrentInstances(%d): got content %v", i, v)
			}
		})
	}
	wg.Wait()
}
