package png

import (
	"bytes"
	"testing"

	"github.com/bearlytools/steel"
	"github.com/bearlytools/steel/errors"
	"github.com/kylelemons/godebug/pretty"
)

func header(t *testing.T, depth int) *steel.Chunk {
	t.Helper()
	c, err := Header.New(map[string]any{
		"width": 2, "height": 1, "bitDepth": depth, "colorType": 0, "interlace": 0,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestEncodeDecode(t *testing.T) {
	pixels := []byte{0, 0x10, 0x7f}
	data, err := NewData(pixels, 4)
	if err != nil {
		t.Fatal(err)
	}
	text, err := Text.New(map[string]any{"keyword": "Title", "text": "tiny"})
	if err != nil {
		t.Fatal(err)
	}
	chunks := append(steel.Chunks{header(t, 8), text}, data...)

	img, err := steel.NewWith(File, map[string]any{"chunks": chunks})
	if err != nil {
		t.Fatal(err)
	}
	b, err := img.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(b, Signature) {
		t.Errorf("TestEncodeDecode: missing signature")
	}
	iend := []byte{0, 0, 0, 0, 'I', 'E', 'N', 'D', 0xae, 0x42, 0x60, 0x82}
	if !bytes.HasSuffix(b, iend) {
		t.Errorf("TestEncodeDecode: does not end with IEND, got %x", b[len(b)-12:])
	}

	back, err := steel.Parse(File, bytes.NewReader(append(b, "trailing"...)))
	if err != nil {
		t.Fatal(err)
	}
	got, err := Pixels(back)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, pixels) {
		t.Errorf("TestEncodeDecode: got pixels %x, want %x", got, pixels)
	}

	v, err := back.Get("chunks")
	if err != nil {
		t.Fatal(err)
	}
	cs := v.(steel.Chunks)
	hdr, ok := cs.First("IHDR")
	if !ok {
		t.Fatal("TestEncodeDecode: no IHDR chunk")
	}
	m, err := hdr.Data.Map()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"width": int64(2), "height": int64(1), "bitDepth": int64(8), "colorType": int64(0),
		"compression": int64(0), "filter": int64(0), "interlace": int64(0),
	}
	if diff := pretty.Compare(want, m); diff != "" {
		t.Errorf("TestEncodeDecode(IHDR): -want/+got:\n%s", diff)
	}
	title, _ := cs.First("tEXt")
	if kw, _ := title.Data.Get("keyword"); kw != "Title" {
		t.Errorf("TestEncodeDecode: got keyword %v, want Title", kw)
	}
	if len(cs.OfType("IDAT")) != len(data) {
		t.Errorf("TestEncodeDecode: got %d IDAT chunks, want %d", len(cs.OfType("IDAT")), len(data))
	}
}

func TestHeaderCRC(t *testing.T) {
	c, err := Header.New(map[string]any{
		"width": 1, "height": 1, "bitDepth": 8, "colorType": 0, "interlace": 0,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte("\x00\x00\x00\x0dIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x00\x00\x00\x00\x3a\x7e\x9b\x55")
	if !bytes.Equal(got, want) {
		t.Errorf("TestHeaderCRC: got %x, want %x", got, want)
	}
}

func TestRead(t *testing.T) {
	plte := []byte("\x00\x00\x00\x06PLTE\x01\x02\x03\x04\x05\x06")
	plteCRC := crcOf(t, plte[4:])
	unknown := []byte("\x00\x00\x00\x01gAMA\x01")
	unknownCRC := crcOf(t, unknown[4:])

	hdr, err := header(t, 8).Bytes()
	if err != nil {
		t.Fatal(err)
	}
	var img bytes.Buffer
	img.Write(Signature)
	img.Write(hdr)
	img.Write(append(unknown, unknownCRC...))
	img.Write(append(plte, plteCRC...))
	img.Write([]byte{0, 0, 0, 0, 'I', 'E', 'N', 'D', 0xae, 0x42, 0x60, 0x82})

	in, err := steel.ParseBytes(File, img.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	v, err := in.Get("chunks")
	if err != nil {
		t.Fatal(err)
	}
	var tags []string
	for _, c := range v.(steel.Chunks) {
		tags = append(tags, c.Tag)
	}
	if diff := pretty.Compare([]string{"IHDR", "PLTE"}, tags); diff != "" {
		t.Errorf("TestRead: -want/+got:\n%s", diff)
	}
	p, _ := v.(steel.Chunks).First("PLTE")
	m, err := p.Data.Map()
	if err != nil {
		t.Fatal(err)
	}
	wantColors := map[string]any{"colors": []any{
		map[string]any{"r": int64(1), "g": int64(2), "b": int64(3)},
		map[string]any{"r": int64(4), "g": int64(5), "b": int64(6)},
	}}
	if diff := pretty.Compare(wantColors, m); diff != "" {
		t.Errorf("TestRead(PLTE): -want/+got:\n%s", diff)
	}

	if _, err := Pixels(in); !errors.Is(err, errors.ErrValue) {
		t.Errorf("TestRead: Pixels without IDAT got err == %v, want ErrValue", err)
	}

	bad := bytes.Clone(img.Bytes())
	bad[len(Signature)+8] ^= 0xff
	if _, err := steel.ParseBytes(File, bad); !errors.Is(err, errors.ErrIntegrity) {
		t.Errorf("TestRead(corrupt IHDR): got err == %v, want ErrIntegrity", err)
	}
}

func TestValidate(t *testing.T) {
	img, err := steel.NewWith(File, map[string]any{"chunks": steel.Chunks{header(t, 3)}})
	if err != nil {
		t.Fatal(err)
	}
	v, err := img.Get("chunks")
	if err != nil {
		t.Fatal(err)
	}
	c, _ := v.(steel.Chunks).First("IHDR")
	if errs := c.Data.Validate(); len(errs) != 1 {
		t.Errorf("TestValidate: got %v, want one error for the bit depth", errs)
	}
}

// crcOf returns the CRC-32 of data as PNG stores it.
func crcOf(t *testing.T, data []byte) []byte {
	t.Helper()
	in, err := steel.NewWith(steel.Define("CRC").
		Field("data", steel.Bytes(steel.SizeFrom(steel.Remainder))).
		Field("crc", steel.CRC32()).
		MustBuild(), map[string]any{"data": data})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := in.RawBytes("crc")
	if err != nil {
		t.Fatal(err)
	}
	return raw
}
