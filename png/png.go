// Package png describes the chunk layout of PNG images.
//
//	img, err := steel.Parse(png.File, f)
//	...
//	v, _ := img.Get("chunks")
//	hdr, _ := v.(steel.Chunks).First("IHDR")
//	width, _ := hdr.Data.Get("width")
//
// Only the chunks needed to get at the pixels and the text are known. Ancillary chunks of other
// types are skipped when reading.
package png

import (
	"bytes"

	"github.com/bearlytools/steel"
	"github.com/bearlytools/steel/compress"
	"github.com/bearlytools/steel/errors"
)

// Signature starts every PNG file.
var Signature = []byte("\x89PNG\r\n\x1a\n")

// Chunk is the frame of a PNG chunk. The CRC covers the type and the payload.
var Chunk = steel.Define("PNGChunk", steel.WithEncoding("ascii")).
	Field("size", steel.Integer(steel.Size(4))).
	Field("type", steel.String(steel.Size(4))).
	Field("payload", steel.Payload(steel.SizeFrom(steel.Ref("size")))).
	Field("crc", steel.CRC32(steel.First("type"), steel.Last("payload"))).
	MustBuild()

// Format is the chunk format of Chunk, keyed by the chunk type.
var Format = steel.MustChunkFormat(Chunk, steel.TagField("type"))

var rgb = steel.Define("RGB").
	Field("r", steel.Integer(steel.Size(1))).
	Field("g", steel.Integer(steel.Size(1))).
	Field("b", steel.Integer(steel.Size(1))).
	MustBuild()

var (
	// Header is the IHDR chunk.
	Header = steel.NewChunkType(Format, "IHDR", steel.Define("IHDR").
		Field("width", steel.Integer(steel.Size(4))).
		Field("height", steel.Integer(steel.Size(4))).
		Field("bitDepth", steel.Integer(steel.Size(1), steel.Choices(1, 2, 4, 8, 16))).
		Field("colorType", steel.Integer(steel.Size(1), steel.Choices(0, 2, 3, 4, 6))).
		Field("compression", steel.FixedInteger(0, steel.Size(1))).
		Field("filter", steel.FixedInteger(0, steel.Size(1))).
		Field("interlace", steel.Integer(steel.Size(1), steel.Choices(0, 1))).
		MustBuild())

	// Palette is the PLTE chunk.
	Palette = steel.NewChunkType(Format, "PLTE", steel.Define("PLTE").
		Field("colors", steel.List(steel.SubStructure(rgb), steel.SizeFrom(steel.Remainder))).
		MustBuild())

	// Data is an IDAT chunk. The image data is split over any number of them.
	Data = steel.NewChunkType(Format, "IDAT", steel.Define("IDAT").
		Field("data", steel.Bytes(steel.SizeFrom(steel.Remainder))).
		MustBuild(), steel.Multiple())

	// Text is a tEXt chunk.
	Text = steel.NewChunkType(Format, "tEXt", steel.Define("tEXt", steel.WithEncoding("latin-1")).
		Field("keyword", steel.String(steel.Terminator([]byte{0}))).
		Field("text", steel.String(steel.SizeFrom(steel.Remainder))).
		MustBuild(), steel.Multiple())

	// End is the IEND chunk that closes the file.
	End = steel.NewChunkType(Format, "IEND", steel.Define("IEND").MustBuild())
)

// File is a whole PNG image.
var File = steel.Define("PNG").
	Field("signature", steel.FixedBytes(Signature)).
	Field("chunks", steel.ChunkList(Format, []*steel.ChunkType{Header, Palette, Data, Text}, steel.Until(End))).
	MustBuild()

// Pixels returns the image data of img, a File instance: the IDAT payloads joined and inflated.
// The scanlines still carry their filter bytes.
func Pixels(img *steel.Instance) ([]byte, error) {
	v, err := img.Get("chunks")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, c := range v.(steel.Chunks).OfType("IDAT") {
		d, err := c.Data.Get("data")
		if err != nil {
			return nil, err
		}
		buf.Write(d.([]byte))
	}
	if buf.Len() == 0 {
		return nil, errors.Value("image has no IDAT chunks")
	}
	return compress.Decompress(compress.Zlib, buf.Bytes())
}

// NewData returns IDAT chunks holding pixels compressed with zlib, split so that no chunk is
// larger than limit bytes. A limit of zero or less puts everything in one chunk.
func NewData(pixels []byte, limit int) (steel.Chunks, error) {
	z, err := compress.Compress(compress.Zlib, pixels)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = len(z)
	}
	var out steel.Chunks
	for len(z) > 0 {
		n := min(limit, len(z))
		c, err := Data.New(map[string]any{"data": z[:n]})
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		z = z[n:]
	}
	return out, nil
}
