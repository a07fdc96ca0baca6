package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// ZlibCompressor implements Compressor using DEFLATE with zlib framing.
type ZlibCompressor struct {
	// Level is the compression level. If 0, defaults to zlib.DefaultCompression.
	Level int
}

// Algorithm returns Zlib.
func (z *ZlibCompressor) Algorithm() Algorithm {
	return Zlib
}

// Compress compresses data using zlib.
func (z *ZlibCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	level := z.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decompresses zlib data.
func (z *ZlibCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// FlateCompressor implements Compressor using raw DEFLATE.
type FlateCompressor struct {
	// Level is the compression level. If 0, defaults to flate.DefaultCompression.
	Level int
}

// Algorithm returns Flate.
func (f *FlateCompressor) Algorithm() Algorithm {
	return Flate
}

// Compress compresses data using DEFLATE.
func (f *FlateCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	level := f.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decompresses DEFLATE data.
func (f *FlateCompressor) Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}

// GzipCompressor implements Compressor using the gzip compression algorithm.
type GzipCompressor struct {
	// Level is the compression level. Use gzip.DefaultCompression (0),
	// gzip.NoCompression, gzip.BestSpeed, or gzip.BestCompression.
	// If 0, defaults to gzip.DefaultCompression.
	Level int
}

// Algorithm returns Gzip.
func (g *GzipCompressor) Algorithm() Algorithm {
	return Gzip
}

// Compress compresses data using gzip.
func (g *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	level := g.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decompresses gzip data.
func (g *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
