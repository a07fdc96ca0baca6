package compress

import (
	"github.com/golang/snappy"
)

// SnappyCompressor implements Compressor using the Snappy compression algorithm.
// Snappy is optimized for speed rather than compression ratio.
type SnappyCompressor struct{}

// Algorithm returns Snappy.
func (s *SnappyCompressor) Algorithm() Algorithm {
	return Snappy
}

// Compress compresses data using Snappy.
func (s *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

// Decompress decompresses Snappy data.
func (s *SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}
