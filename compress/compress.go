// Package compress provides the compression algorithms used by compressed fields.
// It includes built-in compressors for zlib, flate, gzip, snappy, and zstd, and supports
// custom compressor registration.
package compress

import (
	"fmt"
	"strings"

	"github.com/gostdlib/base/concurrency/sync"
)

//go:generate stringer -type=Algorithm -linecomment

// Algorithm identifies a compression algorithm.
type Algorithm uint8

const (
	// None stores data as is.
	None Algorithm = 0 // None
	// Zlib is DEFLATE with the zlib header and Adler-32 trailer. It is the default for compressed fields.
	Zlib Algorithm = 1 // Zlib
	// Flate is raw DEFLATE without any framing.
	Flate Algorithm = 2 // Flate
	// Gzip is DEFLATE with the gzip framing.
	Gzip Algorithm = 3 // Gzip
	// Snappy is the snappy block format.
	Snappy Algorithm = 4 // Snappy
	// Zstd is the Zstandard frame format.
	Zstd Algorithm = 5 // Zstd
)

// Compressor defines the interface for compression algorithms.
type Compressor interface {
	// Compress compresses data. Returns compressed data or error.
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data. Returns original data or error.
	Decompress(data []byte) ([]byte, error)

	// Algorithm returns the algorithm this Compressor implements.
	Algorithm() Algorithm
}

var (
	registry   = map[Algorithm]Compressor{}
	registryMu sync.RWMutex
)

// Register adds a compressor to the registry. This can be used to register
// custom compressors or override built-in compressors. Thread-safe.
func Register(c Compressor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[c.Algorithm()] = c
}

// Get returns the compressor for the given algorithm, or nil if not found.
func Get(a Algorithm) Compressor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[a]
}

// Compress compresses data using the specified algorithm.
// Returns original data unchanged if the algorithm is None.
// Returns an error if the compressor is not registered.
func Compress(a Algorithm, data []byte) ([]byte, error) {
	if a == None {
		return data, nil
	}
	c := Get(a)
	if c == nil {
		return nil, fmt.Errorf("compressor not registered for algorithm %s", a)
	}
	return c.Compress(data)
}

// Decompress decompresses data using the specified algorithm.
// Returns original data unchanged if the algorithm is None.
// Returns an error if the compressor is not registered.
func Decompress(a Algorithm, data []byte) ([]byte, error) {
	if a == None {
		return data, nil
	}
	c := Get(a)
	if c == nil {
		return nil, fmt.Errorf("compressor not registered for algorithm %s", a)
	}
	return c.Decompress(data)
}

// Lookup returns the Algorithm with the given name. Names are the lower case
// form of the constant names, such as "zlib" or "zstd".
func Lookup(name string) (Algorithm, bool) {
	for a := None; a <= Zstd; a++ {
		if name == strings.ToLower(a.String()) {
			return a, true
		}
	}
	return None, false
}

func init() {
	Register(&ZlibCompressor{})
	Register(&FlateCompressor{})
	Register(&GzipCompressor{})
	Register(&SnappyCompressor{})
	Register(&ZstdCompressor{})
}
