// Package digest holds the checksum algorithms checksum fields can use.
// A Func takes the encoded bytes of a span of fields and returns a digest. Checksum
// fields truncate the digest to their own width.
package digest

import (
	"hash/adler32"
	"hash/crc32"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Func computes a digest over data.
type Func func(data []byte) uint64

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Sum adds every byte of data together.
func Sum(data []byte) uint64 {
	var total uint64
	for _, b := range data {
		total += uint64(b)
	}
	return total
}

// CRC32 is the IEEE CRC-32 used by zlib, PNG and Ethernet.
func CRC32(data []byte) uint64 {
	return uint64(crc32.ChecksumIEEE(data))
}

// CRC32C is CRC-32 with the Castagnoli polynomial.
func CRC32C(data []byte) uint64 {
	return uint64(crc32.Checksum(data, castagnoli))
}

// Adler32 is the checksum that trails zlib streams.
func Adler32(data []byte) uint64 {
	return uint64(adler32.Checksum(data))
}

// XXHash64 is the 64 bit xxHash of data.
func XXHash64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

var byName = map[string]Func{
	"sum":      Sum,
	"crc32":    CRC32,
	"crc32c":   CRC32C,
	"adler32":  Adler32,
	"xxhash64": XXHash64,
}

// Lookup returns the Func registered under name.
func Lookup(name string) (Func, bool) {
	f, ok := byName[name]
	return f, ok
}

// Names returns the names Lookup understands, sorted.
func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
