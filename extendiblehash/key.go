package extendiblehash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// HashFunc produces the stable hash of a key; the table masks it by the
// global depth bits.
type HashFunc[K comparable] func(K) uint64

// IntHasher returns a HashFunc for integer-like keys.
func IntHasher[K ~int | ~int32 | ~int64]() HashFunc[K] {
	return func(key K) uint64 {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(int64(key)))
		return xxhash.Sum64(buf[:])
	}
}

// StringHasher returns a HashFunc for string keys.
func StringHasher() HashFunc[string] {
	return xxhash.Sum64String
}
