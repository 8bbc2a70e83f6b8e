// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// HashBlock hashes a block id with xxhash64 over its little-endian bytes.
// Sequential block ids are common, so a real mixing hash is needed to spread
// them evenly across shards.
func HashBlock(block int64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(block))
	return xxhash.Sum64(b[:])
}

// Checksum32 returns the low 32 bits of the xxhash64 digest of p.
func Checksum32(p []byte) uint32 {
	return uint32(xxhash.Sum64(p))
}
