//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is 64 bytes, which covers amd64 and most arm64 parts.
const CacheLineSize = 64

// CacheLinePad separates groups of hot fields onto distinct cache lines.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// PaddedAtomicUint64 is an atomic uint64 occupying a full cache line.
// The sequencer keeps its producer cursor and consumer cursor in two of these
// so that producers spinning on one do not invalidate the other.
type PaddedAtomicUint64 struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

// PaddedAtomicUint32 is the 32-bit counterpart, used for flags.
type PaddedAtomicUint32 struct {
	atomic.Uint32
	_ [CacheLineSize - 4]byte
}

// Compile-time size checks: each must be exactly one cache line.
var (
	_ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicUint64{}))]byte
	_ [int(unsafe.Sizeof(PaddedAtomicUint64{})) - CacheLineSize]byte
	_ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicUint32{}))]byte
	_ [int(unsafe.Sizeof(PaddedAtomicUint32{})) - CacheLineSize]byte
)
