package bufpool

import (
	"go.uber.org/zap"

	"github.com/IvanBrykalov/slotpool/storage"
)

// DefaultBlockSize is used when Options.BlockSize is zero.
const DefaultBlockSize = 4096

// EvictReason tells whether an evicted frame needed a write-back.
type EvictReason int

const (
	// EvictClean means the victim frame matched the store and was reused as is.
	EvictClean EvictReason = iota
	// EvictDirty means the victim frame was written back before reuse.
	EvictDirty
)

func (r EvictReason) String() string {
	if r == EvictDirty {
		return "dirty"
	}
	return "clean"
}

// Metrics exposes pool-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// WriteBack reports bytes written to the store for one frame.
	WriteBack(bytes int)
}

// Options configures the pool. Zero values are safe except for Capacity and
// Store; New applies these defaults:
//   - BlockSize <= 0 => DefaultBlockSize
//   - Shards <= 0    => auto (power of two, never more than Capacity)
//   - nil Metrics    => NoopMetrics
//   - nil Logger     => zap.NewNop()
type Options struct {
	// Capacity is the total number of frames across shards. It is split
	// exactly, so shards may differ by one frame; Shards is reduced when it
	// exceeds Capacity.
	Capacity int

	// BlockSize is the size of one block and one frame, in bytes.
	BlockSize int

	// Shards is rounded up to a power of two.
	Shards int

	// Store backs the blocks. Block b lives at offset b*BlockSize.
	Store storage.Store

	// OnEvict is called under the shard lock after a frame changes owner.
	OnEvict func(block int64, reason EvictReason)

	Metrics Metrics
	Logger  *zap.Logger
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()              {}
func (NoopMetrics) Miss()             {}
func (NoopMetrics) Evict(EvictReason) {}
func (NoopMetrics) WriteBack(int)     {}

var _ Metrics = NoopMetrics{}
