package journal

import (
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/slotpool/sequencer"
)

// DefaultMaxRecordSize bounds a single record when Options.MaxRecordSize is 0.
const DefaultMaxRecordSize = 64 << 10

// Options configures a Journal. Zero values are safe:
//   - Slots 0          => sequencer.DefaultCapacity
//   - MaxRecordSize 0  => DefaultMaxRecordSize
//   - FlushInterval 0  => no background flusher
//   - nil Logger       => zap.NewNop()
//   - nil Metrics      => sequencer.NoopMetrics
type Options struct {
	// Slots is the ring size, a power of two. It caps the number of records
	// buffered between flushes.
	Slots int

	// MaxRecordSize caps one record; it may not exceed math.MaxUint32.
	MaxRecordSize int

	// SyncOnBatch makes every batch durable before its slots are reused.
	SyncOnBatch bool

	// FlushInterval runs a background drain at this period.
	FlushInterval time.Duration

	Logger  *zap.Logger
	Metrics sequencer.Metrics
}
