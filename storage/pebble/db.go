package pebblestore

import (
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs the WAL on every committed write.
	FsyncModeAlways
	// FsyncModeInterval syncs every commit too, but Pebble delays each sync
	// by up to FsyncInterval so that concurrent commits share it. It is the
	// default when Fsync is unset.
	FsyncModeInterval
	// FsyncModeNever leaves syncing to Store.Sync and Pebble's own policy.
	FsyncModeNever
)

// ParseFsyncMode maps "always", "interval" and "never" to a FsyncMode.
// Anything else yields FsyncModeUnspecified.
func ParseFsyncMode(s string) FsyncMode {
	switch s {
	case "always":
		return FsyncModeAlways
	case "interval":
		return FsyncModeInterval
	case "never":
		return FsyncModeNever
	default:
		return FsyncModeUnspecified
	}
}

// DefaultChunkSize is the chunk size used when Options.ChunkSize is zero.
const DefaultChunkSize = 4096

// Options configures the Pebble-backed manager.
type Options struct {
	// DataDir is the Pebble database directory.
	DataDir string
	// Fsync determines when to sync the WAL (unset => FsyncModeInterval).
	Fsync FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// ChunkSize is the size of one stored chunk (0 => DefaultChunkSize).
	ChunkSize int
	// PebbleOptions allows advanced tuning, e.g. an in-memory vfs for tests.
	PebbleOptions *pebble.Options
	// Metrics observes read/write/commit sizes and latencies. Optional.
	Metrics MetricsHook
	// Logger is optional (nil => zap.NewNop()).
	Logger *zap.Logger
}

// MetricsHook is a minimal hook surface for storage observations.
type MetricsHook interface {
	ObserveWrite(elapsed time.Duration, bytes int)
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveWrite(time.Duration, int)            {}
func (NoopMetrics) ObserveRead(time.Duration, int)             {}
func (NoopMetrics) ObserveBatchCommit(time.Duration, int, int) {}

// Open creates or opens the database and returns a Manager over it.
func Open(opts Options) (*Manager, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblestore: Options.DataDir is required")
	}
	if opts.ChunkSize < 0 {
		return nil, errors.New("pebblestore: Options.ChunkSize must be >= 0")
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if opts.Fsync == FsyncModeUnspecified {
		opts.Fsync = FsyncModeInterval
	}
	if opts.Fsync == FsyncModeInterval {
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		// Synced commits wait up to this long so concurrent ones share one
		// WAL sync.
		iv := opts.FsyncInterval
		po.WALMinSyncInterval = func() time.Duration { return iv }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Manager{
		db:        inner,
		writeSync: opts.Fsync != FsyncModeNever,
		chunk:     int64(opts.ChunkSize),
		metrics:   metrics,
		log:       log.With(zap.String("component", "pebblestore")),
		open:      map[string]*file{},
	}, nil
}
