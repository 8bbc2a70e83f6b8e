package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/IvanBrykalov/slotpool/bufpool"
	"github.com/IvanBrykalov/slotpool/internal/util"
	"github.com/IvanBrykalov/slotpool/journal"
	"github.com/IvanBrykalov/slotpool/sequencer"
	"github.com/IvanBrykalov/slotpool/storage"
	pebblestore "github.com/IvanBrykalov/slotpool/storage/pebble"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Pool        PoolConfig    `json:"pool"`
	Journal     JournalConfig `json:"journal"`
	Storage     StorageConfig `json:"storage"`
	Log         LogConfig     `json:"log"`
	MetricsAddr string        `json:"metricsAddr"`
}

// PoolConfig sizes the buffer pool.
type PoolConfig struct {
	Capacity  int `json:"capacity"`
	BlockSize int `json:"blockSize"`
	Shards    int `json:"shards"`
}

// JournalConfig tunes the write-ahead journal.
type JournalConfig struct {
	Slots           int  `json:"slots"`
	MaxRecordSize   int  `json:"maxRecordSize"`
	SyncOnBatch     bool `json:"syncOnBatch"`
	FlushIntervalMs int  `json:"flushIntervalMs"`
}

// StorageConfig selects the Pebble directory and durability mode.
type StorageConfig struct {
	DataDir         string `json:"dataDir"`
	Fsync           string `json:"fsync"`
	FsyncIntervalMs int    `json:"fsyncIntervalMs"`
	ChunkSize       int    `json:"chunkSize"`
}

// LogConfig selects the zap logger.
type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Pool: PoolConfig{
			Capacity:  1024,
			BlockSize: bufpool.DefaultBlockSize,
		},
		Journal: JournalConfig{
			Slots:           sequencer.DefaultCapacity,
			MaxRecordSize:   journal.DefaultMaxRecordSize,
			FlushIntervalMs: 10,
		},
		Storage: StorageConfig{
			DataDir:         "slotpool-data",
			Fsync:           "interval",
			FsyncIntervalMs: 5,
			ChunkSize:       pebblestore.DefaultChunkSize,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a JSON configuration file over Default(). If path is empty,
// it returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := sonnet.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Pool.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("pool.capacity must be > 0, got %d", c.Pool.Capacity))
	}
	if c.Pool.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("pool.blockSize must be >= 0, got %d", c.Pool.BlockSize))
	}
	if c.Pool.Shards < 0 {
		errs = append(errs, fmt.Errorf("pool.shards must be >= 0, got %d", c.Pool.Shards))
	}
	if s := c.Journal.Slots; s != 0 && (s < 0 || !util.IsPowerOfTwo(uint64(s))) {
		errs = append(errs, fmt.Errorf("journal.slots must be a power of two, got %d", s))
	}
	if m := int64(c.Journal.MaxRecordSize); m < 0 || m > math.MaxUint32 {
		errs = append(errs, fmt.Errorf("journal.maxRecordSize must be in [0, %d], got %d", uint32(math.MaxUint32), m))
	}
	if c.Journal.FlushIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("journal.flushIntervalMs must be >= 0, got %d", c.Journal.FlushIntervalMs))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.dataDir is required"))
	}
	if pebblestore.ParseFsyncMode(c.Storage.Fsync) == pebblestore.FsyncModeUnspecified {
		errs = append(errs, fmt.Errorf("storage.fsync must be always, interval or never, got %q", c.Storage.Fsync))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(errs...))
}

// PoolOptions builds bufpool options over st.
func (c Config) PoolOptions(st storage.Store, log *zap.Logger) bufpool.Options {
	return bufpool.Options{
		Capacity:  c.Pool.Capacity,
		BlockSize: c.Pool.BlockSize,
		Shards:    c.Pool.Shards,
		Store:     st,
		Logger:    log,
	}
}

// JournalOptions builds journal options.
func (c Config) JournalOptions(log *zap.Logger) journal.Options {
	return journal.Options{
		Slots:         c.Journal.Slots,
		MaxRecordSize: c.Journal.MaxRecordSize,
		SyncOnBatch:   c.Journal.SyncOnBatch,
		FlushInterval: time.Duration(c.Journal.FlushIntervalMs) * time.Millisecond,
		Logger:        log,
	}
}

// StorageOptions builds Pebble store options.
func (c Config) StorageOptions(log *zap.Logger) (pebblestore.Options, error) {
	mode := pebblestore.ParseFsyncMode(c.Storage.Fsync)
	if mode == pebblestore.FsyncModeUnspecified {
		return pebblestore.Options{}, fmt.Errorf("config: unknown fsync mode %q", c.Storage.Fsync)
	}
	return pebblestore.Options{
		DataDir:       c.Storage.DataDir,
		Fsync:         mode,
		FsyncInterval: time.Duration(c.Storage.FsyncIntervalMs) * time.Millisecond,
		ChunkSize:     c.Storage.ChunkSize,
		Logger:        log,
	}, nil
}

// Build constructs a zap logger: production JSON by default, colored console
// output when Development is set.
func (l LogConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
