package config

import (
	"os"
	"strconv"
)

// FromEnv overlays SLOTPOOL_* environment variables onto cfg. Unparsable
// values are ignored and leave the field unchanged.
func FromEnv(cfg *Config) {
	envInt("SLOTPOOL_POOL_CAPACITY", &cfg.Pool.Capacity)
	envInt("SLOTPOOL_POOL_BLOCK_SIZE", &cfg.Pool.BlockSize)
	envInt("SLOTPOOL_POOL_SHARDS", &cfg.Pool.Shards)

	envInt("SLOTPOOL_JOURNAL_SLOTS", &cfg.Journal.Slots)
	envInt("SLOTPOOL_JOURNAL_MAX_RECORD_SIZE", &cfg.Journal.MaxRecordSize)
	envBool("SLOTPOOL_JOURNAL_SYNC_ON_BATCH", &cfg.Journal.SyncOnBatch)
	envInt("SLOTPOOL_JOURNAL_FLUSH_INTERVAL_MS", &cfg.Journal.FlushIntervalMs)

	envString("SLOTPOOL_DATA_DIR", &cfg.Storage.DataDir)
	envString("SLOTPOOL_FSYNC", &cfg.Storage.Fsync)
	envInt("SLOTPOOL_FSYNC_INTERVAL_MS", &cfg.Storage.FsyncIntervalMs)
	envInt("SLOTPOOL_CHUNK_SIZE", &cfg.Storage.ChunkSize)

	envString("SLOTPOOL_LOG_LEVEL", &cfg.Log.Level)
	envBool("SLOTPOOL_LOG_DEVELOPMENT", &cfg.Log.Development)
	envString("SLOTPOOL_METRICS_ADDR", &cfg.MetricsAddr)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
