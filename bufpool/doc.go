// Package bufpool provides a sharded, fixed-size pool of block buffers over a
// storage.Store, with least-recently-used replacement.
//
// # Design
//
//   - Concurrency: frames are split into shards, each protected by a Mutex.
//     The default shard count is a power of two derived from GOMAXPROCS and
//     the capacity. A block always maps to the same shard (xxhash of its id).
//
//   - Replacement: each shard keeps an lru.List over its frames. The list is
//     always full; a miss rebinds the least recently used frame.
//
//   - Write-back: frames modified through Write are dirty. A dirty victim is
//     written to the store before its frame is reused; Flush writes every
//     dirty frame and syncs the store.
//
//   - Loads: a missing block is read into a per-shard scratch buffer which is
//     then swapped with the victim frame. If the read fails, the victim stays
//     resident and intact.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/WriteBack signals.
//     NoopMetrics is the default; metrics/prom provides a Prometheus adapter.
//
// # Basic usage
//
//	p := bufpool.New(bufpool.Options{Capacity: 1024, Store: st})
//	err := p.Write(7, func(b []byte) { copy(b, payload) })
//	err = p.Read(7, func(b []byte) { use(b) })
//	err = p.Flush()
//
// Callbacks run under the shard lock and must not retain the slice or call
// back into the pool.
package bufpool
