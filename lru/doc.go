// Package lru implements a fixed-capacity eviction list for a buffer pool.
//
// A List owns exactly N nodes for its whole lifetime. Each node carries a
// slot id (its position in the arena, assigned once at construction) and,
// while resident, the logical key currently bound to that slot. Nodes are
// never allocated or freed after New; Use only relinks them, so the hot path
// produces no garbage.
//
// # Design
//
//   - Storage: nodes live in a slice and link to each other by int32 index
//     rather than by pointer. Head is the most recently used node, tail is the
//     next victim.
//
//   - Lookup: a map[K]int32 from resident key to node index. Keys that are not
//     resident have no map entry.
//
//   - Eviction: a miss always rebinds the tail node. The list never reads or
//     writes payload bytes; the caller checks Lookup (or Victim) before Use to
//     learn whether it must write back the old block and load the new one.
//
// # Basic usage
//
//	l := lru.New[int64](4)
//	if _, ok := l.Lookup(blk); !ok {
//	    old, slot, resident := l.Victim()
//	    // flush frames[slot] for old if resident && dirty, then load blk
//	}
//	slot := l.Use(blk)
//
// # Thread-safety
//
// A List is not safe for concurrent use. Hold an external lock for the
// duration of a single logical operation (Lookup, write-back, load, Use).
package lru
