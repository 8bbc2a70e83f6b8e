// Package journal is a batched write-ahead log on top of a storage.Store.
//
// Many goroutines Append records concurrently. Each record takes one slot of
// a sequencer ring; whoever drains the ring frames the ready run of records
// into one buffer and writes it to the store with a single Append (and a Sync
// when SyncOnBatch is set). Records reach the store in reservation order.
//
// Frame layout, little endian:
//
//	len      uint32  payload length
//	checksum uint32  low 32 bits of xxhash64(payload)
//	payload  [len]byte
//
// Replay walks the frames from offset zero and reports the first damaged or
// truncated frame as ErrCorrupt.
package journal
