// Package pebblestore implements storage.Manager on top of a Pebble database.
//
// Each named store is kept as a size record plus fixed-size chunks:
//
//	m/<name>                 -> big-endian uint64 size
//	d/<name>\x00<be64 chunk> -> chunk bytes (up to ChunkSize)
//
// Missing chunks read as zeros, so sparse writes cost nothing for the gap.
// Every WriteAt/Append is committed as one Pebble batch, honouring the
// configured FsyncMode.
package pebblestore
