package pebblestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/IvanBrykalov/slotpool/storage"
)

// file is the shared state of one named store; every handle on the same
// name points at the same file.
type file struct {
	m    *Manager
	name string
	refs int // guarded by m.mu

	mu      sync.RWMutex
	size    int64
	removed bool
}

// Store is a handle on a named store. It implements storage.Store.
type Store struct {
	f      *file
	closed atomic.Bool
}

var _ storage.Store = (*Store)(nil)

// Name returns the store's name.
func (s *Store) Name() string { return s.f.name }

// Size returns the current length in bytes.
func (s *Store) Size() int64 {
	s.f.mu.RLock()
	defer s.f.mu.RUnlock()
	return s.f.size
}

// ReadAt reads len(p) bytes at off. Chunks that were never written read as
// zeros; reading past the end returns io.EOF with the bytes that exist.
func (s *Store) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("pebblestore: negative offset")
	}
	f := s.f
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := s.usable(); err != nil {
		return 0, err
	}

	start := time.Now()
	if off >= f.size {
		return 0, io.EOF
	}
	n := int64(len(p))
	if rem := f.size - off; n > rem {
		n = rem
	}
	m, chunk := f.m, f.m.chunk
	for pos := off; pos < off+n; {
		idx := pos / chunk
		within := pos - idx*chunk
		span := min(chunk-within, off+n-pos)
		dst := p[pos-off : pos-off+span]

		val, closer, err := m.db.Get(chunkKey(f.name, idx))
		switch {
		case errors.Is(err, pebble.ErrNotFound):
			clear(dst)
		case err != nil:
			return int(pos - off), fmt.Errorf("pebblestore: read %q chunk %d: %w", f.name, idx, err)
		default:
			c := 0
			if within < int64(len(val)) {
				c = copy(dst, val[within:])
			}
			clear(dst[c:])
			_ = closer.Close()
		}
		pos += span
	}
	m.metrics.ObserveRead(time.Since(start), int(n))
	if n < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// WriteAt writes p at off in a single batch, extending the store if needed.
func (s *Store) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("pebblestore: negative offset")
	}
	f := s.f
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := s.usable(); err != nil {
		return 0, err
	}
	return f.writeLocked(p, off)
}

// Append writes p at the current end of the store.
func (s *Store) Append(p []byte) error {
	f := s.f
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	_, err := f.writeLocked(p, f.size)
	return err
}

// Sync flushes the memtable so that every completed write is durable.
// Unless the mode is FsyncModeNever each write was already synced and Sync
// is a no-op.
func (s *Store) Sync() error {
	f := s.f
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := s.usable(); err != nil {
		return err
	}
	if f.m.writeSync {
		return nil
	}
	return f.m.db.Flush()
}

// Close releases the handle. The data stays in the database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.f.m.release(s.f)
	return nil
}

// usable reports whether the handle may be used. f.mu held.
func (s *Store) usable() error {
	if s.closed.Load() || s.f.removed {
		return storage.ErrClosed
	}
	return nil
}

// writeLocked stores p at off chunk by chunk. f.mu held for writing.
func (f *file) writeLocked(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	start := time.Now()
	m, chunk := f.m, f.m.chunk

	b := m.db.NewBatch()
	defer b.Close()

	end := off + int64(len(p))
	for pos := off; pos < end; {
		idx := pos / chunk
		within := pos - idx*chunk
		span := min(chunk-within, end-pos)
		src := p[pos-off : pos-off+span]

		key := chunkKey(f.name, idx)
		var buf []byte
		if within == 0 && span == chunk {
			buf = src
		} else {
			old, err := m.getCopy(key)
			if err != nil {
				return 0, fmt.Errorf("pebblestore: read %q chunk %d: %w", f.name, idx, err)
			}
			buf = make([]byte, max(int64(len(old)), within+span))
			copy(buf, old)
			copy(buf[within:], src)
		}
		if err := b.Set(key, buf, nil); err != nil {
			return 0, err
		}
		pos += span
	}

	size := f.size
	if end > size {
		var enc [8]byte
		binary.BigEndian.PutUint64(enc[:], uint64(end))
		if err := b.Set(metaKey(f.name), enc[:], nil); err != nil {
			return 0, err
		}
		size = end
	}
	if err := m.commit(b); err != nil {
		return 0, err
	}
	f.size = size
	m.metrics.ObserveWrite(time.Since(start), len(p))
	return len(p), nil
}

// getCopy returns a copy of the value at key, or nil if absent.
func (m *Manager) getCopy(key []byte) ([]byte, error) {
	val, closer, err := m.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// commit applies b with the configured fsync policy.
func (m *Manager) commit(b *pebble.Batch) error {
	start := time.Now()
	ops, size := int(b.Count()), b.Len()
	err := b.Commit(m.writeOpts())
	m.metrics.ObserveBatchCommit(time.Since(start), ops, size)
	return err
}
