package bufpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/IvanBrykalov/slotpool/storage"
	pebblestore "github.com/IvanBrykalov/slotpool/storage/pebble"
)

var errInjected = errors.New("injected")

// newStore returns an empty store backed by an in-memory Pebble instance.
func newStore(t testing.TB) storage.Store {
	t.Helper()
	m, err := pebblestore.Open(pebblestore.Options{
		DataDir:       "pool",
		Fsync:         pebblestore.FsyncModeNever,
		PebbleOptions: &pebble.Options{FS: vfs.NewMem()},
	})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	s, err := m.Create("blocks")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// flakyStore fails reads or writes on demand.
type flakyStore struct {
	storage.Store
	failRead  atomic.Bool
	failWrite atomic.Bool
}

func (f *flakyStore) ReadAt(p []byte, off int64) (int, error) {
	if f.failRead.Load() {
		return 0, errInjected
	}
	return f.Store.ReadAt(p, off)
}

func (f *flakyStore) WriteAt(p []byte, off int64) (int, error) {
	if f.failWrite.Load() {
		return 0, errInjected
	}
	return f.Store.WriteAt(p, off)
}

type evictLog struct {
	mu     sync.Mutex
	blocks []int64
	kinds  []EvictReason
}

func (l *evictLog) record(block int64, reason EvictReason) {
	l.mu.Lock()
	l.blocks = append(l.blocks, block)
	l.kinds = append(l.kinds, reason)
	l.mu.Unlock()
}

type countingMetrics struct {
	hits, misses, dirty, clean, written atomic.Int64
}

func (m *countingMetrics) Hit()  { m.hits.Add(1) }
func (m *countingMetrics) Miss() { m.misses.Add(1) }
func (m *countingMetrics) Evict(r EvictReason) {
	if r == EvictDirty {
		m.dirty.Add(1)
	} else {
		m.clean.Add(1)
	}
}
func (m *countingMetrics) WriteBack(n int) { m.written.Add(int64(n)) }

func fill(v byte) func([]byte) {
	return func(b []byte) {
		for i := range b {
			b[i] = v
		}
	}
}

func expectFilled(t *testing.T, p *Pool, block int64, v byte) {
	t.Helper()
	bad := -1
	err := p.Read(block, func(b []byte) {
		for i := range b {
			if b[i] != v {
				bad = i
				return
			}
		}
	})
	if err != nil {
		t.Fatalf("read block %d: %v", block, err)
	}
	if bad >= 0 {
		t.Fatalf("block %d byte %d: want %d", block, bad, v)
	}
}
