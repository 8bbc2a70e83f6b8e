package journal

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/IvanBrykalov/slotpool/storage"
	pebblestore "github.com/IvanBrykalov/slotpool/storage/pebble"
)

var errInjected = errors.New("injected")

func newStore(t testing.TB) storage.Store {
	t.Helper()
	m, err := pebblestore.Open(pebblestore.Options{
		DataDir:       "wal",
		Fsync:         pebblestore.FsyncModeNever,
		PebbleOptions: &pebble.Options{FS: vfs.NewMem()},
	})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	s, err := m.Create("journal")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// countingStore counts appends and syncs and can fail appends on demand.
type countingStore struct {
	storage.Store
	appends    atomic.Int64
	syncs      atomic.Int64
	failAppend atomic.Bool
}

func (c *countingStore) Append(p []byte) error {
	if c.failAppend.Load() {
		return errInjected
	}
	c.appends.Add(1)
	return c.Store.Append(p)
}

func (c *countingStore) Sync() error {
	c.syncs.Add(1)
	return c.Store.Sync()
}

func replayAll(t *testing.T, s storage.Store) []string {
	t.Helper()
	var out []string
	if err := Replay(s, func(rec []byte) error {
		out = append(out, string(rec))
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	return out
}

type batchMetrics struct {
	batches, records atomic.Int64
}

func (*batchMetrics) Reserve()       {}
func (*batchMetrics) Contention()    {}
func (*batchMetrics) Full()          {}
func (*batchMetrics) Decline()       {}
func (*batchMetrics) ConsumerError() {}
func (m *batchMetrics) Batch(n int) {
	m.batches.Add(1)
	m.records.Add(int64(n))
}
