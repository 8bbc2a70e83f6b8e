package bufpool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"golang.org/x/sync/errgroup"
)

// Writes survive eviction: a dirty victim is written back and reloaded later.
func TestPool_ReadAfterWriteAcrossEviction(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	ev := &evictLog{}
	m := &countingMetrics{}
	p := New(Options{Capacity: 2, Shards: 1, BlockSize: 16, Store: st, OnEvict: ev.record, Metrics: m})
	t.Cleanup(func() { _ = p.Close() })

	for b := int64(0); b < 3; b++ {
		if err := p.Write(b, fill(byte('a'+b))); err != nil {
			t.Fatalf("write %d: %v", b, err)
		}
	}
	// Block 0 was the LRU and is now in the store.
	if len(ev.blocks) != 1 || ev.blocks[0] != 0 || ev.kinds[0] != EvictDirty {
		t.Fatalf("evictions: %v %v", ev.blocks, ev.kinds)
	}
	expectFilled(t, p, 0, 'a')
	expectFilled(t, p, 2, 'c')

	st1 := p.Stats()
	if st1.Evictions != 2 || st1.WriteBacks != 2 || st1.Resident != 2 {
		t.Fatalf("stats: %+v", st1)
	}
	if st1.Hits != 1 || st1.Misses != 4 {
		t.Fatalf("hits/misses: %+v", st1)
	}
	if m.dirty.Load() != 2 || m.written.Load() != 32 {
		t.Fatalf("metrics: dirty=%d written=%d", m.dirty.Load(), m.written.Load())
	}

	if err := p.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := st.Size(); got != 48 {
		t.Fatalf("store size: want 48, got %d", got)
	}
	if d := p.Stats().Dirty; d != 0 {
		t.Fatalf("dirty after flush: %d", d)
	}
}

// Blocks never written read as zeros.
func TestPool_UnwrittenBlockIsZero(t *testing.T) {
	t.Parallel()

	p := New(Options{Capacity: 4, BlockSize: 32, Store: newStore(t)})
	t.Cleanup(func() { _ = p.Close() })
	expectFilled(t, p, 1000, 0)
}

// A clean victim is reused without touching the store.
func TestPool_CleanEviction(t *testing.T) {
	t.Parallel()

	ev := &evictLog{}
	p := New(Options{Capacity: 1, BlockSize: 8, Store: newStore(t), OnEvict: ev.record})
	t.Cleanup(func() { _ = p.Close() })

	expectFilled(t, p, 1, 0)
	expectFilled(t, p, 2, 0)
	if len(ev.kinds) != 1 || ev.kinds[0] != EvictClean || ev.blocks[0] != 1 {
		t.Fatalf("evictions: %v %v", ev.blocks, ev.kinds)
	}
	if wb := p.Stats().WriteBacks; wb != 0 {
		t.Fatalf("write-backs: want 0, got %d", wb)
	}
}

// A failed load leaves the victim resident with its contents.
func TestPool_FailedLoadKeepsVictim(t *testing.T) {
	t.Parallel()

	fs := &flakyStore{Store: newStore(t)}
	p := New(Options{Capacity: 1, BlockSize: 8, Store: fs})
	t.Cleanup(func() { _ = p.Close() })

	if err := p.Write(0, fill('x')); err != nil {
		t.Fatal(err)
	}
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}

	fs.failRead.Store(true)
	err := p.Read(1, func([]byte) { t.Fatal("callback must not run") })
	if !errors.Is(err, errInjected) {
		t.Fatalf("want injected error, got %v", err)
	}
	fs.failRead.Store(false)

	before := p.Stats().Hits
	expectFilled(t, p, 0, 'x')
	if p.Stats().Hits != before+1 {
		t.Fatal("block 0 must still be resident")
	}
}

// A failed write-back aborts the miss; the dirty victim is kept.
func TestPool_FailedWriteBackKeepsDirtyVictim(t *testing.T) {
	t.Parallel()

	fs := &flakyStore{Store: newStore(t)}
	p := New(Options{Capacity: 1, BlockSize: 8, Store: fs})

	if err := p.Write(5, fill('d')); err != nil {
		t.Fatal(err)
	}
	fs.failWrite.Store(true)
	if err := p.Read(6, func([]byte) {}); !errors.Is(err, errInjected) {
		t.Fatalf("want injected error, got %v", err)
	}
	if err := p.Flush(); !errors.Is(err, errInjected) {
		t.Fatalf("flush: want injected error, got %v", err)
	}
	st := p.Stats()
	if st.Dirty != 1 || st.Resident != 1 || st.Evictions != 0 {
		t.Fatalf("stats: %+v", st)
	}

	fs.failWrite.Store(false)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	buf := make([]byte, 8)
	if _, err := fs.ReadAt(buf, 5*8); err != nil || string(buf) != "dddddddd" {
		t.Fatalf("store after close: %q err=%v", buf, err)
	}
}

func TestPool_Errors(t *testing.T) {
	t.Parallel()

	p := New(Options{Capacity: 2, Store: newStore(t)})
	if err := p.Read(-1, func([]byte) {}); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("negative block: %v", err)
	}
	if err := p.Write(math.MaxInt64/DefaultBlockSize, func([]byte) {}); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("block past int64 offsets: %v", err)
	}
	// The highest block whose bytes fit below MaxInt64 is still addressable.
	expectFilled(t, p, math.MaxInt64/DefaultBlockSize-1, 0)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := p.Write(0, func([]byte) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("write after close: %v", err)
	}
}

// Block ids whose byte offset would wrap must not alias low blocks.
func TestPool_OffsetOverflowDoesNotAlias(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	p := New(Options{Capacity: 2, Shards: 1, Store: st})
	t.Cleanup(func() { _ = p.Close() })

	if err := p.Write(0, func(b []byte) { copy(b, "block-zero") }); err != nil {
		t.Fatal(err)
	}
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}

	const wrapped = int64(1) << 52 // 1<<52 * 4096 == 1<<64
	if err := p.Read(wrapped, func([]byte) { t.Fatal("callback must not run") }); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("read: want ErrInvalidBlock, got %v", err)
	}
	if err := p.Write(wrapped, func(b []byte) { copy(b, "CLOBBERED!") }); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("write: want ErrInvalidBlock, got %v", err)
	}
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 10)
	if _, err := st.ReadAt(buf, 0); err != nil || string(buf) != "block-zero" {
		t.Fatalf("store offset 0: %q err=%v", buf, err)
	}
}

// An access that got past the pool's closed check before Close still fails
// once it holds the shard lock, so nothing is left dirty after Close.
func TestPool_AccessRacingCloseIsRejected(t *testing.T) {
	t.Parallel()

	p := New(Options{Capacity: 2, Shards: 1, BlockSize: 8, Store: newStore(t)})
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	err := p.shardFor(3).access(3, true, func([]byte) { t.Fatal("callback must not run") })
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	if d := p.Stats().Dirty; d != 0 {
		t.Fatalf("dirty frames after close: %d", d)
	}
}

func TestPool_NewPanics(t *testing.T) {
	t.Parallel()

	for name, opt := range map[string]Options{
		"zero capacity": {Capacity: 0, Store: newStore(t)},
		"nil store":     {Capacity: 1},
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			New(opt)
		})
	}
}

// Shard count is rounded up to a power of two and capped by defaults.
func TestPool_ShardCount(t *testing.T) {
	t.Parallel()

	p := New(Options{Capacity: 64, Shards: 5, Store: newStore(t)})
	if len(p.shards) != 8 {
		t.Fatalf("shards: want 8, got %d", len(p.shards))
	}
	q := New(Options{Capacity: 1, Store: newStore(t)})
	if len(q.shards) != 1 {
		t.Fatalf("shards for capacity 1: want 1, got %d", len(q.shards))
	}
}

// Frames equal Capacity exactly, however the shards divide it.
func TestPool_FramesMatchCapacity(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ capacity, shards, wantShards int }{
		{5, 4, 4},
		{2, 8, 2},
		{100, 0, 0},
		{1, 16, 1},
	} {
		p := New(Options{Capacity: tc.capacity, Shards: tc.shards, BlockSize: 8, Store: newStore(t)})
		if got := p.Stats().Frames; got != tc.capacity {
			t.Fatalf("capacity %d shards %d: frames %d", tc.capacity, tc.shards, got)
		}
		if tc.wantShards != 0 && len(p.shards) != tc.wantShards {
			t.Fatalf("capacity %d shards %d: got %d shards", tc.capacity, tc.shards, len(p.shards))
		}
	}
}

// Concurrent workers own disjoint blocks; every read sees the owner's last write.
func TestPool_ConcurrentOwners(t *testing.T) {
	t.Parallel()

	p := New(Options{Capacity: 64, Shards: 8, BlockSize: 64, Store: newStore(t)})
	t.Cleanup(func() { _ = p.Close() })

	const workers, perWorker, rounds = 8, 32, 20
	g, _ := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for r := 0; r < rounds; r++ {
				for i := 0; i < perWorker; i++ {
					block := int64(w*perWorker + i)
					v := byte(w*rounds + r)
					if err := p.Write(block, fill(v)); err != nil {
						return err
					}
				}
				for i := 0; i < perWorker; i++ {
					block := int64(w*perWorker + i)
					want := byte(w*rounds + r)
					var got byte
					if err := p.Read(block, func(b []byte) { got = b[len(b)-1] }); err != nil {
						return err
					}
					if got != want {
						return fmt.Errorf("block %d: want %d, got %d", block, want, got)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if p.Stats().Evictions == 0 {
		t.Fatal("workload larger than the pool must evict")
	}
}
