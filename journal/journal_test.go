package journal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestJournal_AppendFlushReplay(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	m := &batchMetrics{}
	j, err := Open(st, Options{Slots: 8, Metrics: m})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"alpha", "", "gamma", strings.Repeat("x", 1000)}
	for _, r := range want {
		if err := j.Append([]byte(r)); err != nil {
			t.Fatalf("append %q: %v", r, err)
		}
	}
	if st.Size() != 0 {
		t.Fatal("nothing may reach the store before a drain")
	}
	if err := j.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := replayAll(t, st); !slices.Equal(got, want) {
		t.Fatalf("replay: want %q, got %q", want, got)
	}

	s := j.Stats()
	if s.Appended != 4 || s.Flushed != 4 || s.Batches != 1 {
		t.Fatalf("stats: %+v", s)
	}
	if s.Bytes != st.Size() {
		t.Fatalf("bytes %d != store size %d", s.Bytes, st.Size())
	}
	if m.batches.Load() != 1 || m.records.Load() != 4 {
		t.Fatalf("metrics: batches=%d records=%d", m.batches.Load(), m.records.Load())
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
}

// Appending more records than slots drains the ring from the producer side.
func TestJournal_RingFullDrainsInline(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	j, err := Open(st, Options{Slots: 4})
	if err != nil {
		t.Fatal(err)
	}
	var want []string
	for i := 0; i < 10; i++ {
		r := "r" + strconv.Itoa(i)
		want = append(want, r)
		if err := j.Append([]byte(r)); err != nil {
			t.Fatal(err)
		}
	}
	if j.Stats().Flushed == 0 {
		t.Fatal("a full ring must have been drained by Append")
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	if got := replayAll(t, st); !slices.Equal(got, want) {
		t.Fatalf("replay: want %q, got %q", want, got)
	}
}

// Concurrent producers: nothing lost, per-producer order kept.
func TestJournal_ConcurrentProducers(t *testing.T) {
	t.Parallel()

	const producers = 8
	perProducer := 2000
	if testing.Short() {
		perProducer = 200
	}

	st := newStore(t)
	j, err := Open(st, Options{Slots: 16})
	if err != nil {
		t.Fatal(err)
	}

	g, _ := errgroup.WithContext(context.Background())
	for p := 0; p < producers; p++ {
		g.Go(func() error {
			for n := 0; n < perProducer; n++ {
				if err := j.Append([]byte(fmt.Sprintf("%d:%d", p, n))); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	next := make([]int, producers)
	for _, rec := range replayAll(t, st) {
		var p, n int
		if _, err := fmt.Sscanf(rec, "%d:%d", &p, &n); err != nil {
			t.Fatalf("bad record %q", rec)
		}
		if n != next[p] {
			t.Fatalf("producer %d: want record %d, got %d", p, next[p], n)
		}
		next[p]++
	}
	for p, n := range next {
		if n != perProducer {
			t.Fatalf("producer %d: want %d records, got %d", p, perProducer, n)
		}
	}
}

func TestJournal_SyncOnBatch(t *testing.T) {
	t.Parallel()

	cs := &countingStore{Store: newStore(t)}
	j, err := Open(cs, Options{Slots: 8, SyncOnBatch: true})
	if err != nil {
		t.Fatal(err)
	}
	for round := 0; round < 3; round++ {
		_ = j.Append([]byte("a"))
		_ = j.Append([]byte("b"))
		if err := j.Flush(); err != nil {
			t.Fatal(err)
		}
	}
	if cs.appends.Load() != 3 || cs.syncs.Load() != 3 {
		t.Fatalf("appends=%d syncs=%d, want 3 each", cs.appends.Load(), cs.syncs.Load())
	}
}

// A store failure is sticky: Flush reports it and Append refuses new records.
func TestJournal_StoreFailureIsSticky(t *testing.T) {
	t.Parallel()

	cs := &countingStore{Store: newStore(t)}
	j, err := Open(cs, Options{Slots: 8})
	if err != nil {
		t.Fatal(err)
	}
	cs.failAppend.Store(true)
	_ = j.Append([]byte("lost"))
	if err := j.Flush(); !errors.Is(err, errInjected) {
		t.Fatalf("flush: want injected error, got %v", err)
	}
	cs.failAppend.Store(false)
	if err := j.Append([]byte("after")); !errors.Is(err, errInjected) {
		t.Fatalf("append after failure: want injected error, got %v", err)
	}
	if err := j.Close(); !errors.Is(err, errInjected) {
		t.Fatalf("close: want injected error, got %v", err)
	}
	if j.Stats().Flushed != 0 {
		t.Fatal("failed batch must not count as flushed")
	}
}

func TestJournal_BackgroundFlush(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	j, err := Open(st, Options{Slots: 8, FlushInterval: 2 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = j.Close() })

	_ = j.Append([]byte("tick"))
	deadline := time.Now().Add(5 * time.Second)
	for j.Stats().Flushed != 1 {
		if time.Now().After(deadline) {
			t.Fatal("background flusher did not drain")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestJournal_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Open(nil, Options{}); err == nil {
		t.Fatal("nil store must fail")
	}
	if _, err := Open(newStore(t), Options{Slots: 3}); err == nil {
		t.Fatal("non power of two slots must fail")
	}
	if strconv.IntSize == 64 {
		tooBig := int64(math.MaxUint32) + 1
		if _, err := Open(newStore(t), Options{MaxRecordSize: int(tooBig)}); err == nil {
			t.Fatal("a record limit past the uint32 length field must fail")
		}
		j, err := Open(newStore(t), Options{MaxRecordSize: int(tooBig - 1)})
		if err != nil {
			t.Fatalf("limit of MaxUint32 must be accepted: %v", err)
		}
		_ = j.Close()
	}

	j, err := Open(newStore(t), Options{MaxRecordSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Append([]byte("12345")); !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("want ErrRecordTooLarge, got %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := j.Append([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}
