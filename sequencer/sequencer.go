package sequencer

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/slotpool/internal/util"
)

type constError string

func (e constError) Error() string { return string(e) }

// ErrConsumerPanic wraps a panic recovered from the Consumer.
const ErrConsumerPanic = constError("sequencer: consumer panicked")

// Sequencer is a lock-free multi-producer, single-consumer slot allocator.
// Reserve, MarkReady and the read-only accessors are safe for concurrent use.
// Drain is meant for one consumer; concurrent calls decline instead of
// interleaving.
type Sequencer struct {
	// ---- producer side ----
	next util.PaddedAtomicUint64 // next virtual sequence to reserve

	// ---- consumer side ----
	freed util.PaddedAtomicUint64 // sequences returned to the pool
	busy  util.PaddedAtomicUint32 // 1 while a Drain runs

	ready []atomic.Uint32 // per-index ready flag
	mask  uint64
	size  uint64

	consume Consumer
	log     *zap.Logger
	metrics Metrics
}

// New builds a Sequencer from opt. It panics if Capacity is not a power of two.
func New(opt Options) *Sequencer {
	return newAt(opt, 0)
}

// newAt starts both cursors at seq instead of zero. Tests use it to run the
// ring across the uint64 wrap.
func newAt(opt Options, seq uint64) *Sequencer {
	if opt.Capacity == 0 {
		opt.Capacity = DefaultCapacity
	}
	if opt.Capacity < 0 || !util.IsPowerOfTwo(uint64(opt.Capacity)) {
		panic(fmt.Sprintf("sequencer: capacity must be a power of two, got %d", opt.Capacity))
	}
	if opt.Consumer == nil {
		opt.Consumer = func(int, bool) error { return nil }
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	s := &Sequencer{
		ready:   make([]atomic.Uint32, opt.Capacity),
		mask:    uint64(opt.Capacity - 1),
		size:    uint64(opt.Capacity),
		consume: opt.Consumer,
		log:     opt.Logger,
		metrics: opt.Metrics,
	}
	s.next.Store(seq)
	s.freed.Store(seq)
	return s
}

// Reserve claims a free slot and returns its index in [0, Capacity).
//
// It never blocks in the OS sense. Lost races are retried at once; on a full
// ring Reserve runs Drain to free space and yields the processor if that made
// no progress, looping until a slot is obtained. Callers must not invoke
// Reserve from inside the Consumer.
//
// Full is reported once per call that finds the ring full, however long it
// then spins; drains it runs while waiting do not report Decline.
func (s *Sequencer) Reserve() int {
	i, ok := s.tryReserve()
	if ok {
		return i
	}
	s.metrics.Full()
	for {
		if s.drain(false) == 0 {
			runtime.Gosched()
		}
		if i, ok = s.tryReserve(); ok {
			return i
		}
	}
}

// TryReserve makes reservation attempts without draining. It retries lost
// races but returns false as soon as the ring is full.
func (s *Sequencer) TryReserve() (int, bool) {
	i, ok := s.tryReserve()
	if !ok {
		s.metrics.Full()
	}
	return i, ok
}

func (s *Sequencer) tryReserve() (int, bool) {
	for {
		n := s.next.Load()
		// freed only grows, so a stale read can only understate free space.
		if n-s.freed.Load() >= s.size {
			return 0, false
		}
		if s.next.CompareAndSwap(n, n+1) {
			i := n & s.mask
			s.ready[i].Store(0)
			s.metrics.Reserve()
			return int(i), true
		}
		s.metrics.Contention()
	}
}

// MarkReady publishes the slot at index for consumption. index must come
// from Reserve and must not already be ready.
func (s *Sequencer) MarkReady(index int) {
	s.check(index)
	if !s.ready[index].CompareAndSwap(0, 1) {
		panic(fmt.Sprintf("sequencer: slot %d marked ready twice", index))
	}
}

// Produced reports whether index currently holds ready data.
// The answer may be stale by the time the caller looks at it.
func (s *Sequencer) Produced(index int) bool {
	s.check(index)
	return s.ready[index].Load() == 1
}

// Drain consumes the longest contiguous run of ready slots starting at the
// oldest allocated sequence and returns its length.
//
// Each slot goes to the Consumer in sequence order; only the final one has
// last set. The ready flag is cleared after each call and the whole run is
// returned to the free pool at the end. Drain returns 0 without effect when
// nothing is ready or when another Drain is in progress (see Busy).
func (s *Sequencer) Drain() int {
	return s.drain(true)
}

func (s *Sequencer) drain(countDecline bool) int {
	if !s.busy.CompareAndSwap(0, 1) {
		if countDecline {
			s.metrics.Decline()
		}
		return 0
	}
	defer s.busy.Store(0)

	first := s.freed.Load()
	end := s.next.Load()

	run := uint64(0)
	for seq := first; seq != end && s.ready[seq&s.mask].Load() == 1; seq++ {
		run++
	}
	if run == 0 {
		return 0
	}

	for k := uint64(0); k < run; k++ {
		i := (first + k) & s.mask
		last := k == run-1
		if err := s.call(int(i), last); err != nil {
			s.metrics.ConsumerError()
			s.log.Warn("sequencer: consumer failed",
				zap.Int("index", int(i)),
				zap.Bool("last", last),
				zap.Error(err))
		}
		s.ready[i].Store(0)
	}

	s.freed.Store(first + run)
	s.metrics.Batch(int(run))
	return int(run)
}

// call runs the Consumer, converting a panic into an error so that one bad
// record cannot wedge the ring.
func (s *Sequencer) call(index int, last bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrConsumerPanic, r)
		}
	}()
	return s.consume(index, last)
}

// Busy reports whether a Drain is running at this instant. A caller whose
// Drain returned 0 can use it to decide whether to try again.
func (s *Sequencer) Busy() bool { return s.busy.Load() == 1 }

// Allocated returns the number of reserved slots not yet returned by Drain.
func (s *Sequencer) Allocated() int {
	// Read freed first: next can only have grown since, so the difference is
	// never negative. It may overshoot under concurrency, hence the clamp.
	f := s.freed.Load()
	used := s.next.Load() - f
	if used > s.size {
		used = s.size
	}
	return int(used)
}

// Reserved returns the virtual reservation cursor: the number of Reserve
// calls that have succeeded, modulo 2^64.
func (s *Sequencer) Reserved() uint64 { return s.next.Load() }

// Released returns the virtual release cursor. Every sequence below it has
// been passed to the Consumer. Compare cursors with Reached.
func (s *Sequencer) Released() uint64 { return s.freed.Load() }

// Reached reports whether cursor has caught up with target, treating both as
// positions on the wrapping uint64 ring.
func Reached(cursor, target uint64) bool { return int64(cursor-target) >= 0 }

// Free returns the number of slots available to Reserve.
func (s *Sequencer) Free() int { return s.Capacity() - s.Allocated() }

// Capacity returns the number of slots.
func (s *Sequencer) Capacity() int { return int(s.size) }

func (s *Sequencer) check(index int) {
	if index < 0 || uint64(index) >= s.size {
		panic(fmt.Sprintf("sequencer: index %d out of range [0,%d)", index, s.size))
	}
}
