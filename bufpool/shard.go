package bufpool

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/slotpool/internal/util"
	"github.com/IvanBrykalov/slotpool/lru"
)

// shard is an independent partition of the pool with its own lock, eviction
// list and frame arena. Frame i belongs to lru slot i.
type shard struct {
	// ---- guarded by mu ----
	mu      sync.Mutex
	list    *lru.List[int64]
	frames  [][]byte
	dirty   []bool
	scratch []byte
	ndirty  int

	opt    Options
	closed *atomic.Bool // owning pool's flag, rechecked under mu

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicUint64
	misses util.PaddedAtomicUint64
	evicts util.PaddedAtomicUint64
	writes util.PaddedAtomicUint64
}

func newShard(frames int, opt Options, closed *atomic.Bool) *shard {
	s := &shard{
		closed:  closed,
		list:    lru.New[int64](frames),
		frames:  make([][]byte, frames),
		dirty:   make([]bool, frames),
		scratch: make([]byte, opt.BlockSize),
		opt:     opt,
	}
	for i := range s.frames {
		s.frames[i] = make([]byte, opt.BlockSize)
	}
	return s
}

// access resolves block to a frame (loading on miss) and runs fn on it.
func (s *shard) access(block int64, write bool, fn func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}

	slot, ok := s.list.Lookup(block)
	if ok {
		s.list.Promote(block)
		s.hits.Add(1)
		s.opt.Metrics.Hit()
	} else {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		var err error
		if slot, err = s.loadLocked(block); err != nil {
			return err
		}
	}

	fn(s.frames[slot])
	if write && !s.dirty[slot] {
		s.dirty[slot] = true
		s.ndirty++
	}
	return nil
}

// loadLocked rebinds the victim frame to block. On failure the victim stays
// resident with its contents untouched.
func (s *shard) loadLocked(block int64) (int, error) {
	old, slot, resident := s.list.Victim()

	reason := EvictClean
	if resident && s.dirty[slot] {
		if err := s.writeBackLocked(old, slot); err != nil {
			return 0, err
		}
		reason = EvictDirty
	}

	if err := s.readBlock(block, s.scratch); err != nil {
		return 0, err
	}
	s.frames[slot], s.scratch = s.scratch, s.frames[slot]

	if got := s.list.Use(block); got != slot {
		panic(fmt.Sprintf("bufpool: victim slot %d, list bound %d", slot, got))
	}
	if resident {
		s.evicts.Add(1)
		s.opt.Metrics.Evict(reason)
		if s.opt.OnEvict != nil {
			s.opt.OnEvict(old, reason)
		}
	}
	return slot, nil
}

// readBlock fills buf from the store; bytes past the end of the store read
// as zero.
func (s *shard) readBlock(block int64, buf []byte) error {
	n, err := s.opt.Store.ReadAt(buf, block*int64(s.opt.BlockSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("bufpool: read block %d: %w", block, err)
	}
	clear(buf[n:])
	return nil
}

func (s *shard) writeBackLocked(block int64, slot int) error {
	buf := s.frames[slot]
	if _, err := s.opt.Store.WriteAt(buf, block*int64(s.opt.BlockSize)); err != nil {
		s.opt.Logger.Warn("write-back failed", zap.Int64("block", block), zap.Error(err))
		return fmt.Errorf("bufpool: write back block %d: %w", block, err)
	}
	s.dirty[slot] = false
	s.ndirty--
	s.writes.Add(1)
	s.opt.Metrics.WriteBack(len(buf))
	return nil
}

// flush writes back every dirty resident frame, continuing past failures.
func (s *shard) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ndirty == 0 {
		return nil
	}
	var errs []error
	for block := range s.list.Keys() {
		slot, _ := s.list.Lookup(block)
		if !s.dirty[slot] {
			continue
		}
		if err := s.writeBackLocked(block, slot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *shard) stats(st *Stats) {
	st.Hits += int64(s.hits.Load())
	st.Misses += int64(s.misses.Load())
	st.Evictions += int64(s.evicts.Load())
	st.WriteBacks += int64(s.writes.Load())

	s.mu.Lock()
	st.Resident += s.list.Len()
	st.Frames += s.list.Cap()
	st.Dirty += s.ndirty
	s.mu.Unlock()
}
