package bufpool

import (
	"errors"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/slotpool/internal/util"
)

var (
	// ErrClosed is returned by operations on a closed pool.
	ErrClosed = errors.New("bufpool: closed")
	// ErrInvalidBlock is returned for negative block ids and for ids whose
	// byte range does not fit in an int64 offset.
	ErrInvalidBlock = errors.New("bufpool: invalid block")
)

// Pool caches fixed-size blocks of a store in memory.
// All methods are safe for concurrent use by multiple goroutines.
type Pool struct {
	shards []*shard
	opt    Options
	closed atomic.Bool

	// limit is the first block id whose end offset overflows int64.
	limit int64
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	WriteBacks int64
	Resident   int
	Dirty      int
	Frames     int // allocated frames, equal to Options.Capacity
}

// New constructs a pool with the provided Options.
// It panics if Capacity <= 0 or Store is nil.
func New(opt Options) *Pool {
	if opt.Capacity <= 0 {
		panic("bufpool: Capacity must be > 0")
	}
	if opt.Store == nil {
		panic("bufpool: Store is required")
	}
	if opt.BlockSize <= 0 {
		opt.BlockSize = DefaultBlockSize
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	sh := opt.Shards
	if sh <= 0 {
		sh = util.ReasonableShardCount(opt.Capacity)
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}
	// Every shard needs at least one frame.
	for sh > 1 && sh > opt.Capacity {
		sh >>= 1
	}

	p := &Pool{opt: opt, limit: math.MaxInt64 / int64(opt.BlockSize)}
	p.shards = make([]*shard, sh)
	// Split Capacity exactly: the first Capacity%sh shards take one extra frame.
	base, extra := opt.Capacity/sh, opt.Capacity%sh
	for i := range p.shards {
		n := base
		if i < extra {
			n++
		}
		p.shards[i] = newShard(n, opt, &p.closed)
	}
	opt.Logger.Debug("buffer pool ready",
		zap.Int("frames", opt.Capacity),
		zap.Int("shards", sh),
		zap.Int("block_size", opt.BlockSize))

	return p
}

// Read calls fn with the contents of block, loading it on a miss.
// fn must not modify or retain the slice.
func (p *Pool) Read(block int64, fn func(b []byte)) error {
	return p.access(block, false, fn)
}

// Write calls fn with the contents of block for in-place modification and
// marks the frame dirty. fn must not retain the slice.
func (p *Pool) Write(block int64, fn func(b []byte)) error {
	return p.access(block, true, fn)
}

func (p *Pool) access(block int64, write bool, fn func([]byte)) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if block < 0 || block >= p.limit {
		return ErrInvalidBlock
	}
	return p.shardFor(block).access(block, write, fn)
}

// Flush writes every dirty frame back and syncs the store.
func (p *Pool) Flush() error {
	var errs []error
	for _, s := range p.shards {
		if err := s.flush(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.opt.Store.Sync(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stats sums counters over all shards.
func (p *Pool) Stats() Stats {
	var st Stats
	for _, s := range p.shards {
		s.stats(&st)
	}
	return st
}

// Close flushes dirty frames and rejects further access. An access that
// races with Close either completes before the final write-back or fails
// with ErrClosed. The store is left open; its owner closes it.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.Flush()
}

// shardFor picks a shard by hashing the block id.
// len(p.shards) is a power of two.
func (p *Pool) shardFor(block int64) *shard {
	return p.shards[util.ShardIndex(util.HashBlock(block), len(p.shards))]
}
