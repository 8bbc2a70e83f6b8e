package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/slotpool/internal/util"
	"github.com/IvanBrykalov/slotpool/sequencer"
	"github.com/IvanBrykalov/slotpool/storage"
)

const headerSize = 8

var (
	// ErrClosed is returned by Append after Close.
	ErrClosed = errors.New("journal: closed")
	// ErrRecordTooLarge is returned for records above Options.MaxRecordSize.
	ErrRecordTooLarge = errors.New("journal: record too large")
	// ErrCorrupt is returned by Replay for a damaged or truncated frame.
	ErrCorrupt = errors.New("journal: corrupt record")
)

// Stats is a snapshot of journal counters.
type Stats struct {
	Appended int64 // records accepted by Append
	Flushed  int64 // records written to the store
	Batches  int64 // store appends
	Bytes    int64 // framed bytes written
}

// Journal appends records to a store in batches.
// Append, Flush and Stats are safe for concurrent use.
type Journal struct {
	store storage.Store
	seq   *sequencer.Sequencer
	opt   Options
	log   *zap.Logger

	// slots[i] holds the payload of the record occupying sequencer index i.
	slots [][]byte

	// ---- owned by the draining goroutine ----
	batch   []byte
	pending int

	// mu guards closed against in-flight appends.
	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error // sticky store failure

	appended atomic.Int64
	flushed  atomic.Int64
	batches  atomic.Int64
	bytes    atomic.Int64

	stop chan struct{}
	done chan struct{}
}

// Open starts a journal that appends to store. The store stays owned by the
// caller and is not closed by Close.
func Open(store storage.Store, opt Options) (*Journal, error) {
	if store == nil {
		return nil, errors.New("journal: nil store")
	}
	if opt.Slots == 0 {
		opt.Slots = sequencer.DefaultCapacity
	}
	if opt.Slots < 0 || !util.IsPowerOfTwo(uint64(opt.Slots)) {
		return nil, fmt.Errorf("journal: slots must be a power of two, got %d", opt.Slots)
	}
	if opt.MaxRecordSize <= 0 {
		opt.MaxRecordSize = DefaultMaxRecordSize
	}
	// The frame header stores the length as uint32.
	if int64(opt.MaxRecordSize) > math.MaxUint32 {
		return nil, fmt.Errorf("journal: max record size %d exceeds %d", opt.MaxRecordSize, uint32(math.MaxUint32))
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	j := &Journal{
		store: store,
		opt:   opt,
		log:   opt.Logger,
		slots: make([][]byte, opt.Slots),
	}
	j.seq = sequencer.New(sequencer.Options{
		Capacity: opt.Slots,
		Consumer: j.consume,
		Logger:   opt.Logger,
		Metrics:  opt.Metrics,
	})

	if opt.FlushInterval > 0 {
		j.stop = make(chan struct{})
		j.done = make(chan struct{})
		go j.flushLoop(opt.FlushInterval)
	}
	j.log.Debug("journal open",
		zap.Int("slots", opt.Slots),
		zap.Int64("offset", store.Size()),
		zap.Bool("sync_on_batch", opt.SyncOnBatch))
	return j, nil
}

// Append buffers rec. It blocks only while the ring is full, draining it
// itself if no one else does. A record is in the store once a later Flush
// returns. rec may be reused after Append returns.
func (j *Journal) Append(rec []byte) error {
	if len(rec) > j.opt.MaxRecordSize {
		return fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, len(rec), j.opt.MaxRecordSize)
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}
	if err := j.Err(); err != nil {
		return err
	}

	i := j.seq.Reserve()
	j.slots[i] = append(j.slots[i][:0], rec...)
	j.seq.MarkReady(i)
	j.appended.Add(1)
	return nil
}

// Flush writes every record appended before the call and returns the sticky
// store error, if any.
func (j *Journal) Flush() error {
	target := j.seq.Reserved()
	for !sequencer.Reached(j.seq.Released(), target) {
		if j.seq.Drain() == 0 {
			// Either another drain is running or an earlier producer has not
			// marked its slot yet.
			runtime.Gosched()
		}
	}
	return j.Err()
}

// Close stops the background flusher, flushes, and rejects further appends.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	if j.stop != nil {
		close(j.stop)
		<-j.done
	}
	err := j.Flush()
	st := j.Stats()
	j.log.Debug("journal closed",
		zap.Int64("records", st.Flushed),
		zap.Int64("batches", st.Batches),
		zap.Error(err))
	return err
}

// Err returns the first store failure, which makes the journal reject
// further appends.
func (j *Journal) Err() error {
	j.errMu.Lock()
	defer j.errMu.Unlock()
	return j.err
}

// Stats returns current counters.
func (j *Journal) Stats() Stats {
	return Stats{
		Appended: j.appended.Load(),
		Flushed:  j.flushed.Load(),
		Batches:  j.batches.Load(),
		Bytes:    j.bytes.Load(),
	}
}

func (j *Journal) flushLoop(every time.Duration) {
	defer close(j.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-j.stop:
			return
		case <-t.C:
			j.seq.Drain()
		}
	}
}

// consume runs inside Drain, which the sequencer serializes.
func (j *Journal) consume(index int, last bool) error {
	rec := j.slots[index]
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(rec)))
	binary.LittleEndian.PutUint32(hdr[4:8], util.Checksum32(rec))
	j.batch = append(j.batch, hdr[:]...)
	j.batch = append(j.batch, rec...)
	j.pending++

	if !last {
		return nil
	}
	return j.commit()
}

func (j *Journal) commit() error {
	buf, n := j.batch, j.pending
	j.batch, j.pending = j.batch[:0], 0

	if err := j.Err(); err != nil {
		return err
	}
	err := j.store.Append(buf)
	if err == nil && j.opt.SyncOnBatch {
		err = j.store.Sync()
	}
	if err != nil {
		err = fmt.Errorf("journal: write batch of %d records: %w", n, err)
		j.errMu.Lock()
		if j.err == nil {
			j.err = err
		}
		j.errMu.Unlock()
		return err
	}
	j.flushed.Add(int64(n))
	j.batches.Add(1)
	j.bytes.Add(int64(len(buf)))
	return nil
}
