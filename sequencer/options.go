package sequencer

import "go.uber.org/zap"

// DefaultCapacity is the ring size used when Options.Capacity is zero.
const DefaultCapacity = 128

// Consumer processes the payload named by index. last is true for the final
// slot of the run being drained. Consumer runs while Drain holds the busy
// flag: it must not block indefinitely and must not call Reserve.
type Consumer func(index int, last bool) error

// Metrics exposes sequencer observability hooks.
// NoopMetrics is used when none is configured.
type Metrics interface {
	// Reserve counts a successful reservation.
	Reserve()
	// Contention counts a lost compare-and-swap on the producer cursor.
	Contention()
	// Full counts a Reserve or TryReserve call that found no free slot. A
	// Reserve that spins on a full ring counts once.
	Full()
	// Batch records a drained run of n slots (n > 0).
	Batch(n int)
	// Decline counts a Drain call that returned because another was running.
	// Drains run internally by a waiting Reserve are not counted.
	Decline()
	// ConsumerError counts a Consumer call that returned an error or panicked.
	ConsumerError()
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) Reserve()       {}
func (NoopMetrics) Contention()    {}
func (NoopMetrics) Full()          {}
func (NoopMetrics) Batch(int)      {}
func (NoopMetrics) Decline()       {}
func (NoopMetrics) ConsumerError() {}

var _ Metrics = NoopMetrics{}

// Options configures a Sequencer. Zero values are safe:
//   - Capacity 0  => DefaultCapacity
//   - nil Consumer => slots are released without processing
//   - nil Logger   => zap.NewNop()
//   - nil Metrics  => NoopMetrics
type Options struct {
	// Capacity is the number of slots. It must be a power of two.
	Capacity int

	// Consumer receives every drained slot.
	Consumer Consumer

	// Logger records Consumer failures.
	Logger *zap.Logger

	Metrics Metrics
}
