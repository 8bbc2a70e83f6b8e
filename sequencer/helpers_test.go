package sequencer

import "sync/atomic"

// call is one Consumer invocation.
type call struct {
	index int
	last  bool
}

// recorder collects Consumer invocations. Drain serialises calls, so the
// slice needs no lock as long as it is read after the drains finished.
type recorder struct {
	calls []call
	fail  map[int]error
}

func (r *recorder) consume(i int, last bool) error {
	r.calls = append(r.calls, call{i, last})
	return r.fail[i]
}

func (r *recorder) reset() []call {
	out := r.calls
	r.calls = nil
	return out
}

type countingMetrics struct {
	reserves, contention, full, batches, drained, declines, errors atomic.Int64
}

func (m *countingMetrics) Reserve()       { m.reserves.Add(1) }
func (m *countingMetrics) Contention()    { m.contention.Add(1) }
func (m *countingMetrics) Full()          { m.full.Add(1) }
func (m *countingMetrics) Batch(n int)    { m.batches.Add(1); m.drained.Add(int64(n)) }
func (m *countingMetrics) Decline()       { m.declines.Add(1) }
func (m *countingMetrics) ConsumerError() { m.errors.Add(1) }

var _ Metrics = (*countingMetrics)(nil)

func mustPanic(t interface {
	Helper()
	Fatalf(string, ...any)
}, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", what)
		}
	}()
	fn()
}
