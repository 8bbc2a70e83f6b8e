package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/slotpool/sequencer"
)

// SequencerAdapter implements sequencer.Metrics.
type SequencerAdapter struct {
	reserves   prometheus.Counter
	contention prometheus.Counter
	full       prometheus.Counter
	declines   prometheus.Counter
	errors     prometheus.Counter
	batch      prometheus.Histogram
}

// NewSequencer registers sequencer collectors with reg (nil => default).
func NewSequencer(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *SequencerAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	a := &SequencerAdapter{
		reserves:   counter("reserves_total", "Slots handed to producers"),
		contention: counter("reserve_conflicts_total", "Reserve attempts that lost a race and retried"),
		full:       counter("full_total", "Reserve attempts that found the ring full"),
		declines:   counter("drain_declined_total", "Drain calls that found another drain running"),
		errors:     counter("consumer_errors_total", "Consumer calls that failed or panicked"),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "drain_batch_slots",
			Help:        "Slots consumed per non-empty drain",
			Buckets:     prometheus.ExponentialBuckets(1, 2, 10),
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.reserves, a.contention, a.full, a.declines, a.errors, a.batch)
	return a
}

func (a *SequencerAdapter) Reserve()       { a.reserves.Inc() }
func (a *SequencerAdapter) Contention()    { a.contention.Inc() }
func (a *SequencerAdapter) Full()          { a.full.Inc() }
func (a *SequencerAdapter) Decline()       { a.declines.Inc() }
func (a *SequencerAdapter) ConsumerError() { a.errors.Inc() }
func (a *SequencerAdapter) Batch(n int)    { a.batch.Observe(float64(n)) }

var _ sequencer.Metrics = (*SequencerAdapter)(nil)
