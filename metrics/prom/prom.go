// Package prom exports slotpool metrics hooks as Prometheus collectors.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/slotpool/bufpool"
)

// PoolAdapter implements bufpool.Metrics and exports Prometheus counters.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type PoolAdapter struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	evicts     *prometheus.CounterVec
	writeBacks prometheus.Counter
	wbBytes    prometheus.Counter
}

// NewPool constructs a buffer pool metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func NewPool(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *PoolAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &PoolAdapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Block accesses served from a resident frame",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Block accesses that loaded from the store",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Frames rebound to another block, by victim state",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		writeBacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "write_backs_total",
			Help:        "Dirty frames written to the store",
			ConstLabels: constLabels,
		}),
		wbBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "write_back_bytes_total",
			Help:        "Bytes written to the store by write-backs",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.writeBacks, a.wbBytes)
	return a
}

// Hit increments the hit counter.
func (a *PoolAdapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *PoolAdapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *PoolAdapter) Evict(r bufpool.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// WriteBack counts one write-back of n bytes.
func (a *PoolAdapter) WriteBack(n int) {
	a.writeBacks.Inc()
	a.wbBytes.Add(float64(n))
}

// Compile-time check: ensure PoolAdapter implements bufpool.Metrics.
var _ bufpool.Metrics = (*PoolAdapter)(nil)
