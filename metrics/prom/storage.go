package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pebblestore "github.com/IvanBrykalov/slotpool/storage/pebble"
)

// StorageAdapter implements pebblestore.MetricsHook with latency histograms
// and byte counters.
type StorageAdapter struct {
	latency *prometheus.HistogramVec
	bytes   *prometheus.CounterVec
	ops     prometheus.Counter
}

// NewStorage registers storage collectors with reg (nil => default).
func NewStorage(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *StorageAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &StorageAdapter{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "op_seconds",
			Help:        "Store operation latency by kind",
			Buckets:     prometheus.ExponentialBuckets(10e-6, 4, 10),
			ConstLabels: constLabels,
		}, []string{"op"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "bytes_total",
			Help:        "Bytes moved by kind",
			ConstLabels: constLabels,
		}, []string{"op"}),
		ops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "batch_ops_total",
			Help:        "Pebble operations committed in batches",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.latency, a.bytes, a.ops)
	return a
}

func (a *StorageAdapter) ObserveWrite(elapsed time.Duration, n int) {
	a.latency.WithLabelValues("write").Observe(elapsed.Seconds())
	a.bytes.WithLabelValues("write").Add(float64(n))
}

func (a *StorageAdapter) ObserveRead(elapsed time.Duration, n int) {
	a.latency.WithLabelValues("read").Observe(elapsed.Seconds())
	a.bytes.WithLabelValues("read").Add(float64(n))
}

func (a *StorageAdapter) ObserveBatchCommit(elapsed time.Duration, numOps, _ int) {
	a.latency.WithLabelValues("commit").Observe(elapsed.Seconds())
	a.ops.Add(float64(numOps))
}

var _ pebblestore.MetricsHook = (*StorageAdapter)(nil)
