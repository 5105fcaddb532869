package nbtree

import "github.com/prometheus/client_golang/prometheus"

// StoreMetrics are the counters every BlockStore implementation exposes,
// mirroring the small set of block/byte counters tsdb/tsm1/metrics.go
// registers for the TSM engine.
type StoreMetrics struct {
	Appends      prometheus.Counter
	Reads        prometheus.Counter
	AppendErrors prometheus.Counter
	ReadErrors   prometheus.Counter
	BytesWritten prometheus.Counter
}

// NewStoreMetrics registers a fresh set of counters under the given
// registerer, labeled by name (e.g. "memory" or "file"). Passing a nil
// registerer is fine; the counters simply won't be exported.
func NewStoreMetrics(reg prometheus.Registerer, name string) *StoreMetrics {
	labels := prometheus.Labels{"store": name}
	m := &StoreMetrics{
		Appends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "nbtree",
			Name:        "blockstore_appends_total",
			Help:        "Number of successful block appends.",
			ConstLabels: labels,
		}),
		Reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "nbtree",
			Name:        "blockstore_reads_total",
			Help:        "Number of successful block reads.",
			ConstLabels: labels,
		}),
		AppendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "nbtree",
			Name:        "blockstore_append_errors_total",
			Help:        "Number of failed block appends.",
			ConstLabels: labels,
		}),
		ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "nbtree",
			Name:        "blockstore_read_errors_total",
			Help:        "Number of failed block reads (includes corruption).",
			ConstLabels: labels,
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "nbtree",
			Name:        "blockstore_bytes_written_total",
			Help:        "Total bytes appended to the store.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Appends, m.Reads, m.AppendErrors, m.ReadErrors, m.BytesWritten)
	}
	return m
}
