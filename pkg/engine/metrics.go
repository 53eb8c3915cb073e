package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/flametrace/pkg/util"
)

type metrics struct {
	spans             prometheus.Counter
	pruned            prometheus.Counter
	degenerate        prometheus.Counter
	allocationEvents  prometheus.Counter
	throughputBuckets prometheus.Counter
	duration          *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		spans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flametrace",
			Name:      "spans_analyzed_total",
			Help:      "Number of spans laid out by depth assignment.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flametrace",
			Name:      "spans_pruned_total",
			Help:      "Number of isolated root spans dropped from the layout.",
		}),
		degenerate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flametrace",
			Name:      "degenerate_spans_total",
			Help:      "Number of zero-duration spans without a self-time percentage.",
		}),
		allocationEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flametrace",
			Name:      "allocation_events_total",
			Help:      "Number of allocation events accumulated into memory timelines.",
		}),
		throughputBuckets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flametrace",
			Name:      "throughput_buckets_total",
			Help:      "Number of aggregated total throughput buckets.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flametrace",
			Name:      "analysis_duration_seconds",
			Help:      "Time spent deriving a view.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"view"}),
	}
	m.spans = util.RegisterOrGet(reg, m.spans)
	m.pruned = util.RegisterOrGet(reg, m.pruned)
	m.degenerate = util.RegisterOrGet(reg, m.degenerate)
	m.allocationEvents = util.RegisterOrGet(reg, m.allocationEvents)
	m.throughputBuckets = util.RegisterOrGet(reg, m.throughputBuckets)
	m.duration = util.RegisterOrGet(reg, m.duration)
	return m
}
