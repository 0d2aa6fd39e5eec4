package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gptchat/pkg/store"
)

// Counters and histograms exposed on /metrics. Registered once via
// promauto on the default registry.
var (
	MessagesSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gptchat_messages_saved_total",
		Help: "Messages written to the store, by author kind.",
	}, []string{"author"})

	Completions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gptchat_completions_total",
		Help: "Completion relay calls, by outcome (ok, fallback, error).",
	}, []string{"outcome"})

	CompletionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gptchat_completion_duration_seconds",
		Help:    "Wall time of upstream completion calls.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	ThreadsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gptchat_threads_deleted_total",
		Help: "Threads removed, individually or via bulk delete.",
	})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gptchat_event_subscribers",
		Help: "Currently connected SSE subscribers.",
	})
)

func init() {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gptchat_store_disk_bytes",
		Help: "On-disk size of the Pebble store.",
	}, func() float64 { return float64(store.DiskUsage()) })
}
