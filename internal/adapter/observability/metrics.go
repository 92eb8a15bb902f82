package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsCollectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_collected_total",
			Help: "Total number of jobs collected per source",
		},
		[]string{"source"},
	)
	DuplicatesAvoidedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_duplicates_avoided_total",
			Help: "Total number of duplicate jobs dropped by the deduper",
		},
	)
	RecordsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_records_rejected_total",
			Help: "Raw records dropped for invariant violations",
		},
		[]string{"source"},
	)
	QuotaSpendTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_spend_total",
			Help: "Paid-API spend decisions by outcome",
		},
		[]string{"decision"},
	)
	CacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_ops_total",
			Help: "Result cache lookups by outcome (hit, miss, expired)",
		},
		[]string{"outcome"},
	)
	RequestQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "request_queue_depth",
			Help: "Requests currently waiting in the processor queue",
		},
	)
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_requests_total",
			Help: "Requests handled by the processor, by terminal status",
		},
		[]string{"endpoint", "status"},
	)
	SlotDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_slot_duration_seconds",
			Help:    "Wall-clock duration of a scheduler slot",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"hour"},
	)
	AdapterScrapeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adapter_scrape_duration_seconds",
			Help:    "Duration of a single adapter scrape",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"source"},
	)
	SinkUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_upserts_total",
			Help: "Normalized jobs handed to the downstream sink, by outcome",
		},
		[]string{"sink", "outcome"},
	)
)

var registerOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to
// call from both binaries; registration happens once per process.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			JobsCollectedTotal,
			DuplicatesAvoidedTotal,
			RecordsRejectedTotal,
			QuotaSpendTotal,
			CacheOpsTotal,
			RequestQueueDepth,
			RequestsTotal,
			SlotDuration,
			AdapterScrapeDuration,
			SinkUpsertsTotal,
		)
	})
}
