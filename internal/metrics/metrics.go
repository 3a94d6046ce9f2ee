// Package metrics holds the Prometheus collectors of a harvest run. They register on the
// default registry; the status server exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvester_quota_remaining",
		Help: "Remaining API calls reported by the last response",
	})

	RateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvester_rate_limit_wait_seconds",
		Help:    "Time spent waiting for the API quota, by reason",
		Buckets: []float64{0.5, 1, 5, 30, 60, 300, 900, 3600},
	}, []string{"reason"})

	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_retries_total",
		Help: "Retried attempts by failure class",
	}, []string{"class"})

	RetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_retry_exhausted_total",
		Help: "Operations that ran out of retry attempts",
	})

	PagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_pages_fetched_total",
		Help: "Search result pages fetched successfully",
	})

	RecordsPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_records_persisted_total",
		Help: "Records upserted into the store",
	})

	PartitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_partitions_total",
		Help: "Partitions finished, by result",
	}, []string{"result"})

	FetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvester_fetch_duration_seconds",
		Help:    "Duration of a page fetch, retries and waits included",
		Buckets: prometheus.DefBuckets,
	})
)
