package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	QueueDepth          prometheus.Gauge
	ItemsTotal          *prometheus.CounterVec
	ItemDuration        *prometheus.HistogramVec
	RunsTotal           *prometheus.CounterVec
	DrainDuration       prometheus.Histogram
	DiscoveredURLs      *prometheus.CounterVec
	FetchDuration       *prometheus.HistogramVec

	initOnce sync.Once
)

// Init registers every collector once. It is safe to call from tests.
func Init() {
	initOnce.Do(register)
}

func register() {
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_queue_depth",
			Help: "Current number of item jobs waiting in the broker.",
		},
	)

	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_items_total",
			Help: "Catalog item attempts by outcome and error kind.",
		},
		[]string{"outcome", "kind"}, // outcome: completed, failed, requeued, skipped
	)

	ItemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_item_duration_seconds",
			Help:    "Duration of one catalog item attempt.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"platform"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_runs_total",
			Help: "Catalog run transitions by resulting status.",
		},
		[]string{"status"},
	)

	DrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_drain_duration_seconds",
			Help:    "Wall-clock duration of drain invocations.",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	DiscoveredURLs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_discovery_urls_total",
			Help: "Candidate product urls discovered by strategy.",
		},
		[]string{"strategy"}, // sitemap, adapter, sitemap_unfiltered
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_fetch_duration_seconds",
			Help:    "Duration of page fetches.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"fetcher", "host"},
	)
}
