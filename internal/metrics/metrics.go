// Package metrics exposes the crawler's statistics as Prometheus
// collectors, the same promauto-based pattern
// Generativebots-ocx-backend-go-svc/internal/escrow/metrics.go uses for
// its own subsystem metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Crawler holds every Prometheus collector the crawler subsystem reports
// through, satisfying spec.md §6's "stats sink (stats_add_crawl)" hook.
type Crawler struct {
	RunsTotal          *prometheus.CounterVec
	ItemsChecked       *prometheus.CounterVec
	ItemsReclaimed     *prometheus.CounterVec
	ActiveClasses      prometheus.Gauge
	SinkClosedTotal    prometheus.Counter
	TTLHistogram       *prometheus.HistogramVec
}

// NewCrawler registers and returns the crawler's metrics against the
// default registry.
func NewCrawler() *Crawler {
	return &Crawler{
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Total number of LRU crawls started, by crawl type.",
			},
			[]string{"type"},
		),
		ItemsChecked: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_checked_total",
				Help: "Total number of items the crawler examined, by class.",
			},
			[]string{"class"},
		),
		ItemsReclaimed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_reclaimed_total",
				Help: "Total number of items the crawler reaped, by class.",
			},
			[]string{"class"},
		),
		ActiveClasses: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_classes",
				Help: "Number of LRU classes currently being crawled (0 when idle).",
			},
		),
		SinkClosedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_sink_closed_total",
				Help: "Total number of times the client sink closed mid-crawl.",
			},
		),
		TTLHistogram: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_ttl_seconds",
				Help:    "Observed remaining TTL of live items seen by the expired-mode crawl.",
				Buckets: prometheus.LinearBuckets(0, 300, 13),
			},
			[]string{"class"},
		),
	}
}
