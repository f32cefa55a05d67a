package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the engine's prometheus instruments.
type Collector struct {
	searchTotal    *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	contextTokens  prometheus.Histogram
	generateTotal  *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		searchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextforge",
			Name:      "search_requests_total",
			Help:      "Search calls by scorer type and outcome.",
		}, []string{"type", "status"}),
		searchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "contextforge",
			Name:      "search_duration_seconds",
			Help:      "Search latency by scorer type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		contextTokens: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "contextforge",
			Name:      "context_window_tokens",
			Help:      "Total tokens of assembled context windows.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 10),
		}),
		generateTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextforge",
			Name:      "generate_requests_total",
			Help:      "Generation calls by outcome.",
		}, []string{"status"}),
	}
}

func (c *Collector) ObserveSearch(searchType string, d time.Duration, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.searchTotal.WithLabelValues(searchType, status).Inc()
	c.searchDuration.WithLabelValues(searchType).Observe(d.Seconds())
}

func (c *Collector) ObserveContextWindow(totalTokens int) {
	if c == nil {
		return
	}
	c.contextTokens.Observe(float64(totalTokens))
}

func (c *Collector) ObserveGenerate(err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.generateTotal.WithLabelValues(status).Inc()
}
