// Package metrics provides Prometheus metrics for ignblog.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CMSRequestsTotal counts content service requests by operation and status.
	CMSRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ignblog",
			Name:      "cms_requests_total",
			Help:      "Total number of content service requests",
		},
		[]string{"op", "status"},
	)

	// CMSRequestDuration measures content service request duration.
	CMSRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ignblog",
			Name:      "cms_request_duration_seconds",
			Help:      "Duration of content service requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// CacheLookupsTotal counts response cache lookups by result.
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ignblog",
			Name:      "cache_lookups_total",
			Help:      "Total number of response cache lookups",
		},
		[]string{"result"},
	)

	// LoadMoreTotal counts load-more operations by outcome.
	LoadMoreTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ignblog",
			Name:      "postlist_load_more_total",
			Help:      "Total number of load-more operations",
		},
		[]string{"outcome"},
	)

	// ViewsActive tracks open list views.
	ViewsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ignblog",
			Name:      "views_active",
			Help:      "Number of open post list views",
		},
	)

	// SiteBuildsTotal counts static builds by status.
	SiteBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ignblog",
			Name:      "site_builds_total",
			Help:      "Total number of static site builds",
		},
		[]string{"status"},
	)
)

// RecordCMSRequest records one content service request.
func RecordCMSRequest(op, status string, seconds float64) {
	CMSRequestsTotal.WithLabelValues(op, status).Inc()
	CMSRequestDuration.WithLabelValues(op).Observe(seconds)
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordLoadMore records the outcome of one load-more operation.
func RecordLoadMore(outcome string) {
	LoadMoreTotal.WithLabelValues(outcome).Inc()
}

// RecordBuild records a finished static build.
func RecordBuild(status string) {
	SiteBuildsTotal.WithLabelValues(status).Inc()
}
