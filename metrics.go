package spacetraveling

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eringen/spacetraveling/prismic"
)

// Metrics records content API and pagination outcomes.
type Metrics struct {
	contentRequests *prometheus.CounterVec
	contentDuration *prometheus.HistogramVec
	loadMore        *prometheus.CounterVec
	cacheFallbacks  prometheus.Counter
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		contentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spacetraveling",
			Name:      "content_requests_total",
			Help:      "Content API requests by operation and result",
		}, []string{"operation", "result"}),
		contentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spacetraveling",
			Name:      "content_request_duration_seconds",
			Help:      "Content API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		loadMore: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spacetraveling",
			Name:      "load_more_total",
			Help:      "Load-more requests by result",
		}, []string{"result"}),
		cacheFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spacetraveling",
			Name:      "page_cache_fallbacks_total",
			Help:      "Initial page served from a stale copy or snapshot after a failed load",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.contentRequests, m.contentDuration, m.loadMore, m.cacheFallbacks)
	}
	return m
}

// ObserveContentRequest records one content API call.
func (m *Metrics) ObserveContentRequest(op string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.contentRequests.WithLabelValues(op, result).Inc()
	m.contentDuration.WithLabelValues(op).Observe(d.Seconds())
}

// LoadMore records the outcome of one load-more request.
func (m *Metrics) LoadMore(result string) {
	m.loadMore.WithLabelValues(result).Inc()
}

// CacheFallback records that a fallback page was served.
func (m *Metrics) CacheFallback() {
	m.cacheFallbacks.Inc()
}

// instrumentedSource wraps a ContentSource with request metrics.
type instrumentedSource struct {
	ContentSource
	metrics *Metrics
}

func (s instrumentedSource) Query(ctx context.Context, predicates []prismic.Predicate, opts prismic.QueryOptions) (*prismic.Response, error) {
	start := time.Now()
	resp, err := s.ContentSource.Query(ctx, predicates, opts)
	s.metrics.ObserveContentRequest("query", time.Since(start), err)
	return resp, err
}

func (s instrumentedSource) FetchPage(ctx context.Context, rawURL string) (*prismic.Response, error) {
	start := time.Now()
	resp, err := s.ContentSource.FetchPage(ctx, rawURL)
	s.metrics.ObserveContentRequest("fetch_page", time.Since(start), err)
	return resp, err
}
