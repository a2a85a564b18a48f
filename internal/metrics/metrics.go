// Package metrics exposes the ingestor's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/fetcher"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
)

const namespace = "watchlist_ingestor"

// Record kinds for ItemsPersisted.
const (
	KindCrawlResult   = "crawl_result"
	KindSanctionEntry = "sanction_entry"
)

// Metrics holds every collector. Construct with New.
type Metrics struct {
	registry *prometheus.Registry

	// Jobs
	JobsProcessed *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	QueueJobs     *prometheus.GaugeVec

	// Fetching
	FetchAttempts    *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	RateLimitDenials *prometheus.CounterVec

	// Results
	ItemsPersisted     *prometheus.CounterVec
	DuplicatesSkipped  *prometheus.CounterVec
	EnrichmentRequests *prometheus.CounterVec
}

var _ fetcher.Recorder = (*Metrics)(nil)

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		JobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Jobs that finished an attempt, by queue and status.",
		}, []string{"queue", "status"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of one job attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"queue"}),
		QueueJobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_jobs",
			Help:      "Jobs per queue and state at the last stats collection.",
		}, []string{"queue", "state"}),
		FetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "HTTP fetch attempts by source and outcome.",
		}, []string{"source_id", "outcome"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one HTTP fetch attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source_id"}),
		RateLimitDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denials_total",
			Help:      "Fetches refused by the per-source rate limit.",
		}, []string{"source_id"}),
		ItemsPersisted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_persisted_total",
			Help:      "Records written to storage.",
		}, []string{"source_id", "kind"}),
		DuplicatesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_skipped_total",
			Help:      "Harvested items dropped because their content hash was already stored.",
		}, []string{"source_id"}),
		EnrichmentRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_requests_total",
			Help:      "Requests sent to the matching service, by entity type and status.",
		}, []string{"entity_type", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordFetch implements fetcher.Recorder.
func (m *Metrics) RecordFetch(sourceID, outcome string, d time.Duration) {
	m.FetchAttempts.WithLabelValues(sourceID, outcome).Inc()
	if d > 0 {
		m.FetchDuration.WithLabelValues(sourceID).Observe(d.Seconds())
	}
}

// RecordJob counts one finished attempt.
func (m *Metrics) RecordJob(queueName, status string, d time.Duration) {
	m.JobsProcessed.WithLabelValues(queueName, status).Inc()
	m.JobDuration.WithLabelValues(queueName).Observe(d.Seconds())
}

// RecordRateLimited counts one refused fetch.
func (m *Metrics) RecordRateLimited(sourceID string) {
	m.RateLimitDenials.WithLabelValues(sourceID).Inc()
}

// RecordPersisted adds n stored records of kind.
func (m *Metrics) RecordPersisted(sourceID, kind string, n int) {
	if n > 0 {
		m.ItemsPersisted.WithLabelValues(sourceID, kind).Add(float64(n))
	}
}

// RecordDuplicates adds n skipped items.
func (m *Metrics) RecordDuplicates(sourceID string, n int) {
	if n > 0 {
		m.DuplicatesSkipped.WithLabelValues(sourceID).Add(float64(n))
	}
}

// RecordEnrichment counts one matching request.
func (m *Metrics) RecordEnrichment(entityType, status string) {
	m.EnrichmentRequests.WithLabelValues(entityType, status).Inc()
}

// SetQueueStats publishes the latest per-state job counts.
func (m *Metrics) SetQueueStats(stats []queue.Stats) {
	for _, s := range stats {
		name := string(s.Queue)
		m.QueueJobs.WithLabelValues(name, string(queue.StateWaiting)).Set(float64(s.Waiting))
		m.QueueJobs.WithLabelValues(name, string(queue.StateActive)).Set(float64(s.Active))
		m.QueueJobs.WithLabelValues(name, string(queue.StateCompleted)).Set(float64(s.Completed))
		m.QueueJobs.WithLabelValues(name, string(queue.StateFailed)).Set(float64(s.Failed))
		m.QueueJobs.WithLabelValues(name, "delayed").Set(float64(s.Delayed))
	}
}
