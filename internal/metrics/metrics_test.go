package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/fetcher"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/metrics"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
)

func TestMetrics_Record(t *testing.T) {
	m := metrics.New()

	m.RecordFetch("ofac-sdn", fetcher.OutcomeServerError, 2*time.Second)
	m.RecordFetch("ofac-sdn", fetcher.OutcomeSuccess, time.Second)
	m.RecordFetch("ofac-sdn", fetcher.OutcomeSuccess, time.Second)
	m.RecordRateLimited("interpol-red-notices")
	m.RecordJob("crawl", "completed", 3*time.Second)
	m.RecordPersisted("sec-litigation", metrics.KindCrawlResult, 4)
	m.RecordPersisted("sec-litigation", metrics.KindCrawlResult, 0)
	m.RecordDuplicates("sec-litigation", 6)
	m.RecordEnrichment("IBAN", "ok")

	assert.InDelta(t, 2, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("ofac-sdn", fetcher.OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("ofac-sdn", fetcher.OutcomeServerError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RateLimitDenials.WithLabelValues("interpol-red-notices")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.JobsProcessed.WithLabelValues("crawl", "completed")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.ItemsPersisted.WithLabelValues("sec-litigation", metrics.KindCrawlResult)), 0)
	assert.InDelta(t, 6, testutil.ToFloat64(m.DuplicatesSkipped.WithLabelValues("sec-litigation")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EnrichmentRequests.WithLabelValues("IBAN", "ok")), 0)
}

func TestMetrics_QueueStatsAndHandler(t *testing.T) {
	m := metrics.New()
	m.SetQueueStats([]queue.Stats{{Queue: queue.Sanctions, Waiting: 2, Failed: 1, Delayed: 1}})

	assert.InDelta(t, 2, testutil.ToFloat64(m.QueueJobs.WithLabelValues("sanctions", "waiting")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.QueueJobs.WithLabelValues("sanctions", "failed")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.QueueJobs.WithLabelValues("sanctions", "active")), 0)

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `watchlist_ingestor_queue_jobs{queue="sanctions",state="waiting"} 2`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.New()
		metrics.New()
	})
}
