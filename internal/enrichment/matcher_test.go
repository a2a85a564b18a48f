package enrichment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/enrichment"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/retry"
)

func ibanRequest() enrichment.Request {
	return enrichment.Request{
		ContentHash: "abc123",
		SourceID:    "sec-litigation",
		Entity: domain.ExtractedEntity{
			Type:       domain.EntityIBAN,
			Value:      "DE89 3704 0044 0532 0130 00",
			Normalized: "DE89370400440532013000",
			Confidence: 0.95,
		},
	}
}

func TestHTTPMatcher_Match(t *testing.T) {
	var received enrichment.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/match", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"matches":[{"case_id":"case-42","record_type":"perpetrator","score":0.91}]}`))
	}))
	t.Cleanup(srv.Close)

	m := enrichment.NewHTTPMatcher(srv.URL+"/", time.Second, nil)
	matches, err := m.Match(context.Background(), ibanRequest())
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, enrichment.Match{CaseID: "case-42", RecordType: "perpetrator", Score: 0.91}, matches[0])
	assert.Equal(t, "abc123", received.ContentHash)
	assert.Equal(t, "DE89370400440532013000", received.Entity.Normalized)
}

func TestHTTPMatcher_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unsupported entity type", http.StatusUnprocessableEntity)
	}))
	t.Cleanup(srv.Close)

	breaker := circuitbreaker.New("enrichment", circuitbreaker.Config{FailureThreshold: 1})
	m := enrichment.NewHTTPMatcher(srv.URL, time.Second, breaker)

	_, err := m.Match(context.Background(), ibanRequest())
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.Contains(t, err.Error(), "unsupported entity type")
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())
}

func TestHTTPMatcher_ServerErrorsOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	breaker := circuitbreaker.New("enrichment", circuitbreaker.Config{FailureThreshold: 2, Cooldown: time.Hour})
	m := enrichment.NewHTTPMatcher(srv.URL, time.Second, breaker)

	for range 2 {
		_, err := m.Match(context.Background(), ibanRequest())
		require.Error(t, err)
		assert.False(t, retry.IsPermanent(err))
	}

	_, err := m.Match(context.Background(), ibanRequest())
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPMatcher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m := enrichment.NewHTTPMatcher(url, time.Second, nil)
	_, err := m.Match(context.Background(), ibanRequest())
	require.ErrorIs(t, err, enrichment.ErrUnavailable)
}

func TestNopMatcher(t *testing.T) {
	matches, err := enrichment.NopMatcher{}.Match(context.Background(), ibanRequest())
	require.NoError(t, err)
	assert.Empty(t, matches)
}
