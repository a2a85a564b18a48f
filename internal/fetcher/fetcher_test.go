package fetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/fetcher"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func (s *sleepRecorder) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, w := range s.waits {
		sum += w
	}
	return sum
}

type fetchRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *fetchRecorder) RecordFetch(_, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func statusSequence(t *testing.T, codes ...int) (*httptest.Server, *int32) {
	t.Helper()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		idx := int(n) - 1
		if idx >= len(codes) {
			idx = len(codes) - 1
		}
		w.WriteHeader(codes[idx])
		_, _ = w.Write([]byte("body"))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestFetch_RetriesServerErrorsThenSucceeds(t *testing.T) {
	t.Parallel()

	srv, calls := statusSequence(t, http.StatusInternalServerError, http.StatusInternalServerError, http.StatusOK)
	sleeper := &sleepRecorder{}
	rec := &fetchRecorder{}

	f := fetcher.New(fetcher.Config{}, logger.NewNop(), fetcher.WithSleep(sleeper.sleep), fetcher.WithRecorder(rec))
	resp, err := f.Fetch(context.Background(), fetcher.Request{SourceID: "ofac", URL: srv.URL})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "body", string(resp.Body))
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.waits)
	assert.Equal(t, 6*time.Second, sleeper.total())
	assert.Equal(t, []string{
		fetcher.OutcomeServerError, fetcher.OutcomeServerError, fetcher.OutcomeSuccess,
	}, rec.outcomes)
}

func TestFetch_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	srv, calls := statusSequence(t, http.StatusNotFound)
	sleeper := &sleepRecorder{}

	f := fetcher.New(fetcher.Config{}, logger.NewNop(), fetcher.WithSleep(sleeper.sleep))
	_, err := f.Fetch(context.Background(), fetcher.Request{SourceID: "eu", URL: srv.URL})

	require.Error(t, err)
	var ce *fetcher.ClientError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, http.StatusNotFound, ce.StatusCode)
	assert.Equal(t, "body", ce.Body)
	assert.True(t, fetcher.IsClientError(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Empty(t, sleeper.waits)
}

func TestFetch_ExhaustedAttempts(t *testing.T) {
	t.Parallel()

	srv, calls := statusSequence(t, http.StatusServiceUnavailable)
	sleeper := &sleepRecorder{}

	f := fetcher.New(fetcher.Config{MaxAttempts: 3}, logger.NewNop(), fetcher.WithSleep(sleeper.sleep))
	_, err := f.Fetch(context.Background(), fetcher.Request{URL: srv.URL})

	require.Error(t, err)
	var fe *fetcher.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, srv.URL, fe.URL)
	assert.Equal(t, 3, fe.Attempts)
	assert.Contains(t, err.Error(), "after 3 attempts")

	var se *fetcher.ServerError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestFetch_NetworkErrorIsRetried(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sleeper := &sleepRecorder{}
	f := fetcher.New(fetcher.Config{}, logger.NewNop(), fetcher.WithSleep(sleeper.sleep))
	_, err := f.Fetch(context.Background(), fetcher.Request{URL: url})

	var fe *fetcher.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 3, fe.Attempts)
	assert.Len(t, sleeper.waits, 2)
}

func TestFetch_Headers(t *testing.T) {
	t.Parallel()

	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	env := map[string]string{"INTERPOL_TOKEN": "s3cret"}
	f := fetcher.New(fetcher.Config{UserAgent: "test-agent/2"}, logger.NewNop(),
		fetcher.WithGetenv(func(k string) string { return env[k] }))

	_, err := f.Fetch(context.Background(), fetcher.Request{
		URL:     srv.URL,
		Accept:  "application/json",
		AuthEnv: "INTERPOL_TOKEN",
		Headers: map[string]string{"X-Api-Version": "2", "User-Agent": "ignored"},
	})
	require.NoError(t, err)

	got := <-headers
	assert.Equal(t, "test-agent/2", got.Get("User-Agent"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "Bearer s3cret", got.Get("Authorization"))
	assert.Equal(t, "2", got.Get("X-Api-Version"))
}

func TestFetch_MissingTokenSendsNoAuthorization(t *testing.T) {
	t.Parallel()

	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
	}))
	t.Cleanup(srv.Close)

	f := fetcher.New(fetcher.Config{}, logger.NewNop(), fetcher.WithGetenv(func(string) string { return "" }))
	_, err := f.Fetch(context.Background(), fetcher.Request{URL: srv.URL, AuthEnv: "MISSING"})
	require.NoError(t, err)

	got := <-headers
	assert.Empty(t, got.Get("Authorization"))
	assert.Equal(t, "*/*", got.Get("Accept"))
	assert.Equal(t, fetcher.DefaultUserAgent, got.Get("User-Agent"))
}

func TestFetch_BodyTooLarge(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	t.Cleanup(srv.Close)

	sleeper := &sleepRecorder{}
	f := fetcher.New(fetcher.Config{MaxBodyBytes: 16}, logger.NewNop(), fetcher.WithSleep(sleeper.sleep))
	_, err := f.Fetch(context.Background(), fetcher.Request{URL: srv.URL})

	require.ErrorIs(t, err, fetcher.ErrBodyTooLarge)
	assert.Empty(t, sleeper.waits)
}

func TestFetch_CircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	srv, calls := statusSequence(t, http.StatusBadGateway)
	sleeper := &sleepRecorder{}
	rec := &fetchRecorder{}
	breakers := circuitbreaker.NewGroup(circuitbreaker.Config{FailureThreshold: 2, Cooldown: time.Hour})

	f := fetcher.New(fetcher.Config{}, logger.NewNop(),
		fetcher.WithSleep(sleeper.sleep),
		fetcher.WithBreakers(breakers),
		fetcher.WithRecorder(rec),
	)
	_, err := f.Fetch(context.Background(), fetcher.Request{SourceID: "interpol", URL: srv.URL})

	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	var fe *fetcher.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, srv.URL, fe.URL)
	assert.Equal(t, 3, fe.Attempts)
	// the queue decides whether the job runs again
	assert.False(t, retry.IsPermanent(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.Equal(t, circuitbreaker.StateOpen, breakers.Get("interpol").State())
	assert.Equal(t, fetcher.OutcomeCircuitOpen, rec.outcomes[len(rec.outcomes)-1])

	// the next fetch fails without touching the network or sleeping
	waits := len(sleeper.waits)
	_, err = f.Fetch(context.Background(), fetcher.Request{SourceID: "interpol", URL: srv.URL})
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.Attempts)
	assert.False(t, retry.IsPermanent(err))
	assert.Len(t, sleeper.waits, waits)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestFetch_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv, _ := statusSequence(t, http.StatusOK)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := fetcher.New(fetcher.Config{}, logger.NewNop())
	_, err := f.Fetch(ctx, fetcher.Request{URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	cfg := fetcher.Config{}.WithDefaults()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.BackoffBase)
	assert.Equal(t, fetcher.DefaultUserAgent, cfg.UserAgent)
}
