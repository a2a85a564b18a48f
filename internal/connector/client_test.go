package connector_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/fetcher"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	calls []fetcher.Request
	err   error
}

func (s *stubFetcher) Fetch(_ context.Context, req fetcher.Request) (*fetcher.Response, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	header := http.Header{}
	header.Set("Content-Type", "application/xml")
	return &fetcher.Response{URL: req.URL, StatusCode: http.StatusOK, Header: header, Body: []byte("<x/>")}, nil
}

type stubArchiver struct {
	sourceID    string
	contentType string
	err         error
}

func (a *stubArchiver) Archive(_ context.Context, sourceID, contentType string, _ []byte) error {
	a.sourceID = sourceID
	a.contentType = contentType
	return a.err
}

func newLimiter() *ratelimit.Limiter {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		return now
	}
	return ratelimit.New(ratelimit.NewMemoryStore(clock), ratelimit.WithClock(clock))
}

func TestSourceClient_RateLimitDeniesWithoutFetching(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{}
	client := connector.NewSourceClient(newLimiter(), f, nil, logger.NewNop())
	src := domain.ConnectorConfig{ID: "s1", RateLimit: "2/minute", AuthEnv: "TOKEN"}

	for range 2 {
		_, err := client.Get(context.Background(), src, "https://example.test", connector.AcceptXML)
		require.NoError(t, err)
	}

	_, err := client.Get(context.Background(), src, "https://example.test", connector.AcceptXML)
	require.ErrorIs(t, err, ratelimit.ErrRateLimited)

	var rlErr *ratelimit.Error
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, "s1", rlErr.SourceID)
	assert.Len(t, f.calls, 2)
	assert.Equal(t, "TOKEN", f.calls[0].AuthEnv)
	assert.Equal(t, connector.AcceptXML, f.calls[0].Accept)
}

func TestSourceClient_Archives(t *testing.T) {
	t.Parallel()

	archiver := &stubArchiver{err: errors.New("bucket gone")}
	client := connector.NewSourceClient(newLimiter(), &stubFetcher{}, archiver, logger.NewNop())

	resp, err := client.Get(context.Background(), domain.ConnectorConfig{ID: "s2"}, "https://example.test", "")
	require.NoError(t, err, "archive failures are not fatal")
	assert.Equal(t, []byte("<x/>"), resp.Body)
	assert.Equal(t, "s2", archiver.sourceID)
	assert.Equal(t, "application/xml", archiver.contentType)
}

func TestSourceClient_FetchErrorWrapped(t *testing.T) {
	t.Parallel()

	cause := &fetcher.ClientError{URL: "https://example.test", StatusCode: http.StatusNotFound}
	client := connector.NewSourceClient(newLimiter(), &stubFetcher{err: cause}, nil, nil)

	_, err := client.Get(context.Background(), domain.ConnectorConfig{ID: "s3"}, "https://example.test", "")
	require.Error(t, err)
	assert.True(t, fetcher.IsClientError(err))
}

func TestParseError(t *testing.T) {
	t.Parallel()

	cause := errors.New("missing uid")
	err := &connector.ParseError{SourceID: "ofac-sdn", EntryID: "42", Err: cause}
	assert.Equal(t, "ofac-sdn: parse entry 42: missing uid", err.Error())
	assert.ErrorIs(t, err, cause)

	anon := &connector.ParseError{SourceID: "feed", Err: cause}
	assert.Equal(t, "feed: parse entry: missing uid", anon.Error())
}
