package indexer_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/indexer"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
)

// mockTransport implements http.RoundTripper for mocking Elasticsearch responses
type mockTransport struct {
	RoundTripFn func(req *http.Request) (*http.Response, error)
	requests    []*http.Request
	bodies      []string
}

func (t *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.requests = append(t.requests, req)
	body := ""
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		body = string(b)
	}
	t.bodies = append(t.bodies, body)
	return t.RoundTripFn(req)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{"X-Elastic-Product": []string{"Elasticsearch"}},
	}
}

func newIndexer(t *testing.T, transport *mockTransport) *indexer.Indexer {
	t.Helper()
	client, err := es.NewClient(es.Config{Transport: transport})
	require.NoError(t, err)
	return indexer.NewWithClient(client, "watchlist_content", logger.NewNop())
}

func sampleResult() *domain.CrawlResult {
	published := time.Date(2026, 2, 27, 14, 0, 0, 0, time.UTC)
	return &domain.CrawlResult{
		SourceID:    "sec-litigation",
		ExternalID:  "https://www.sec.gov/litigation/lr-26001",
		URL:         "https://www.sec.gov/litigation/lr-26001",
		Title:       "SEC Charges Investment Adviser",
		Content:     "Funds were routed to DE89370400440532013000.",
		PublishedAt: &published,
		Language:    "en",
		ContentHash: "9f2c",
		Entities: domain.NewJSONB([]domain.ExtractedEntity{
			{Type: domain.EntityIBAN, Value: "DE89370400440532013000", Normalized: "DE89370400440532013000", Confidence: 0.95},
		}),
	}
}

func TestIndexer_Index(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(*http.Request) (*http.Response, error) {
		return response(http.StatusCreated, `{"result":"created"}`), nil
	}}
	idx := newIndexer(t, transport)

	require.NoError(t, idx.Index(context.Background(), sampleResult()))

	require.Len(t, transport.requests, 1)
	req := transport.requests[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/watchlist_content/_doc/9f2c", req.URL.Path)
	assert.Equal(t, "create", req.URL.Query().Get("op_type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(transport.bodies[0]), &doc))
	assert.Equal(t, "sec-litigation", doc["source_id"])
	entities, ok := doc["entities"].([]any)
	require.True(t, ok)
	assert.Len(t, entities, 1)
}

func TestIndexer_IndexConflictIsNoop(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(*http.Request) (*http.Response, error) {
		return response(http.StatusConflict, `{"error":{"type":"version_conflict_engine_exception"}}`), nil
	}}
	idx := newIndexer(t, transport)

	require.NoError(t, idx.Index(context.Background(), sampleResult()))
}

func TestIndexer_IndexErrors(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(*http.Request) (*http.Response, error) {
		return response(http.StatusBadRequest, `{"error":{"type":"mapper_parsing_exception"}}`), nil
	}}
	idx := newIndexer(t, transport)

	err := idx.Index(context.Background(), sampleResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")

	noHash := sampleResult()
	noHash.ContentHash = ""
	require.Error(t, idx.Index(context.Background(), noHash))
}

func TestIndexer_EnsureIndex(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodHead {
			return response(http.StatusNotFound, ``), nil
		}
		return response(http.StatusOK, `{"acknowledged":true}`), nil
	}}
	idx := newIndexer(t, transport)

	require.NoError(t, idx.EnsureIndex(context.Background()))
	require.Len(t, transport.requests, 2)
	assert.Equal(t, http.MethodPut, transport.requests[1].Method)
	assert.Equal(t, "/watchlist_content", transport.requests[1].URL.Path)
	assert.Contains(t, transport.bodies[1], `"content_hash": {"type": "keyword"}`)
}

func TestIndexer_EnsureIndexExisting(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, ``), nil
	}}
	idx := newIndexer(t, transport)

	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Len(t, transport.requests, 1)
}

func TestIndexer_Ping(t *testing.T) {
	status := http.StatusOK
	transport := &mockTransport{RoundTripFn: func(*http.Request) (*http.Response, error) {
		return response(status, `{}`), nil
	}}
	idx := newIndexer(t, transport)

	require.NoError(t, idx.Ping(context.Background()))

	status = http.StatusServiceUnavailable
	require.Error(t, idx.Ping(context.Background()))
}

func TestNew_Disabled(t *testing.T) {
	idx, err := indexer.New(config.ElasticsearchConfig{}, logger.NewNop())
	require.NoError(t, err)
	assert.Nil(t, idx)
}
