// Package enrichment is the client side of the entity-to-case matching
// service. The pipeline sends one request per qualifying entity; how matches
// are found is up to the service.
package enrichment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/retry"
)

//go:generate mockgen -destination=../../testutils/mocks/enrichment/matcher.go -package=enrichment . Matcher

const (
	defaultTimeout = 10 * time.Second
	matchPath      = "/api/v1/match"
	maxErrorBody   = 512
)

// ErrUnavailable indicates the matching service is unreachable.
var ErrUnavailable = errors.New("enrichment service unavailable")

// Request identifies one entity found in a stored CrawlResult.
type Request struct {
	ContentHash string                 `json:"content_hash"`
	SourceID    string                 `json:"source_id,omitempty"`
	Entity      domain.ExtractedEntity `json:"entity"`
}

// JobID names the enrichment job for r. The same entity of the same
// content always gets the same id.
func (r Request) JobID() string {
	sum := sha256.Sum256([]byte(string(r.Entity.Type) + "\x00" + r.Entity.Normalized))
	return r.ContentHash[:min(len(r.ContentHash), 16)] + "-" + hex.EncodeToString(sum[:8])
}

// Match is one candidate case or perpetrator record.
type Match struct {
	CaseID     string  `json:"case_id"`
	RecordType string  `json:"record_type,omitempty"`
	Score      float64 `json:"score"`
}

// Matcher finds existing records related to an entity.
type Matcher interface {
	Match(ctx context.Context, req Request) ([]Match, error)
}

// NopMatcher never finds anything. Used when no service is configured.
type NopMatcher struct{}

// Match implements Matcher.
func (NopMatcher) Match(context.Context, Request) ([]Match, error) {
	return nil, nil
}

type matchResponse struct {
	Matches []Match `json:"matches"`
}

// HTTPMatcher posts requests to the matching service.
type HTTPMatcher struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// NewHTTPMatcher creates a matcher for the service at baseURL.
func NewHTTPMatcher(baseURL string, timeout time.Duration, breaker *circuitbreaker.Breaker) *HTTPMatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if breaker == nil {
		breaker = circuitbreaker.New("enrichment", circuitbreaker.Config{})
	}
	return &HTTPMatcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}
}

// Match implements Matcher. Rejected requests (4xx) are permanent; the
// breaker counts only unreachable and 5xx responses.
func (m *HTTPMatcher) Match(ctx context.Context, req Request) ([]Match, error) {
	if err := m.breaker.Allow(); err != nil {
		return nil, err
	}

	matches, err := m.post(ctx, req)
	if retry.IsPermanent(err) {
		m.breaker.Record(nil)
	} else {
		m.breaker.Record(err)
	}
	return matches, err
}

func (m *HTTPMatcher) post(ctx context.Context, req Request) ([]Match, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+matchPath, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("enrichment service returned %d", resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, retry.Permanent(fmt.Errorf("enrichment service rejected request: %d %s",
			resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var result matchResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return result.Matches, nil
}
