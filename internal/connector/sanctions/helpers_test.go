package sanctions_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/fetcher"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/ratelimit"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time {
	return fixedNow
}

func noSleep(context.Context, time.Duration) error {
	return nil
}

func newClient() *connector.SourceClient {
	limiter := ratelimit.New(ratelimit.NewMemoryStore(clock), ratelimit.WithClock(clock))
	f := fetcher.New(fetcher.Config{}, logger.NewNop(), fetcher.WithSleep(noSleep))
	return connector.NewSourceClient(limiter, f, nil, logger.NewNop())
}

func serveBody(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sourceConfig(id string, typ domain.ConnectorType, url string) domain.ConnectorConfig {
	return domain.ConnectorConfig{
		ID:        id,
		Name:      id,
		Type:      typ,
		URL:       url,
		Frequency: domain.FrequencyDaily,
		Priority:  1,
		Enabled:   true,
	}
}
