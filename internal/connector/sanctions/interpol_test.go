package sanctions_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector/sanctions"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noticesServer serves pages 1..pages, each with one notice, linking to the
// next page until the last. A negative pages value links forever.
func noticesServer(t *testing.T, pages int) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "160", r.URL.Query().Get("resultPerPage"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))

		next := ""
		if pages < 0 || page < pages {
			next = fmt.Sprintf(`,"next":{"href":"%s/notices?page=%d&resultPerPage=160"}`, srv.URL, page+1)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{
			"total": %d,
			"_embedded": {"notices": [{
				"entity_id": "2026/%d",
				"forename": "JANE",
				"name": "ROE",
				"date_of_birth": "1980/02/03",
				"nationalities": ["FR", "DZ"],
				"sex_id": "F",
				"height": 1.7,
				"weight": 0,
				"eyes_colors_id": ["BRO"],
				"hairs_id": ["BLA"],
				"distinguishing_marks": "Scar on left hand",
				"languages_spoken_ids": ["FRE", "ARA"]
			}]},
			"_links": {"self": {"href": "%s"}%s}
		}`, pages, page, r.URL.String(), next)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestInterpol_FollowsNextLinks(t *testing.T) {
	t.Parallel()

	srv, hits := noticesServer(t, 3)

	var delays []time.Duration
	c := sanctions.NewInterpol(sourceConfig("interpol-red-notices", domain.ConnectorTypeAPI, srv.URL+"/notices"),
		newClient(), logger.NewNop(), sanctions.WithClock(clock))
	c.SetSleep(func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	})

	entries, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{sanctions.InterpolPageDelay, sanctions.InterpolPageDelay}, delays)

	first := entries[0]
	assert.Equal(t, "2026/1", first.ExternalID)
	assert.Equal(t, domain.EntryIndividual, first.Type)
	assert.Equal(t, domain.StringList{"JANE ROE"}, first.Names)
	assert.Equal(t, "1980-02-03", first.DateOfBirth)
	assert.Equal(t, domain.StringList{"FR", "DZ"}, first.Nationalities)
	assert.Equal(t,
		"Sex: F; Height: 1.7 m; Eyes: BRO; Hair: BLA; Distinguishing marks: Scar on left hand; Languages: FRE, ARA",
		first.Remarks,
	)
	assert.Contains(t, string(first.RawData), `"entity_id": "2026/1"`)
}

func TestInterpol_PageCap(t *testing.T) {
	t.Parallel()

	srv, hits := noticesServer(t, -1)
	c := sanctions.NewInterpol(sourceConfig("interpol-red-notices", domain.ConnectorTypeAPI, srv.URL+"/notices"),
		newClient(), logger.NewNop())
	c.SetSleep(noSleep)

	entries, err := c.Fetch(context.Background())
	require.NoError(t, err, "hitting the cap is not fatal")
	assert.Len(t, entries, sanctions.InterpolMaxPages)
	assert.Equal(t, int32(sanctions.InterpolMaxPages), hits.Load())
}

func TestInterpol_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := serveBody(t, "application/json", `{"_embedded":`)
	c := sanctions.NewInterpol(sourceConfig("interpol-red-notices", domain.ConnectorTypeAPI, srv.URL), newClient(), nil)

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
}
