package sanctions

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/retry"
)

const (
	// InterpolPageSize is the largest page the notices API serves.
	InterpolPageSize = 160
	// InterpolMaxPages bounds link-driven pagination.
	InterpolMaxPages = 100
	// InterpolPageDelay separates consecutive page requests.
	InterpolPageDelay = 500 * time.Millisecond

	redNoticeProgram = "INTERPOL-RED-NOTICE"
)

// Interpol walks the Red Notices API page by page.
type Interpol struct {
	base
	sleep func(context.Context, time.Duration) error
}

var _ connector.SanctionsConnector = (*Interpol)(nil)

// NewInterpol creates the Red Notices connector.
func NewInterpol(cfg domain.ConnectorConfig, client *connector.SourceClient, log logger.Logger, opts ...Option) *Interpol {
	return &Interpol{
		base:  newBase(cfg, client, log, opts),
		sleep: retry.SleepContext,
	}
}

// SetSleep replaces the inter-page delay, for tests.
func (c *Interpol) SetSleep(sleep func(context.Context, time.Duration) error) {
	c.sleep = sleep
}

// Fetch follows "next" links from the first page until the API stops
// returning one or InterpolMaxPages pages have been read.
func (c *Interpol) Fetch(ctx context.Context) ([]domain.SanctionEntry, error) {
	next, err := firstPageURL(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.cfg.ID, err)
	}

	var entries []domain.SanctionEntry
	for page := 1; next != ""; page++ {
		if page > InterpolMaxPages {
			c.log.Warn("Interpol pagination cap reached, stopping",
				logger.Int("max_pages", InterpolMaxPages),
				logger.Int("entries", len(entries)),
			)
			break
		}
		if page > 1 {
			if sleepErr := c.sleep(ctx, InterpolPageDelay); sleepErr != nil {
				return nil, sleepErr
			}
		}

		resp, getErr := c.client.Get(ctx, c.cfg, next, connector.AcceptJSON)
		if getErr != nil {
			return nil, fmt.Errorf("page %d: %w", page, getErr)
		}
		if !gjson.ValidBytes(resp.Body) {
			return nil, fmt.Errorf("%s: page %d: invalid json", c.cfg.ID, page)
		}

		doc := gjson.ParseBytes(resp.Body)
		doc.Get("_embedded.notices").ForEach(func(_, notice gjson.Result) bool {
			entry, convErr := c.convert(notice)
			if convErr != nil {
				c.skip(notice.Get("entity_id").String(), convErr)
				return true
			}
			entries = append(entries, entry)
			return true
		})

		next = doc.Get("_links.next.href").String()
	}

	return entries, nil
}

// firstPageURL sets page=1 and the maximum page size on the configured
// base URL, keeping any other query parameters.
func firstPageURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("page", "1")
	q.Set("resultPerPage", strconv.Itoa(InterpolPageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Interpol) convert(notice gjson.Result) (domain.SanctionEntry, error) {
	id := strings.TrimSpace(notice.Get("entity_id").String())
	if id == "" {
		return domain.SanctionEntry{}, errors.New("missing entity_id")
	}

	name := joinName(notice.Get("forename").String(), notice.Get("name").String())
	if name == "" {
		return domain.SanctionEntry{}, errors.New("missing name")
	}

	entry := domain.SanctionEntry{
		SourceID:        c.cfg.ID,
		ExternalID:      id,
		Type:            domain.EntryIndividual,
		Names:           domain.StringList{name},
		Aliases:         domain.StringList{},
		DateOfBirth:     strings.ReplaceAll(notice.Get("date_of_birth").String(), "/", "-"),
		Programs:        domain.StringList{redNoticeProgram},
		Addresses:       domain.NewJSONB([]domain.Address{}),
		Identifications: domain.NewJSONB([]domain.Identification{}),
		Remarks:         physicalDescription(notice),
		RawData:         []byte(notice.Raw),
		LastUpdated:     c.now().UTC(),
	}

	for _, n := range notice.Get("nationalities").Array() {
		entry.Nationalities = appendUnique(entry.Nationalities, n.String())
	}

	return entry, nil
}

// physicalDescription flattens the descriptive fields into one line since
// the entry has no structured slots for them.
func physicalDescription(notice gjson.Result) string {
	fields := []struct {
		label string
		path  string
		unit  string
	}{
		{"Sex", "sex_id", ""},
		{"Height", "height", " m"},
		{"Weight", "weight", " kg"},
		{"Eyes", "eyes_colors_id", ""},
		{"Hair", "hairs_id", ""},
		{"Distinguishing marks", "distinguishing_marks", ""},
		{"Languages", "languages_spoken_ids", ""},
	}

	var parts []string
	for _, f := range fields {
		v := notice.Get(f.path)
		var text string
		switch {
		case v.IsArray():
			var items []string
			for _, item := range v.Array() {
				if s := strings.TrimSpace(item.String()); s != "" {
					items = append(items, s)
				}
			}
			text = strings.Join(items, ", ")
		case v.Type == gjson.Number:
			if v.Float() == 0 {
				continue
			}
			text = v.String() + f.unit
		default:
			text = strings.TrimSpace(v.String())
		}
		if text != "" {
			parts = append(parts, f.label+": "+text)
		}
	}
	return strings.Join(parts, "; ")
}
