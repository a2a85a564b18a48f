// Package sources holds the compiled-in list of external sources.
package sources

import (
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/ratelimit"
)

// Well-known sanctions source ids. Connector selection keys off these.
const (
	OFACSDN      = "ofac-sdn"
	EUFSD        = "eu-fsd"
	InterpolRed  = "interpol-red-notices"
	interpolBase = "https://ws-public.interpol.int/notices/v1/red"
)

// ErrNotFound is returned by Registry.Get for an unknown id.
var ErrNotFound = errors.New("source not found")

var builtin = []domain.ConnectorConfig{
	{
		ID:        OFACSDN,
		Name:      "OFAC Specially Designated Nationals",
		Type:      domain.ConnectorTypeXML,
		URL:       "https://www.treasury.gov/ofac/downloads/sdn.xml",
		Frequency: domain.FrequencyDaily,
		Priority:  1,
		RateLimit: "10/hour",
		Enabled:   true,
	},
	{
		ID:        EUFSD,
		Name:      "EU Financial Sanctions Database",
		Type:      domain.ConnectorTypeXML,
		URL:       "https://webgate.ec.europa.eu/fsd/fsf/public/files/xmlFullSanctionsList_1_1/content?token=dG9rZW4tMjAxNw",
		Frequency: domain.FrequencyDaily,
		Priority:  1,
		RateLimit: "10/hour",
		Enabled:   true,
	},
	{
		ID:        InterpolRed,
		Name:      "Interpol Red Notices",
		Type:      domain.ConnectorTypeAPI,
		URL:       interpolBase,
		Frequency: domain.Frequency6h,
		Priority:  2,
		RateLimit: "120/minute",
		Enabled:   true,
	},
	{
		ID:        "ftc-consumer-alerts",
		Name:      "FTC Consumer Alerts",
		Type:      domain.ConnectorTypeRSS,
		URL:       "https://consumer.ftc.gov/blog/feed",
		Frequency: domain.FrequencyHourly,
		Priority:  3,
		RateLimit: "30/hour",
		Language:  "en",
		Enabled:   true,
	},
	{
		ID:        "sec-litigation",
		Name:      "SEC Litigation Releases",
		Type:      domain.ConnectorTypeRSS,
		URL:       "https://www.sec.gov/rss/litigation/litreleases.xml",
		Frequency: domain.FrequencyHourly,
		Priority:  2,
		RateLimit: "30/hour",
		Language:  "en",
		Enabled:   true,
	},
	{
		ID:        "europol-news",
		Name:      "Europol Newsroom",
		Type:      domain.ConnectorTypeRSS,
		URL:       "https://www.europol.europa.eu/rss/news",
		Frequency: domain.Frequency6h,
		Priority:  2,
		RateLimit: "20/hour",
		Enabled:   true,
	},
	{
		ID:        "bka-presse",
		Name:      "Bundeskriminalamt Pressemitteilungen",
		Type:      domain.ConnectorTypeRSS,
		URL:       "https://www.bka.de/SiteGlobals/Functions/RSSFeed/DE/RSSNewsfeed/RSSNewsfeed.xml",
		Frequency: domain.Frequency6h,
		Priority:  3,
		RateLimit: "20/hour",
		Language:  "de",
		Enabled:   true,
	},
	{
		ID:        "cybermalveillance-actualites",
		Name:      "Cybermalveillance.gouv.fr",
		Type:      domain.ConnectorTypeRSS,
		URL:       "https://www.cybermalveillance.gouv.fr/feed/atom-flux-actualites",
		Frequency: domain.FrequencyDaily,
		Priority:  3,
		RateLimit: "20/hour",
		Language:  "fr",
		Enabled:   true,
	},
	{
		ID:        "actionfraud-news",
		Name:      "Action Fraud News",
		Type:      domain.ConnectorTypeRSS,
		URL:       "https://www.actionfraud.police.uk/rss",
		Frequency: domain.FrequencyRealtime,
		Priority:  2,
		RateLimit: "60/hour",
		Language:  "en",
		Enabled:   false,
	},
}

// Registry is an immutable, validated set of sources.
type Registry struct {
	sources []domain.ConnectorConfig
	byID    map[string]int
}

// Default returns the compiled-in registry. It panics if the built-in list
// is invalid, which is a programming error caught by tests.
func Default() *Registry {
	r, err := NewRegistry(builtin)
	if err != nil {
		panic(fmt.Sprintf("sources: invalid built-in list: %v", err))
	}
	return r
}

// NewRegistry validates cfgs and returns a registry over a copy of them.
func NewRegistry(cfgs []domain.ConnectorConfig) (*Registry, error) {
	r := &Registry{
		sources: make([]domain.ConnectorConfig, len(cfgs)),
		byID:    make(map[string]int, len(cfgs)),
	}
	copy(r.sources, cfgs)

	var errs []error
	for i, cfg := range r.sources {
		if _, dup := r.byID[cfg.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate id %q", domain.ErrInvalidConnector, cfg.ID))
			continue
		}
		r.byID[cfg.ID] = i
		errs = append(errs, validate(cfg))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

func validate(cfg domain.ConnectorConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.RateLimit != "" {
		if _, err := ratelimit.ParseSpec(cfg.RateLimit); err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrInvalidConnector, cfg.ID, err)
		}
	}
	switch cfg.ID {
	case OFACSDN, EUFSD:
		if cfg.Type != domain.ConnectorTypeXML {
			return fmt.Errorf("%w: %s: must be of type xml", domain.ErrInvalidConnector, cfg.ID)
		}
	case InterpolRed:
		if cfg.Type != domain.ConnectorTypeAPI {
			return fmt.Errorf("%w: %s: must be of type api", domain.ErrInvalidConnector, cfg.ID)
		}
	default:
		if cfg.IsSanctions() {
			return fmt.Errorf("%w: %s: no sanctions connector for this id", domain.ErrInvalidConnector, cfg.ID)
		}
	}
	return nil
}

// All returns every source in declaration order.
func (r *Registry) All() []domain.ConnectorConfig {
	out := make([]domain.ConnectorConfig, len(r.sources))
	copy(out, r.sources)
	return out
}

// Enabled returns the sources with Enabled set.
func (r *Registry) Enabled() []domain.ConnectorConfig {
	var out []domain.ConnectorConfig
	for _, s := range r.sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Get returns the source with the given id.
func (r *Registry) Get(id string) (domain.ConnectorConfig, error) {
	i, ok := r.byID[id]
	if !ok {
		return domain.ConnectorConfig{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.sources[i], nil
}
