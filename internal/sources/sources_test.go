package sources_test

import (
	"errors"
	"testing"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	r := sources.Default()
	all := r.All()
	require.NotEmpty(t, all)

	for _, id := range []string{sources.OFACSDN, sources.EUFSD, sources.InterpolRed} {
		cfg, err := r.Get(id)
		require.NoError(t, err, id)
		assert.True(t, cfg.IsSanctions(), id)
	}

	var feeds int
	for _, cfg := range all {
		if !cfg.IsSanctions() {
			feeds++
		}
	}
	assert.GreaterOrEqual(t, feeds, 3)
}

func TestRegistry_Enabled(t *testing.T) {
	t.Parallel()

	r, err := sources.NewRegistry([]domain.ConnectorConfig{
		feed("a", true),
		feed("b", false),
		feed("c", true),
	})
	require.NoError(t, err)

	enabled := r.Enabled()
	require.Len(t, enabled, 2)
	assert.Equal(t, "a", enabled[0].ID)
	assert.Equal(t, "c", enabled[1].ID)
	assert.Len(t, r.All(), 3)
}

func TestRegistry_GetUnknown(t *testing.T) {
	t.Parallel()

	_, err := sources.Default().Get("nope")
	assert.ErrorIs(t, err, sources.ErrNotFound)
}

func TestNewRegistry_Invalid(t *testing.T) {
	t.Parallel()

	badLimit := feed("x", true)
	badLimit.RateLimit = "5/fortnight"

	badPriority := feed("y", true)
	badPriority.Priority = 4

	wrongType := feed(sources.OFACSDN, true)

	unknownSanctions := feed("z", true)
	unknownSanctions.Type = domain.ConnectorTypeAPI

	tests := map[string][]domain.ConnectorConfig{
		"duplicate id":      {feed("a", true), feed("a", false)},
		"bad rate limit":    {badLimit},
		"bad priority":      {badPriority},
		"wrong type":        {wrongType},
		"unknown sanctions": {unknownSanctions},
	}

	for name, cfgs := range tests {
		_, err := sources.NewRegistry(cfgs)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, domain.ErrInvalidConnector), name)
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	t.Parallel()

	r := sources.Default()
	all := r.All()
	all[0].URL = "mutated"

	cfg, err := r.Get(all[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", cfg.URL)
}

func feed(id string, enabled bool) domain.ConnectorConfig {
	return domain.ConnectorConfig{
		ID:        id,
		Name:      id,
		Type:      domain.ConnectorTypeRSS,
		URL:       "https://example.test/" + id,
		Frequency: domain.FrequencyHourly,
		Priority:  2,
		RateLimit: "10/minute",
		Enabled:   enabled,
	}
}
