package factory_test

import (
	"testing"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector/factory"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector/feed"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector/sanctions"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_EveryBuiltinSourceResolves(t *testing.T) {
	t.Parallel()

	f := factory.New(nil, nil)
	for _, cfg := range sources.Default().All() {
		if cfg.IsSanctions() {
			c, err := f.Sanctions(cfg)
			require.NoError(t, err, cfg.ID)
			assert.Equal(t, cfg.ID, c.Source().ID)
			continue
		}
		c, err := f.Content(cfg)
		require.NoError(t, err, cfg.ID)
		assert.IsType(t, &feed.Connector{}, c)
	}
}

func TestFactory_Types(t *testing.T) {
	t.Parallel()

	f := factory.New(nil, nil)
	r := sources.Default()

	ofac, _ := r.Get(sources.OFACSDN)
	c, err := f.Sanctions(ofac)
	require.NoError(t, err)
	assert.IsType(t, &sanctions.OFAC{}, c)

	eu, _ := r.Get(sources.EUFSD)
	c, err = f.Sanctions(eu)
	require.NoError(t, err)
	assert.IsType(t, &sanctions.EU{}, c)

	interpol, _ := r.Get(sources.InterpolRed)
	c, err = f.Sanctions(interpol)
	require.NoError(t, err)
	assert.IsType(t, &sanctions.Interpol{}, c)
}

func TestFactory_UnknownSource(t *testing.T) {
	t.Parallel()

	f := factory.New(nil, nil)

	_, err := f.Sanctions(domain.ConnectorConfig{ID: "mystery", Type: domain.ConnectorTypeXML})
	require.ErrorIs(t, err, connector.ErrUnknownSource)

	_, err = f.Sanctions(domain.ConnectorConfig{ID: "news", Type: domain.ConnectorTypeRSS})
	require.ErrorIs(t, err, connector.ErrUnknownSource)

	_, err = f.Content(domain.ConnectorConfig{ID: sources.OFACSDN, Type: domain.ConnectorTypeXML})
	require.ErrorIs(t, err, connector.ErrUnknownSource)
}
