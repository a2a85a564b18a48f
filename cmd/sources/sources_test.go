package sources_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/sources"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	internalsources "github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/sources"
)

func TestRender(t *testing.T) {
	srcs := internalsources.Default().All()

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, sources.Render(&buf, srcs, sources.FormatTable))
		out := buf.String()
		assert.Contains(t, out, internalsources.OFACSDN)
		assert.Contains(t, out, "sanctions")
		assert.Contains(t, out, "0 6 * * *")
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, sources.Render(&buf, srcs, sources.FormatYAML))

		var decoded []domain.ConnectorConfig
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, srcs, decoded)
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, sources.Render(&buf, srcs, sources.FormatJSON))

		var decoded []domain.ConnectorConfig
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Len(t, decoded, len(srcs))
	})

	t.Run("unknown format", func(t *testing.T) {
		require.Error(t, sources.Render(&bytes.Buffer{}, srcs, "xml"))
	})
}

func TestCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := sources.Command()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--enabled", "-o", "json"})
	require.NoError(t, cmd.Execute())

	var decoded []domain.ConnectorConfig
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	for _, src := range decoded {
		assert.True(t, src.Enabled, src.ID)
	}
}
