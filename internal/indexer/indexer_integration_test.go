//go:build integration

package indexer_test

import (
	"context"
	"testing"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/elasticsearch"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/indexer"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
)

const elasticsearchImage = "docker.elastic.co/elasticsearch/elasticsearch:8.11.0"

func TestIndexer_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := elasticsearch.Run(ctx, elasticsearchImage, elasticsearch.WithPassword("changeme"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	client, err := es.NewClient(es.Config{
		Addresses: []string{container.Settings.Address},
		Username:  "elastic",
		Password:  container.Settings.Password,
		CACert:    container.Settings.CACert,
	})
	require.NoError(t, err)

	idx := indexer.NewWithClient(client, "watchlist_content", logger.NewNop())
	require.NoError(t, idx.Ping(ctx))
	require.NoError(t, idx.EnsureIndex(ctx))
	require.NoError(t, idx.EnsureIndex(ctx))

	result := sampleResult()
	require.NoError(t, idx.Index(ctx, result))
	require.NoError(t, idx.Index(ctx, result))

	res, err := client.Get("watchlist_content", result.ContentHash, client.Get.WithContext(ctx))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.False(t, res.IsError(), res.String())
}
