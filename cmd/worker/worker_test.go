package worker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/worker"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
)

func TestParseQueues(t *testing.T) {
	names, err := worker.ParseQueues(nil)
	require.NoError(t, err)
	assert.Empty(t, names)

	names, err = worker.ParseQueues([]string{"sanctions", "crawl", "sanctions"})
	require.NoError(t, err)
	assert.Equal(t, []queue.Name{queue.Sanctions, queue.Crawl}, names)

	_, err = worker.ParseQueues([]string{"crawl", "images"})
	require.ErrorIs(t, err, queue.ErrUnknownQueue)
}

func TestCommandFlags(t *testing.T) {
	cmd := worker.Command()
	assert.Equal(t, "worker", cmd.Name())
	require.NotNil(t, cmd.Flags().Lookup("queue"))
	require.NotNil(t, cmd.Flags().Lookup("http"))
}
