package queues_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/queues"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
)

type failingSource struct{}

func (failingSource) AllStats(context.Context) ([]queue.Stats, error) {
	return nil, errors.New("connection refused")
}

func TestShow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := queue.New(client, "test")
	require.NoError(t, q.Init(context.Background()))
	for range 3 {
		_, err := q.Add(context.Background(), queue.Enrichment, queue.JobSpec{})
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, queues.Show(context.Background(), &buf, q))
	out := buf.String()
	for _, name := range queue.Names() {
		assert.Contains(t, out, string(name))
	}
	assert.Contains(t, out, "3")
}

func TestShow_Error(t *testing.T) {
	err := queues.Show(context.Background(), &bytes.Buffer{}, failingSource{})
	require.ErrorContains(t, err, "connection refused")
}
