package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Stats counts the jobs of one queue by state. Delayed is the subset of
// Waiting still serving a backoff.
type Stats struct {
	Queue     Name  `json:"queue"`
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// Stats trims finished jobs past retention and counts the rest.
func (q *Queue) Stats(ctx context.Context, name Name) (Stats, error) {
	if err := q.checkName(name); err != nil {
		return Stats{}, err
	}
	if err := q.trim(ctx, name); err != nil {
		return Stats{}, err
	}

	var waiting, active, completed, failed, delayed *redis.IntCmd
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		waiting = pipe.ZCard(ctx, q.stateKey(name, StateWaiting))
		active = pipe.ZCard(ctx, q.stateKey(name, StateActive))
		completed = pipe.ZCard(ctx, q.stateKey(name, StateCompleted))
		failed = pipe.ZCard(ctx, q.stateKey(name, StateFailed))
		delayed = pipe.ZCard(ctx, q.delayedKey(name))
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("count %s jobs: %w", name, err)
	}

	return Stats{
		Queue:     name,
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
	}, nil
}

// AllStats returns Stats for every queue in Names() order.
func (q *Queue) AllStats(ctx context.Context) ([]Stats, error) {
	out := make([]Stats, 0, len(Names()))
	for _, name := range Names() {
		s, err := q.Stats(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// trim drops finished job ids older than the retention period. The job
// hashes themselves expire on their own.
func (q *Queue) trim(ctx context.Context, name Name) error {
	cutoff := strconv.FormatInt(q.now().Add(-q.retention).UnixMilli(), 10)
	for _, s := range []State{StateCompleted, StateFailed} {
		if err := q.client.ZRemRangeByScore(ctx, q.stateKey(name, s), "-inf", "("+cutoff).Err(); err != nil {
			return fmt.Errorf("trim %s %s jobs: %w", name, s, err)
		}
	}
	return nil
}
