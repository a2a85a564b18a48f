package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JobSpec describes a job to enqueue.
type JobSpec struct {
	// ID makes Add idempotent: if a job with this id exists in the queue it
	// is returned unchanged. Empty means a random id.
	ID       string
	Type     string
	SourceID string
	Priority Priority
	// Payload is marshalled to JSON. Nil means no payload.
	Payload any
	// Repeat names the recurring schedule that produced the job, if any.
	Repeat string
	// Delay postpones the first delivery.
	Delay time.Duration
}

// Add stores a new job and makes it available to consumers of name.
func (q *Queue) Add(ctx context.Context, name Name, spec JobSpec) (*Job, error) {
	if err := q.checkName(name); err != nil {
		return nil, err
	}

	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}

	job := &Job{
		ID:          id,
		Queue:       name,
		Type:        spec.Type,
		SourceID:    spec.SourceID,
		Priority:    spec.Priority,
		State:       StateWaiting,
		MaxAttempts: q.options[name].Attempts,
		Repeat:      spec.Repeat,
		CreatedAt:   q.now().UTC(),
	}
	if job.Type == "" {
		job.Type = string(name)
	}
	if !job.Priority.IsValid() {
		job.Priority = PriorityNormal
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 1
	}
	if spec.Payload != nil {
		payload, err := json.Marshal(spec.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		job.Payload = string(payload)
	}

	store := func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(name, job.ID), job.fields())
		pipe.ZAdd(ctx, q.stateKey(name, StateWaiting), redis.Z{Score: float64(job.CreatedAt.UnixMilli()), Member: job.ID})
		if spec.Delay > 0 {
			runAt := job.CreatedAt.Add(spec.Delay)
			pipe.ZAdd(ctx, q.delayedKey(name), redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID})
			return nil
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: q.streamKey(name, job.Priority),
			Values: map[string]any{jobIDField: job.ID},
		})
		return nil
	}

	if spec.ID == "" {
		if _, err := q.client.TxPipelined(ctx, store); err != nil {
			return nil, fmt.Errorf("enqueue %s job: %w", name, err)
		}
		return job, nil
	}

	key := q.jobKey(name, job.ID)
	err := q.client.Watch(ctx, func(tx *redis.Tx) error {
		n, existsErr := tx.Exists(ctx, key).Result()
		if existsErr != nil {
			return existsErr
		}
		if n > 0 {
			return errJobExists
		}
		_, pipeErr := tx.TxPipelined(ctx, store)
		return pipeErr
	}, key)
	switch {
	case errors.Is(err, errJobExists):
		return q.Get(ctx, name, job.ID)
	case err != nil:
		return nil, fmt.Errorf("enqueue %s job %s: %w", name, job.ID, err)
	}
	return job, nil
}

var errJobExists = errors.New("job exists")

// promoteDelayed moves due jobs from the delayed set onto their streams.
// ZREM decides which caller wins when several consumers promote at once.
func (q *Queue) promoteDelayed(ctx context.Context, name Name) error {
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(name), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return fmt.Errorf("read delayed %s jobs: %w", name, err)
	}

	for _, id := range due {
		removed, remErr := q.client.ZRem(ctx, q.delayedKey(name), id).Result()
		if remErr != nil {
			return fmt.Errorf("claim delayed job %s: %w", id, remErr)
		}
		if removed == 0 {
			continue
		}

		raw, getErr := q.client.HGet(ctx, q.jobKey(name, id), "priority").Result()
		if getErr != nil {
			// The record expired or was deleted; nothing to run.
			continue
		}
		n, _ := strconv.Atoi(raw)
		p := PriorityFromConfig(n)
		if addErr := q.client.XAdd(ctx, &redis.XAddArgs{
			Stream: q.streamKey(name, p),
			Values: map[string]any{jobIDField: id},
		}).Err(); addErr != nil {
			return fmt.Errorf("promote job %s: %w", id, addErr)
		}
	}
	return nil
}
