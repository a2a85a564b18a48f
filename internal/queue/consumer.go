package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/retry"
)

// errStaleMessage marks a stream message whose job no longer needs running.
var errStaleMessage = errors.New("stale queue message")

// Reserve hands the next job of name to consumer and marks it active. Due
// delayed jobs are promoted first, then stalled deliveries are reclaimed,
// then new messages are read from the highest priority stream that has one.
// It returns nil when nothing is ready.
func (q *Queue) Reserve(ctx context.Context, name Name, consumer string) (*Job, error) {
	if err := q.checkName(name); err != nil {
		return nil, err
	}
	if consumer == "" {
		return nil, errors.New("consumer id is required")
	}

	if err := q.promoteDelayed(ctx, name); err != nil {
		return nil, err
	}

	for _, p := range AllPriorities() {
		job, err := q.reclaim(ctx, name, p, consumer)
		if err != nil || job != nil {
			return job, err
		}
	}

	for _, p := range AllPriorities() {
		job, err := q.readNew(ctx, name, p, consumer)
		if err != nil || job != nil {
			return job, err
		}
	}

	return nil, nil
}

func (q *Queue) readNew(ctx context.Context, name Name, p Priority, consumer string) (*Job, error) {
	stream := q.streamKey(name, p)
	for {
		res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    1,
			Block:    -1,
		}).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read from stream %s: %w", stream, err)
		}
		if len(res) == 0 || len(res[0].Messages) == 0 {
			return nil, nil
		}

		job, actErr := q.activate(ctx, name, stream, res[0].Messages[0], false)
		if errors.Is(actErr, errStaleMessage) {
			continue
		}
		return job, actErr
	}
}

// reclaim takes over one message another consumer received but never
// acknowledged within the visibility timeout.
func (q *Queue) reclaim(ctx context.Context, name Name, p Priority, consumer string) (*Job, error) {
	stream := q.streamKey(name, p)
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  consumerGroup,
		Idle:   q.visibility,
		Start:  "-",
		End:    "+",
		Count:  maxPendingCheck,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("list pending on %s: %w", stream, err)
	}

	for _, entry := range pending {
		if entry.Idle < q.visibility {
			continue
		}
		claimed, claimErr := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    consumerGroup,
			Consumer: consumer,
			MinIdle:  q.visibility,
			Messages: []string{entry.ID},
		}).Result()
		if claimErr != nil {
			return nil, fmt.Errorf("claim %s on %s: %w", entry.ID, stream, claimErr)
		}
		if len(claimed) == 0 {
			// Another consumer got there first.
			continue
		}

		job, actErr := q.activate(ctx, name, stream, claimed[0], true)
		if errors.Is(actErr, errStaleMessage) {
			continue
		}
		return job, actErr
	}
	return nil, nil
}

func (q *Queue) activate(ctx context.Context, name Name, stream string, msg redis.XMessage, reclaimed bool) (*Job, error) {
	id, _ := msg.Values[jobIDField].(string)
	job, err := q.Get(ctx, name, id)
	if errors.Is(err, ErrJobNotFound) {
		q.drop(ctx, stream, msg.ID)
		return nil, errStaleMessage
	}
	if err != nil {
		return nil, err
	}
	job.stream = stream
	job.messageID = msg.ID

	switch {
	case reclaimed && job.State == StateActive:
		if job.Attempts >= job.MaxAttempts {
			stalled := retry.Permanent(errors.New("job stalled and exhausted its attempts"))
			if _, failErr := q.Fail(ctx, job, stalled); failErr != nil {
				return nil, failErr
			}
			return nil, errStaleMessage
		}
	case ValidateTransition(job.State, StateActive) != nil:
		q.drop(ctx, stream, msg.ID)
		return nil, errStaleMessage
	}

	now := q.now().UTC()
	job.State = StateActive
	job.Attempts++
	job.ProcessedAt = now

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(name, job.ID),
			"state", string(job.State),
			"attempts", job.Attempts,
			"processed_at", unixMillis(now),
		)
		pipe.ZRem(ctx, q.stateKey(name, StateWaiting), job.ID)
		pipe.ZAdd(ctx, q.stateKey(name, StateActive), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("activate job %s: %w", job.ID, err)
	}
	return job, nil
}

// drop acknowledges and deletes a stream message. Failures only leave the
// message to be reclaimed and dropped again later.
func (q *Queue) drop(ctx context.Context, stream, messageID string) {
	q.client.XAck(ctx, stream, consumerGroup, messageID)
	q.client.XDel(ctx, stream, messageID)
}

// Complete marks job as done and stores result as JSON.
func (q *Queue) Complete(ctx context.Context, job *Job, result any) error {
	if err := ValidateTransition(job.State, StateCompleted); err != nil {
		return err
	}

	encoded := ""
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		encoded = string(raw)
	}

	now := q.now().UTC()
	if err := q.finish(ctx, job, StateCompleted, now, "result", encoded, "progress", 1); err != nil {
		return err
	}
	job.Result = encoded
	job.Progress = 1
	return nil
}

// Fail records cause against job. While attempts remain, and cause is not
// marked permanent, the job waits out its backoff and runs again; the
// returned bool reports whether that happens.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) (bool, error) {
	if err := ValidateTransition(job.State, StateFailed); err != nil {
		return false, err
	}

	message := ""
	if cause != nil {
		message = cause.Error()
	}
	now := q.now().UTC()

	if retry.IsPermanent(cause) || job.Attempts >= job.MaxAttempts {
		if err := q.finish(ctx, job, StateFailed, now, "last_error", message); err != nil {
			return false, err
		}
		job.LastError = message
		return false, nil
	}

	delay := q.options[job.Queue].BackoffFor(job.Attempts)
	if err := q.park(ctx, job, now.Add(delay), "last_error", message); err != nil {
		return false, err
	}
	job.LastError = message
	return true, nil
}

// Requeue returns an active job to waiting after delay without counting the
// attempt. Used when a source's rate limit rejected the run before any
// request was made.
func (q *Queue) Requeue(ctx context.Context, job *Job, delay time.Duration) error {
	if err := ValidateTransition(job.State, StateWaiting); err != nil {
		return err
	}
	if job.Attempts > 0 {
		job.Attempts--
	}
	return q.park(ctx, job, q.now().UTC().Add(delay), "attempts", job.Attempts)
}

// UpdateProgress stores done/total as the job's progress.
func (q *Queue) UpdateProgress(ctx context.Context, job *Job, done, total int) error {
	if total <= 0 {
		return nil
	}
	progress := float64(done) / float64(total)
	if progress > 1 {
		progress = 1
	}
	if err := q.client.HSet(ctx, q.jobKey(job.Queue, job.ID), "progress", progress).Err(); err != nil {
		return fmt.Errorf("update progress of job %s: %w", job.ID, err)
	}
	job.Progress = progress
	return nil
}

// Get loads the record of job id in queue name.
func (q *Queue) Get(ctx context.Context, name Name, id string) (*Job, error) {
	if err := q.checkName(name); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrJobNotFound
	}
	hash, err := q.client.HGetAll(ctx, q.jobKey(name, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	if len(hash) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrJobNotFound, name, id)
	}
	return decodeJob(hash)
}

// finish moves job into a terminal state and starts its retention clock.
func (q *Queue) finish(ctx context.Context, job *Job, state State, now time.Time, extra ...any) error {
	key := q.jobKey(job.Queue, job.ID)
	values := append([]any{"state", string(state), "finished_at", unixMillis(now)}, extra...)

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		pipe.Expire(ctx, key, q.retention)
		q.ack(ctx, pipe, job)
		pipe.ZRem(ctx, q.stateKey(job.Queue, StateActive), job.ID)
		pipe.ZAdd(ctx, q.stateKey(job.Queue, state), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark job %s %s: %w", job.ID, state, err)
	}
	job.State = state
	job.FinishedAt = now
	return nil
}

// park returns job to waiting and schedules it on the delayed set.
func (q *Queue) park(ctx context.Context, job *Job, runAt time.Time, extra ...any) error {
	values := append([]any{"state", string(StateWaiting)}, extra...)

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(job.Queue, job.ID), values...)
		q.ack(ctx, pipe, job)
		pipe.ZRem(ctx, q.stateKey(job.Queue, StateActive), job.ID)
		pipe.ZAdd(ctx, q.stateKey(job.Queue, StateWaiting), redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID})
		pipe.ZAdd(ctx, q.delayedKey(job.Queue), redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("requeue job %s: %w", job.ID, err)
	}
	job.State = StateWaiting
	return nil
}

func (q *Queue) ack(ctx context.Context, pipe redis.Pipeliner, job *Job) {
	if job.messageID == "" || job.stream == "" {
		return
	}
	pipe.XAck(ctx, job.stream, consumerGroup, job.messageID)
	pipe.XDel(ctx, job.stream, job.messageID)
}
