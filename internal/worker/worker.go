// Package worker pulls jobs from the durable queues and runs them. A Pool
// serves one queue with that queue's concurrency ceiling; a Processor holds
// the per-queue business logic.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/fetcher"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/retry"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/sources"
)

// Job statuses reported to the Recorder.
const (
	StatusCompleted   = "completed"
	StatusRetrying    = "retrying"
	StatusFailed      = "failed"
	StatusRateLimited = "rate_limited"
	StatusInterrupted = "interrupted"
)

// Progress reports items processed out of total for the running job.
type Progress func(done, total int)

// Processor runs one job. The returned value becomes the job result.
type Processor interface {
	Process(ctx context.Context, job *queue.Job, progress Progress) (any, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job *queue.Job, progress Progress) (any, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, job *queue.Job, progress Progress) (any, error) {
	return f(ctx, job, progress)
}

// JobQueue is the part of *queue.Queue a Pool needs.
type JobQueue interface {
	Reserve(ctx context.Context, name queue.Name, consumer string) (*queue.Job, error)
	Complete(ctx context.Context, job *queue.Job, result any) error
	Fail(ctx context.Context, job *queue.Job, cause error) (bool, error)
	Requeue(ctx context.Context, job *queue.Job, delay time.Duration) error
	UpdateProgress(ctx context.Context, job *queue.Job, done, total int) error
}

// Recorder receives job and pipeline measurements. *metrics.Metrics
// implements it.
type Recorder interface {
	RecordJob(queueName, status string, d time.Duration)
	RecordRateLimited(sourceID string)
	RecordPersisted(sourceID, kind string, n int)
	RecordDuplicates(sourceID string, n int)
	RecordEnrichment(entityType, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordJob(string, string, time.Duration) {}
func (nopRecorder) RecordRateLimited(string)                {}
func (nopRecorder) RecordPersisted(string, string, int)     {}
func (nopRecorder) RecordDuplicates(string, int)            {}
func (nopRecorder) RecordEnrichment(string, string)         {}

// SourceLookup resolves a source id. *sources.Registry implements it.
type SourceLookup interface {
	Get(id string) (domain.ConnectorConfig, error)
}

// ConnectorFactory builds connectors. *factory.Factory implements it.
type ConnectorFactory interface {
	Sanctions(cfg domain.ConnectorConfig) (connector.SanctionsConnector, error)
	Content(cfg domain.ConnectorConfig) (connector.ContentConnector, error)
}

// Enqueuer adds follow-up jobs.
type Enqueuer interface {
	Add(ctx context.Context, name queue.Name, spec queue.JobSpec) (*queue.Job, error)
}

// classify marks errors that no retry can fix as permanent.
func classify(err error) error {
	switch {
	case retry.IsPermanent(err):
		return err
	case fetcher.IsClientError(err),
		errors.Is(err, connector.ErrUnknownSource),
		errors.Is(err, sources.ErrNotFound):
		return retry.Permanent(err)
	default:
		return err
	}
}
