// Package queue implements the crawl, sanctions and enrichment job queues on
// Redis Streams.
//
// Each queue has one stream per priority. A job's record lives in a hash next
// to the streams; the stream message only carries its id. Failed jobs with
// attempts left wait in a delayed sorted set until their backoff elapses, and
// messages delivered to a consumer that never acknowledged them are reclaimed
// once the visibility timeout passes.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/retry"
)

// Name identifies one of the three queues.
type Name string

const (
	Crawl      Name = "crawl"
	Sanctions  Name = "sanctions"
	Enrichment Name = "enrichment"
)

// Names returns every queue.
func Names() []Name {
	return []Name{Crawl, Sanctions, Enrichment}
}

// ParseName validates a queue name.
func ParseName(s string) (Name, error) {
	for _, n := range Names() {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownQueue, s)
}

var (
	// ErrUnknownQueue is returned for a name outside Names().
	ErrUnknownQueue = errors.New("unknown queue")
	// ErrJobNotFound is returned when no record exists for a job id.
	ErrJobNotFound = errors.New("job not found")
)

// Backoff kinds.
const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

// Options are the per-queue processing defaults.
type Options struct {
	Concurrency int
	Attempts    int
	Backoff     time.Duration
	BackoffType string
	// Timeout bounds one processing attempt. Zero means unbounded.
	Timeout time.Duration
}

// DefaultOptions returns the built-in options for name.
func DefaultOptions(name Name) Options {
	switch name {
	case Sanctions:
		return Options{Concurrency: 1, Attempts: 3, Backoff: 10 * time.Second, BackoffType: BackoffExponential, Timeout: 5 * time.Minute}
	case Enrichment:
		return Options{Concurrency: 3, Attempts: 2, Backoff: 3 * time.Second, BackoffType: BackoffFixed, Timeout: 30 * time.Second}
	default:
		return Options{Concurrency: 2, Attempts: 3, Backoff: 5 * time.Second, BackoffType: BackoffExponential, Timeout: 2 * time.Minute}
	}
}

// WithOverrides replaces every non-zero field of cfg.
func (o Options) WithOverrides(cfg config.QueueConfig) Options {
	if cfg.Concurrency > 0 {
		o.Concurrency = cfg.Concurrency
	}
	if cfg.Attempts > 0 {
		o.Attempts = cfg.Attempts
	}
	if cfg.Backoff > 0 {
		o.Backoff = cfg.Backoff
	}
	if cfg.BackoffType != "" {
		o.BackoffType = cfg.BackoffType
	}
	if cfg.Timeout > 0 {
		o.Timeout = cfg.Timeout
	}
	return o
}

// BackoffFor returns the delay before the retry that follows the given
// number of failed attempts.
func (o Options) BackoffFor(attempt int) time.Duration {
	if o.BackoffType == BackoffFixed {
		return o.Backoff
	}
	return retry.Delay(o.Backoff, 2, 0, attempt)
}

// OptionsFromConfig resolves the effective options of every queue.
func OptionsFromConfig(cfg config.QueuesConfig) map[Name]Options {
	return map[Name]Options{
		Crawl:      DefaultOptions(Crawl).WithOverrides(cfg.Crawl),
		Sanctions:  DefaultOptions(Sanctions).WithOverrides(cfg.Sanctions),
		Enrichment: DefaultOptions(Enrichment).WithOverrides(cfg.Enrichment),
	}
}

const (
	consumerGroup        = "workers"
	jobIDField           = "job_id"
	maxPendingCheck      = 50
	defaultVisibility    = 10 * time.Minute
	defaultRetention     = 7 * 24 * time.Hour
	promoteBatch         = 100
	busyGroupErrorPrefix = "BUSYGROUP"
)

// Queue gives access to all three queues in one Redis database.
type Queue struct {
	client     redis.UniversalClient
	prefix     string
	options    map[Name]Options
	visibility time.Duration
	retention  time.Duration
	now        func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithOptions sets the per-queue processing options.
func WithOptions(opts map[Name]Options) Option {
	return func(q *Queue) {
		for name, o := range opts {
			q.options[name] = o
		}
	}
}

// WithVisibilityTimeout sets how long a delivered job may stay unacknowledged
// before another consumer reclaims it.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.visibility = d
		}
	}
}

// WithRetention sets how long finished job records are kept.
func WithRetention(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.retention = d
		}
	}
}

// New creates a Queue. Call Init before the first Reserve.
func New(client redis.UniversalClient, prefix string, opts ...Option) *Queue {
	if prefix == "" {
		prefix = "ingestor"
	}
	q := &Queue{
		client:     client,
		prefix:     prefix,
		options:    make(map[Name]Options, len(Names())),
		visibility: defaultVisibility,
		retention:  defaultRetention,
		now:        time.Now,
	}
	for _, name := range Names() {
		q.options[name] = DefaultOptions(name)
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// NewFromConfig creates a Queue from the queues section of the config.
func NewFromConfig(client redis.UniversalClient, prefix string, cfg config.QueuesConfig, opts ...Option) *Queue {
	base := []Option{
		WithOptions(OptionsFromConfig(cfg)),
		WithVisibilityTimeout(cfg.VisibilityTimeout),
		WithRetention(cfg.Retention),
	}
	return New(client, prefix, append(base, opts...)...)
}

// Options returns the processing options of name.
func (q *Queue) Options(name Name) Options {
	return q.options[name]
}

// Client returns the underlying Redis client.
func (q *Queue) Client() redis.UniversalClient {
	return q.client
}

// Init creates the consumer group on every priority stream.
func (q *Queue) Init(ctx context.Context) error {
	for _, name := range Names() {
		for _, p := range AllPriorities() {
			stream := q.streamKey(name, p)
			err := q.client.XGroupCreateMkStream(ctx, stream, consumerGroup, "0").Err()
			if err != nil && !strings.HasPrefix(err.Error(), busyGroupErrorPrefix) {
				return fmt.Errorf("create consumer group on %s: %w", stream, err)
			}
		}
	}
	return nil
}

// Ping checks that Redis is reachable.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *Queue) streamKey(name Name, p Priority) string {
	return fmt.Sprintf("%s:queue:%s:%s", q.prefix, name, p.streamSuffix())
}

func (q *Queue) jobKey(name Name, id string) string {
	return fmt.Sprintf("%s:queue:%s:job:%s", q.prefix, name, id)
}

func (q *Queue) delayedKey(name Name) string {
	return fmt.Sprintf("%s:queue:%s:delayed", q.prefix, name)
}

func (q *Queue) stateKey(name Name, s State) string {
	return fmt.Sprintf("%s:queue:%s:state:%s", q.prefix, name, s)
}

func (q *Queue) checkName(name Name) error {
	if _, ok := q.options[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQueue, name)
	}
	return nil
}
