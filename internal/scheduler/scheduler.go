// Package scheduler registers one recurring job per enabled source and
// enqueues it on the matching queue when its cron expression fires.
//
// Every node runs the cron loop but only the elected leader enqueues, and
// each firing is additionally claimed through a per-minute lock so a
// leadership hand-over cannot produce a duplicate run.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
)

const (
	fireLockTTL     = 2 * time.Minute
	enqueueTimeout  = 10 * time.Second
	schedulePrefix  = "source:"
	fireLockKeyPart = "schedule:lock"
)

// Enqueuer adds jobs to a queue. *queue.Queue satisfies it.
type Enqueuer interface {
	Add(ctx context.Context, name queue.Name, spec queue.JobSpec) (*queue.Job, error)
}

// Leader reports whether this node may fire schedules.
type Leader interface {
	IsLeader() bool
}

// FireLock claims a single firing across nodes.
type FireLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisFireLock implements FireLock with SETNX.
type RedisFireLock struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisFireLock creates a lock writing keys under prefix.
func NewRedisFireLock(client redis.UniversalClient, prefix string) *RedisFireLock {
	return &RedisFireLock{client: client, prefix: prefix}
}

// Acquire implements FireLock.
func (l *RedisFireLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, fmt.Sprintf("%s:%s:%s", l.prefix, fireLockKeyPart, key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire fire lock %s: %w", key, err)
	}
	return ok, nil
}

// Entry describes one registered schedule.
type Entry struct {
	Name     string    `json:"name"`
	SourceID string    `json:"source_id"`
	Spec     string    `json:"spec"`
	Queue    string    `json:"queue"`
	Next     time.Time `json:"next,omitzero"`
}

type registration struct {
	entryID cron.EntryID
	spec    string
	source  domain.ConnectorConfig
}

// Scheduler owns the cron loop.
type Scheduler struct {
	cron     *cron.Cron
	parser   cron.Parser
	enqueuer Enqueuer
	leader   Leader
	lock     FireLock
	log      logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]registration
	ctx     context.Context
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLeader restricts firing to the elected leader.
func WithLeader(l Leader) Option {
	return func(s *Scheduler) {
		s.leader = l
	}
}

// WithFireLock de-duplicates firings across nodes.
func WithFireLock(l FireLock) Option {
	return func(s *Scheduler) {
		s.lock = l
	}
}

// WithLocation evaluates cron expressions in loc.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.cron = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	}
}

// WithClock overrides the time source used for fire-lock keys.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a Scheduler enqueueing into q.
func New(q Enqueuer, log logger.Logger, opts ...Option) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s := &Scheduler{
		cron:     cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		parser:   parser,
		enqueuer: q,
		log:      log,
		now:      time.Now,
		entries:  make(map[string]registration),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the cron loop. Firings use ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts the loop and waits for running firings.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RegisterAll upserts a schedule for every enabled source and drops
// schedules of sources that are no longer present.
func (s *Scheduler) RegisterAll(srcs []domain.ConnectorConfig) error {
	keep := make(map[string]bool, len(srcs))
	for _, src := range srcs {
		if !src.Enabled {
			continue
		}
		if err := s.Register(src); err != nil {
			return err
		}
		keep[ScheduleName(src.ID)] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, reg := range s.entries {
		if !keep[name] {
			s.cron.Remove(reg.entryID)
			delete(s.entries, name)
		}
	}
	return nil
}

// Register upserts the recurring schedule of src. A schedule already
// registered under the same name is replaced, so re-registering on every
// start never accumulates duplicates.
func (s *Scheduler) Register(src domain.ConnectorConfig) error {
	spec, err := CronExpression(src.Frequency)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", src.ID, err)
	}
	if _, parseErr := s.parser.Parse(spec); parseErr != nil {
		return fmt.Errorf("schedule %s: parse %q: %w", src.ID, spec, parseErr)
	}

	name := ScheduleName(src.ID)
	cfg := src

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old.entryID)
		delete(s.entries, name)
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		s.fire(name, cfg)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", src.ID, err)
	}
	s.entries[name] = registration{entryID: entryID, spec: spec, source: cfg}

	s.log.Info("Registered source schedule",
		logger.SourceID(src.ID),
		logger.String("schedule", name),
		logger.String("spec", spec),
	)
	return nil
}

// Remove drops the schedule registered under name.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(reg.entryID)
	delete(s.entries, name)
	return true
}

// Entries lists registered schedules sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for name, reg := range s.entries {
		out = append(out, Entry{
			Name:     name,
			SourceID: reg.source.ID,
			Spec:     reg.spec,
			Queue:    string(QueueFor(reg.source)),
			Next:     s.cron.Entry(reg.entryID).Next,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) fire(name string, src domain.ConnectorConfig) {
	if s.leader != nil && !s.leader.IsLeader() {
		return
	}

	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, enqueueTimeout)
	defer cancel()

	if s.lock != nil {
		minute := s.now().UTC().Truncate(time.Minute).Unix()
		acquired, err := s.lock.Acquire(ctx, fmt.Sprintf("%s:%d", name, minute), fireLockTTL)
		if err != nil {
			s.log.Error("Failed to claim schedule firing", logger.String("schedule", name), logger.Error(err))
			return
		}
		if !acquired {
			s.log.Debug("Schedule firing already claimed", logger.String("schedule", name))
			return
		}
	}

	job, err := Enqueue(ctx, s.enqueuer, src, name)
	if err != nil {
		s.log.Error("Failed to enqueue scheduled job", logger.SourceID(src.ID), logger.Error(err))
		return
	}
	s.log.Info("Enqueued scheduled job",
		logger.SourceID(src.ID),
		logger.JobID(job.ID),
		logger.Queue(string(job.Queue)),
	)
}

// ScheduleName is the registration name of a source's recurring job.
func ScheduleName(sourceID string) string {
	return schedulePrefix + sourceID
}

// QueueFor returns the queue that runs src.
func QueueFor(src domain.ConnectorConfig) queue.Name {
	if src.IsSanctions() {
		return queue.Sanctions
	}
	return queue.Crawl
}

// SourcePayload is the payload of crawl and sanctions jobs.
type SourcePayload struct {
	SourceID string `json:"source_id"`
}

// Enqueue adds a job running src. repeat is the schedule name for recurring
// runs and empty for one-shot runs.
func Enqueue(ctx context.Context, q Enqueuer, src domain.ConnectorConfig, repeat string) (*queue.Job, error) {
	name := QueueFor(src)
	return q.Add(ctx, name, queue.JobSpec{
		Type:     string(name),
		SourceID: src.ID,
		Priority: queue.PriorityFromConfig(src.Priority),
		Payload:  SourcePayload{SourceID: src.ID},
		Repeat:   repeat,
	})
}
