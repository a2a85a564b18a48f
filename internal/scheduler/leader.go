package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
)

const (
	// DefaultLeaderTTL is how long leadership survives without renewal.
	DefaultLeaderTTL = 30 * time.Second

	renewalDivisor  = 3
	electionDivisor = 6
)

var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

var resignScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// LeaderElection elects one scheduler process through a Redis key holding
// the leader's id.
type LeaderElection struct {
	client           redis.UniversalClient
	key              string
	id               string
	ttl              time.Duration
	renewalInterval  time.Duration
	electionInterval time.Duration
	log              logger.Logger

	isLeader atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	onElected func()
	onLost    func()
}

// LeaderConfig configures NewLeaderElection.
type LeaderConfig struct {
	Key       string
	TTL       time.Duration
	OnElected func()
	OnLost    func()
}

// NewLeaderElection creates an election over cfg.Key. Renewal runs at a
// third of the TTL and election retries at a sixth.
func NewLeaderElection(client redis.UniversalClient, cfg LeaderConfig, log logger.Logger) (*LeaderElection, error) {
	if cfg.Key == "" {
		return nil, errors.New("leader key is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultLeaderTTL
	}

	return &LeaderElection{
		client:           client,
		key:              cfg.Key,
		id:               uuid.NewString(),
		ttl:              cfg.TTL,
		renewalInterval:  cfg.TTL / renewalDivisor,
		electionInterval: cfg.TTL / electionDivisor,
		log:              log,
		stopCh:           make(chan struct{}),
		onElected:        cfg.OnElected,
		onLost:           cfg.OnLost,
	}, nil
}

// Start runs the election loop until ctx ends or Stop is called. The first
// attempt happens immediately.
func (l *LeaderElection) Start(ctx context.Context) {
	l.tryBecomeLeader(ctx)
	l.wg.Add(1)
	go l.run(ctx)
}

// Stop ends the loop and releases leadership if held.
func (l *LeaderElection) Stop(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()

	if l.isLeader.Load() {
		return l.resign(ctx)
	}
	return nil
}

// IsLeader reports whether this process currently holds leadership.
func (l *LeaderElection) IsLeader() bool {
	return l.isLeader.Load()
}

// ID returns this participant's id.
func (l *LeaderElection) ID() string {
	return l.id
}

// LeaderID returns the current leader's id, or "" when there is none.
func (l *LeaderElection) LeaderID(ctx context.Context) (string, error) {
	val, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return val, nil
}

func (l *LeaderElection) run(ctx context.Context) {
	defer l.wg.Done()

	election := time.NewTicker(l.electionInterval)
	defer election.Stop()
	renewal := time.NewTicker(l.renewalInterval)
	defer renewal.Stop()

	for {
		select {
		case <-ctx.Done():
			l.handleLostLeadership()
			return
		case <-l.stopCh:
			return
		case <-election.C:
			if !l.isLeader.Load() {
				l.tryBecomeLeader(ctx)
			}
		case <-renewal.C:
			if l.isLeader.Load() {
				l.renewLeadership(ctx)
			}
		}
	}
}

func (l *LeaderElection) tryBecomeLeader(ctx context.Context) {
	acquired, err := l.client.SetNX(ctx, l.key, l.id, l.ttl).Result()
	if err != nil {
		l.log.Error("Failed to acquire scheduler leadership", logger.Error(err))
		return
	}
	if !acquired {
		return
	}

	l.log.Info("Acquired scheduler leadership", logger.String("leader_id", l.id))
	l.isLeader.Store(true)
	if l.onElected != nil {
		l.onElected()
	}
}

func (l *LeaderElection) renewLeadership(ctx context.Context) {
	result, err := renewScript.Run(ctx, l.client, []string{l.key}, l.id, l.ttl.Milliseconds()).Int()
	if err != nil {
		l.log.Error("Failed to renew scheduler leadership", logger.Error(err))
		l.handleLostLeadership()
		return
	}
	if result == 0 {
		l.log.Warn("Lost scheduler leadership, key held by another node")
		l.handleLostLeadership()
	}
}

func (l *LeaderElection) resign(ctx context.Context) error {
	if _, err := resignScript.Run(ctx, l.client, []string{l.key}, l.id).Int(); err != nil {
		return fmt.Errorf("resign leadership: %w", err)
	}
	l.handleLostLeadership()
	return nil
}

func (l *LeaderElection) handleLostLeadership() {
	if l.isLeader.CompareAndSwap(true, false) {
		l.log.Info("Released scheduler leadership", logger.String("leader_id", l.id))
		if l.onLost != nil {
			l.onLost()
		}
	}
}
