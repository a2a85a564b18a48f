package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter decides whether a source may issue another request.
type RateLimiter interface {
	// Check returns nil when the request is allowed and *Error when denied.
	Check(ctx context.Context, sourceID, spec string) error
}

// Store holds the window counters.
type Store interface {
	// Hit counts one request against key. A fresh window of length window is
	// opened when none exists or the previous one has elapsed. It returns the
	// count inside the current window and when that window closes.
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Limiter is the Store-backed RateLimiter.
type Limiter struct {
	store Store
	now   func() time.Time
	specs sync.Map // raw spec string -> Spec
}

var _ RateLimiter = (*Limiter)(nil)

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New returns a Limiter over store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) parse(raw string) (Spec, error) {
	if cached, ok := l.specs.Load(raw); ok {
		return cached.(Spec), nil
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return Spec{}, err
	}
	l.specs.Store(raw, spec)
	return spec, nil
}

// Check implements RateLimiter. An empty spec means unlimited.
func (l *Limiter) Check(ctx context.Context, sourceID, rawSpec string) error {
	if rawSpec == "" {
		return nil
	}

	spec, err := l.parse(rawSpec)
	if err != nil {
		return fmt.Errorf("source %s: %w", sourceID, err)
	}

	count, resetAt, err := l.store.Hit(ctx, sourceID, spec.Window)
	if err != nil {
		return fmt.Errorf("rate limit store: %w", err)
	}

	if count > int64(spec.Limit) {
		retry := resetAt.Sub(l.now())
		if retry < 0 {
			retry = 0
		}
		return &Error{SourceID: sourceID, Spec: spec, RetryAfter: retry}
	}

	return nil
}
