package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    ratelimit.Spec
		wantErr bool
	}{
		{raw: "5/minute", want: ratelimit.Spec{Limit: 5, Window: time.Minute}},
		{raw: "100/hour", want: ratelimit.Spec{Limit: 100, Window: time.Hour}},
		{raw: " 2 / Day ", want: ratelimit.Spec{Limit: 2, Window: 24 * time.Hour}},
		{raw: "1000/month", want: ratelimit.Spec{Limit: 1000, Window: 30 * 24 * time.Hour}},
		{raw: "5", wantErr: true},
		{raw: "0/minute", wantErr: true},
		{raw: "-1/minute", wantErr: true},
		{raw: "x/minute", wantErr: true},
		{raw: "5/fortnight", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			got, err := ratelimit.ParseSpec(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ratelimit.ErrInvalidSpec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpec_String(t *testing.T) {
	t.Parallel()

	spec, err := ratelimit.ParseSpec("5/minute")
	require.NoError(t, err)
	assert.Equal(t, "5/minute", spec.String())
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newMemoryLimiter() (*ratelimit.Limiter, *clock) {
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return ratelimit.New(ratelimit.NewMemoryStore(c.Now), ratelimit.WithClock(c.Now)), c
}

func TestLimiter_FixedWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, clk := newMemoryLimiter()

	for i := 1; i <= 5; i++ {
		require.NoError(t, limiter.Check(ctx, "interpol", "5/minute"), "call %d", i)
		clk.Advance(time.Second)
	}

	err := limiter.Check(ctx, "interpol", "5/minute")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ratelimit.ErrRateLimited))

	var rlErr *ratelimit.Error
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "interpol", rlErr.SourceID)
	assert.Equal(t, 55*time.Second, rlErr.RetryAfter)

	clk.Advance(55 * time.Second)
	require.NoError(t, limiter.Check(ctx, "interpol", "5/minute"), "window elapsed")

	// counter restarted at 1: four more fit before the next denial
	for i := 0; i < 4; i++ {
		require.NoError(t, limiter.Check(ctx, "interpol", "5/minute"))
	}
	assert.Error(t, limiter.Check(ctx, "interpol", "5/minute"))
}

func TestLimiter_IndependentPerSource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _ := newMemoryLimiter()

	require.NoError(t, limiter.Check(ctx, "ofac", "1/hour"))
	require.Error(t, limiter.Check(ctx, "ofac", "1/hour"))
	require.NoError(t, limiter.Check(ctx, "eu-fsd", "1/hour"))
}

func TestLimiter_EmptySpecIsUnlimited(t *testing.T) {
	t.Parallel()

	limiter, _ := newMemoryLimiter()
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Check(context.Background(), "feed", ""))
	}
}

func TestLimiter_InvalidSpec(t *testing.T) {
	t.Parallel()

	limiter, _ := newMemoryLimiter()
	err := limiter.Check(context.Background(), "feed", "lots")
	require.Error(t, err)
	assert.ErrorIs(t, err, ratelimit.ErrInvalidSpec)
	assert.False(t, errors.Is(err, ratelimit.ErrRateLimited))
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	wrapped := errors.Join(errors.New("fetch"), &ratelimit.Error{SourceID: "x", RetryAfter: 3 * time.Second})
	d, ok := ratelimit.RetryAfter(wrapped)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	_, ok = ratelimit.RetryAfter(errors.New("plain"))
	assert.False(t, ok)
}

func TestMemoryStore_Prune(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Unix(0, 0)}
	store := ratelimit.NewMemoryStore(c.Now)
	_, _, err := store.Hit(context.Background(), "a", time.Minute)
	require.NoError(t, err)
	_, _, err = store.Hit(context.Background(), "b", time.Hour)
	require.NoError(t, err)

	c.Advance(2 * time.Minute)
	assert.Equal(t, 1, store.Prune())
}
