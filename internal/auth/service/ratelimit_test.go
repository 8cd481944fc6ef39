package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLimiter() (*RateLimiter, *time.Time) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(NewMemoryBucketStore(), DefaultRatePolicies())
	limiter.Now = func() time.Time { return now }
	return limiter, &now
}

func TestIntervalRefillBudget(t *testing.T) {
	limiter, now := newTestLimiter()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		decision := limiter.CheckAndConsume(ctx, ActionLogin, "alice")
		require.True(t, decision.Allowed, "attempt %d should be allowed", i+1)
		require.Equal(t, 4-i, decision.Remaining)
	}

	decision := limiter.CheckAndConsume(ctx, ActionLogin, "alice")
	require.False(t, decision.Allowed)
	require.Greater(t, decision.RetryAfter, time.Duration(0))

	// Mid-period the bucket stays empty.
	*now = now.Add(100 * time.Second)
	decision = limiter.CheckAndConsume(ctx, ActionLogin, "alice")
	require.False(t, decision.Allowed)

	// A full period after the first fill the bucket snaps back to
	// capacity.
	*now = now.Add(201 * time.Second)
	decision = limiter.CheckAndConsume(ctx, ActionLogin, "alice")
	require.True(t, decision.Allowed)
	require.Equal(t, 4, decision.Remaining)
}

func TestGreedyRefillAccrues(t *testing.T) {
	limiter, now := newTestLimiter()
	ctx := context.Background()

	// Drain the 10/hour email budget.
	for i := 0; i < 10; i++ {
		require.True(t, limiter.CheckAndConsume(ctx, ActionEmail, "bob").Allowed)
	}
	require.False(t, limiter.CheckAndConsume(ctx, ActionEmail, "bob").Allowed)

	// One token accrues every 6 minutes; 7 minutes buys exactly one.
	*now = now.Add(7 * time.Minute)
	require.True(t, limiter.CheckAndConsume(ctx, ActionEmail, "bob").Allowed)
	require.False(t, limiter.CheckAndConsume(ctx, ActionEmail, "bob").Allowed)
}

func TestSeparateIdentifiers(t *testing.T) {
	limiter, _ := newTestLimiter()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, limiter.CheckAndConsume(ctx, ActionLogin, "alice").Allowed)
	}
	require.False(t, limiter.CheckAndConsume(ctx, ActionLogin, "alice").Allowed)

	// Another identifier has its own bucket.
	require.True(t, limiter.CheckAndConsume(ctx, ActionLogin, "mallory").Allowed)
}

func TestResetClearsHistory(t *testing.T) {
	limiter, _ := newTestLimiter()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		limiter.CheckAndConsume(ctx, ActionLogin, "alice")
	}
	require.False(t, limiter.CheckAndConsume(ctx, ActionLogin, "alice").Allowed)

	limiter.Reset(ctx, ActionLogin, "alice")
	require.True(t, limiter.CheckAndConsume(ctx, ActionLogin, "alice").Allowed)
}

func TestRemainingCapacity(t *testing.T) {
	limiter, _ := newTestLimiter()
	ctx := context.Background()

	require.Equal(t, 5, limiter.RemainingCapacity(ctx, ActionLogin, "alice"))
	limiter.CheckAndConsume(ctx, ActionLogin, "alice")
	limiter.CheckAndConsume(ctx, ActionLogin, "alice")
	require.Equal(t, 3, limiter.RemainingCapacity(ctx, ActionLogin, "alice"))

	// Peeking never consumes.
	require.Equal(t, 3, limiter.RemainingCapacity(ctx, ActionLogin, "alice"))
}

func TestUnknownActionAllowed(t *testing.T) {
	limiter, _ := newTestLimiter()
	for i := 0; i < 100; i++ {
		require.True(t, limiter.CheckAndConsume(context.Background(), "unconfigured", "x").Allowed)
	}
}

type failingBucketStore struct{}

func (failingBucketStore) Consume(context.Context, string, RatePolicy, time.Time) (RateDecision, error) {
	return RateDecision{}, errors.New("store down")
}
func (failingBucketStore) Peek(context.Context, string, RatePolicy, time.Time) (int, error) {
	return 0, errors.New("store down")
}
func (failingBucketStore) Reset(context.Context, string) error {
	return errors.New("store down")
}

func TestFailOpenOnStoreError(t *testing.T) {
	limiter := NewRateLimiter(failingBucketStore{}, DefaultRatePolicies())
	decision := limiter.CheckAndConsume(context.Background(), ActionLogin, "alice")
	require.True(t, decision.Allowed)
}

func TestConcurrentConsumeNeverOversells(t *testing.T) {
	limiter, _ := newTestLimiter()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.CheckAndConsume(ctx, ActionLogin, "alice").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 5, allowed)
}
