package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/htvo/oauth2d/pkg/slogx"
)

// Rate limited actions.
const (
	ActionLogin = "login"
	ActionMFA   = "mfa"
	ActionEmail = "email"
)

// RefillStyle selects how a bucket regains tokens.
type RefillStyle int

const (
	// RefillInterval resets the bucket to full capacity once per
	// period, allowing sharp bursts at period boundaries.
	RefillInterval RefillStyle = iota

	// RefillGreedy accrues tokens continuously at capacity/period,
	// capped at capacity.
	RefillGreedy
)

// RatePolicy is the configured budget for one action.
type RatePolicy struct {
	Capacity int
	Period   time.Duration
	Style    RefillStyle
}

// DefaultRatePolicies returns the stock per-action budgets.
func DefaultRatePolicies() map[string]RatePolicy {
	return map[string]RatePolicy{
		ActionLogin: {Capacity: 5, Period: 300 * time.Second, Style: RefillInterval},
		ActionMFA:   {Capacity: 3, Period: 60 * time.Second, Style: RefillInterval},
		ActionEmail: {Capacity: 10, Period: time.Hour, Style: RefillGreedy},
	}
}

// Bucket is the stored state for one (action, identifier) pair.
type Bucket struct {
	Tokens     float64
	LastRefill time.Time
}

// RateDecision is the outcome of a consumption attempt.
type RateDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// consumeBucket applies one consumption attempt to a bucket. Pure over
// (bucket, policy, now): no clock reads, no I/O, never fails.
func consumeBucket(b Bucket, p RatePolicy, now time.Time) (Bucket, RateDecision) {
	if b.LastRefill.IsZero() {
		b = Bucket{Tokens: float64(p.Capacity), LastRefill: now}
	}

	elapsed := now.Sub(b.LastRefill)
	switch p.Style {
	case RefillInterval:
		if elapsed >= p.Period {
			b.Tokens = float64(p.Capacity)
			b.LastRefill = now
		}
	case RefillGreedy:
		if elapsed > 0 {
			rate := float64(p.Capacity) / p.Period.Seconds()
			b.Tokens = min(float64(p.Capacity), b.Tokens+elapsed.Seconds()*rate)
			b.LastRefill = now
		}
	}

	if b.Tokens >= 1 {
		b.Tokens--
		return b, RateDecision{Allowed: true, Remaining: int(b.Tokens)}
	}

	var retry time.Duration
	switch p.Style {
	case RefillInterval:
		retry = p.Period - now.Sub(b.LastRefill)
	case RefillGreedy:
		deficit := 1 - b.Tokens
		perToken := p.Period.Seconds() / float64(p.Capacity)
		retry = time.Duration(deficit * perToken * float64(time.Second))
	}
	if retry < time.Second {
		retry = time.Second
	}
	return b, RateDecision{Allowed: false, Remaining: 0, RetryAfter: retry}
}

// peekBucket reports the currently available tokens without consuming.
func peekBucket(b Bucket, p RatePolicy, now time.Time) int {
	_, decision := consumeBucket(b, p, now)
	if decision.Allowed {
		return decision.Remaining + 1
	}
	return 0
}

// BucketStore is the atomic read-modify-write backing for buckets.
// Implementations must apply the consumption as a single step; a plain
// get-then-set pair loses updates under contention.
type BucketStore interface {
	Consume(ctx context.Context, key string, p RatePolicy, now time.Time) (RateDecision, error)
	Peek(ctx context.Context, key string, p RatePolicy, now time.Time) (int, error)
	Reset(ctx context.Context, key string) error
}

// RateLimiter enforces the per-action budgets. Store failures fail
// open: a broken backing store must never block legitimate traffic, so
// the error is logged and the request admitted.
type RateLimiter struct {
	Store    BucketStore
	Policies map[string]RatePolicy

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewRateLimiter(store BucketStore, policies map[string]RatePolicy) *RateLimiter {
	if policies == nil {
		policies = DefaultRatePolicies()
	}
	return &RateLimiter{Store: store, Policies: policies, Now: time.Now}
}

func (l *RateLimiter) key(action, identifier string) string {
	return "ratelimit:" + action + ":" + identifier
}

// CheckAndConsume takes one token from the (action, identifier)
// bucket. Actions without a configured policy are always allowed.
func (l *RateLimiter) CheckAndConsume(ctx context.Context, action, identifier string) RateDecision {
	policy, ok := l.Policies[action]
	if !ok {
		return RateDecision{Allowed: true}
	}

	decision, err := l.Store.Consume(ctx, l.key(action, identifier), policy, l.Now())
	if err != nil {
		slogx.FromContext(ctx).Warn("rate limit store unavailable, failing open",
			slog.String("action", action),
			slog.Any("error", err),
		)
		return RateDecision{Allowed: true}
	}
	return decision
}

// Reset clears the bucket back to empty history. Used after a
// successful login so earlier failures stop counting.
func (l *RateLimiter) Reset(ctx context.Context, action, identifier string) {
	if err := l.Store.Reset(ctx, l.key(action, identifier)); err != nil {
		slogx.FromContext(ctx).Warn("rate limit reset failed",
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}

// RemainingCapacity is a read-only peek at the bucket.
func (l *RateLimiter) RemainingCapacity(ctx context.Context, action, identifier string) int {
	policy, ok := l.Policies[action]
	if !ok {
		return 0
	}
	remaining, err := l.Store.Peek(ctx, l.key(action, identifier), policy, l.Now())
	if err != nil {
		return policy.Capacity
	}
	return remaining
}
