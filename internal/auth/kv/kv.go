// Package kv is the ephemeral key-value layer backing MFA challenges,
// TOTP replay markers and rate limit buckets. Entries expire on their
// own; nothing in here is durable state.
package kv

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("kv: not found")

type Store interface {
	// Set writes key=value with the given TTL, replacing any existing
	// entry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value for key, or ErrNotFound if the key is
	// missing or expired.
	Get(ctx context.Context, key string) (string, error)

	// SetNX writes key=value only if the key does not exist yet.
	// Returns true when this call created the entry.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
