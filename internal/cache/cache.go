// Package cache is the shared key-value layer: short-TTL resource metadata,
// rewritten scripts and the failed-attempt counters all live here. Redis
// backs it in production; the in-memory implementation serves tests.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Increment atomically bumps a counter, starting the TTL window only
	// when the key is created. An existing key keeps its remaining TTL.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// TTL reports the remaining lifetime of key, or ErrMiss.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Delete(ctx context.Context, key string) error
}

// Key namespaces. Kept in one place so the purge/debug tooling and the
// components agree on layout.
const (
	MetadataPrefix = "meta:"
	ScriptPrefix   = "script:"
	AttemptPrefix  = "attempts:"
)
