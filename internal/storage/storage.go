package storage

import (
	"context"
	"time"
)

// Storage holds cached upstream asset bodies. Get reports a miss for
// absent or expired entries; the content type travels with the bytes.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
	Put(ctx context.Context, key, sourceURL string, content []byte, mediaType string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	UpdateLastAccess(ctx context.Context, key string) error
}
