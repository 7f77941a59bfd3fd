// Package ratelimit tracks failed password attempts per (client, resource)
// pair on the shared cache so the limit holds across gateway instances.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pagegate-org/pagegate/internal/cache"
	"github.com/pagegate-org/pagegate/internal/faults"
)

type Limiter struct {
	cache        cache.Cache
	maxAttempts  int
	window       time.Duration
	cacheTimeout time.Duration
}

func New(c cache.Cache, maxAttempts int, window, cacheTimeout time.Duration) *Limiter {
	return &Limiter{
		cache:        c,
		maxAttempts:  maxAttempts,
		window:       window,
		cacheTimeout: cacheTimeout,
	}
}

func key(fingerprint, slug string) string {
	return cache.AttemptPrefix + fingerprint + ":" + slug
}

// Check returns a RateLimitedError when the pair has exhausted its
// attempts. An unreachable counter store fails closed: letting an outage
// disable brute-force protection is worse than delaying a legitimate
// caller, so the check is retried once and then rejected with the full
// window as the hint.
func (l *Limiter) Check(ctx context.Context, fingerprint, slug string) error {
	count, err := l.count(ctx, fingerprint, slug)
	if err != nil {
		if count, err = l.count(ctx, fingerprint, slug); err != nil {
			return faults.RateLimited(l.window)
		}
	}
	if count < int64(l.maxAttempts) {
		return nil
	}

	retryAfter := l.window
	if ttl, err := l.cache.TTL(ctx, key(fingerprint, slug)); err == nil {
		retryAfter = ttl
	}
	return faults.RateLimited(retryAfter)
}

func (l *Limiter) count(ctx context.Context, fingerprint, slug string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cacheTimeout)
	defer cancel()

	raw, err := l.cache.Get(ctx, key(fingerprint, slug))
	if errors.Is(err, cache.ErrMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed attempt counter: %w", err)
	}
	return count, nil
}

// RecordFailure bumps the counter. A fresh key gets the full window; an
// existing one keeps its remaining TTL, which is what makes the window
// slide from the first failure rather than the last.
func (l *Limiter) RecordFailure(ctx context.Context, fingerprint, slug string) error {
	ctx, cancel := context.WithTimeout(ctx, l.cacheTimeout)
	defer cancel()

	if _, err := l.cache.Increment(ctx, key(fingerprint, slug), l.window); err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}
	return nil
}

func (l *Limiter) Clear(ctx context.Context, fingerprint, slug string) error {
	ctx, cancel := context.WithTimeout(ctx, l.cacheTimeout)
	defer cancel()

	if err := l.cache.Delete(ctx, key(fingerprint, slug)); err != nil {
		return fmt.Errorf("clear attempt counter: %w", err)
	}
	return nil
}
