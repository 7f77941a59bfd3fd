package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pagegate-org/pagegate/internal/cache"
	"github.com/pagegate-org/pagegate/internal/faults"
)

func newTestLimiter(t *testing.T) (*Limiter, *cache.MemoryCache, *time.Time) {
	t.Helper()
	mem := cache.NewMemoryCache()
	now := time.Now()
	mem.SetClock(func() time.Time { return now })
	return New(mem, 5, 15*time.Minute, time.Second), mem, &now
}

func TestCheckAllowsUnderLimit(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := l.RecordFailure(ctx, "10.0.0.1", "abc123"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	if err := l.Check(ctx, "10.0.0.1", "abc123"); err != nil {
		t.Errorf("Check after 4 failures = %v, want nil", err)
	}
}

func TestCheckBlocksAtLimit(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.RecordFailure(ctx, "10.0.0.1", "abc123"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	err := l.Check(ctx, "10.0.0.1", "abc123")
	rl, ok := faults.IsRateLimited(err)
	if !ok {
		t.Fatalf("Check after 5 failures = %v, want RateLimitedError", err)
	}
	if rl.RetryAfter <= 0 || rl.RetryAfter > 15*time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, 15m]", rl.RetryAfter)
	}
}

func TestLimitIsScopedToClientAndResource(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.RecordFailure(ctx, "10.0.0.1", "abc123")
	}

	if err := l.Check(ctx, "10.0.0.2", "abc123"); err != nil {
		t.Errorf("other client blocked: %v", err)
	}
	if err := l.Check(ctx, "10.0.0.1", "other"); err != nil {
		t.Errorf("other resource blocked: %v", err)
	}
}

func TestClearResetsCounter(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.RecordFailure(ctx, "10.0.0.1", "abc123")
	}
	if err := l.Clear(ctx, "10.0.0.1", "abc123"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := l.Check(ctx, "10.0.0.1", "abc123"); err != nil {
		t.Errorf("Check after clear = %v, want nil", err)
	}
}

func TestWindowExpires(t *testing.T) {
	l, _, now := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.RecordFailure(ctx, "10.0.0.1", "abc123")
	}
	if err := l.Check(ctx, "10.0.0.1", "abc123"); err == nil {
		t.Fatal("expected limiter to block before window elapses")
	}

	*now = now.Add(16 * time.Minute)

	if err := l.Check(ctx, "10.0.0.1", "abc123"); err != nil {
		t.Errorf("Check after window elapsed = %v, want nil", err)
	}
}

// The window slides from the first failure: later failures must not push
// the expiry out.
func TestLaterFailuresKeepRemainingWindow(t *testing.T) {
	l, _, now := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.RecordFailure(ctx, "10.0.0.1", "abc123")
	}
	*now = now.Add(10 * time.Minute)
	l.RecordFailure(ctx, "10.0.0.1", "abc123")

	*now = now.Add(6 * time.Minute)
	if err := l.Check(ctx, "10.0.0.1", "abc123"); err != nil {
		t.Errorf("Check 16m after first failure = %v, want nil", err)
	}
}

type failingCache struct {
	cache.Cache
}

func (f failingCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (f failingCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	return 0, errors.New("connection refused")
}

// An unreachable counter store must not disable the limiter.
func TestUnavailableStoreFailsClosed(t *testing.T) {
	l := New(failingCache{}, 5, 15*time.Minute, time.Second)

	err := l.Check(context.Background(), "10.0.0.1", "abc123")
	if _, ok := faults.IsRateLimited(err); !ok {
		t.Errorf("Check with failing store = %v, want RateLimitedError", err)
	}
}
