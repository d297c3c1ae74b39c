package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T, limit int) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewRedisFixedWindowLimiter(client, "test:ratelimit", limit, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	return limiter, mr
}

func TestFixedWindowLimiterRedis(t *testing.T) {
	limiter, _ := newRedisLimiter(t, 2)
	ctx := context.Background()

	first := limiter.Allow(ctx, "user-1")
	if !first.Allowed || first.Remaining != 1 {
		t.Fatalf("first request should pass with one remaining, got %+v", first)
	}
	if !limiter.Allow(ctx, "user-1").Allowed {
		t.Fatalf("second request should pass")
	}
	third := limiter.Allow(ctx, "user-1")
	if third.Allowed || third.RetryAfter <= 0 {
		t.Fatalf("third request should be blocked with retry hint, got %+v", third)
	}
	if !limiter.Allow(ctx, "user-2").Allowed {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 1)
	mr.Close()
	if limiter.Allow(context.Background(), "user-1").Allowed {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresClient(t *testing.T) {
	limiter, err := NewRedisFixedWindowLimiter(nil, "", 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for nil client")
	}
}

func TestMemoryFixedWindowLimiterResetsPerWindow(t *testing.T) {
	limiter, err := NewMemoryFixedWindowLimiter(1, time.Minute)
	if err != nil {
		t.Fatalf("new memory limiter: %v", err)
	}
	now := time.Date(2026, 5, 1, 10, 0, 10, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	if !limiter.Allow(ctx, "u").Allowed {
		t.Fatalf("first request should pass")
	}
	blocked := limiter.Allow(ctx, "u")
	if blocked.Allowed || blocked.RetryAfter != 50*time.Second {
		t.Fatalf("expected block until window end, got %+v", blocked)
	}
	now = now.Add(time.Minute)
	if !limiter.Allow(ctx, "u").Allowed {
		t.Fatalf("new window should reset quota")
	}
}
