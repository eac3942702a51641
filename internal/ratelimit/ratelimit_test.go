package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalLimiterPerKeyBurst(t *testing.T) {
	l := NewLocalLimiter(1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("patient:pat") || !l.Allow("patient:pat") {
		t.Fatalf("burst of two should pass")
	}
	if l.Allow("patient:pat") {
		t.Fatalf("third attempt should be blocked")
	}
	if !l.Allow("caregiver:pat") {
		t.Fatalf("other key has its own budget")
	}

	now = now.Add(time.Minute)
	if !l.Allow("patient:pat") {
		t.Fatalf("a token should refill after a minute")
	}
}

func TestLocalLimiterPrunesIdleKeys(t *testing.T) {
	l := NewLocalLimiter(60, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(10 * time.Minute)
	l.Allow("b")

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries["a"]; ok {
		t.Fatalf("idle key should have been pruned")
	}
	if _, ok := l.entries["b"]; !ok {
		t.Fatalf("fresh key missing")
	}
}

func newRedisLimiter(t *testing.T, attempts int) (*RedisLoginLimiter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := NewRedisLoginLimiter(client, attempts, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLoginLimiter error: %v", err)
	}
	return l, srv
}

func TestRedisLoginLimiterBudgetPerAccount(t *testing.T) {
	l, _ := newRedisLimiter(t, 2)

	if !l.Allow("patient:pat") || !l.Allow("patient:pat") {
		t.Fatalf("first two attempts should pass")
	}
	if l.Allow("patient:pat") {
		t.Fatalf("third attempt should be blocked")
	}
	if !l.Allow("caregiver:pat") {
		t.Fatalf("caregiver account has its own budget")
	}
}

func TestRedisLoginLimiterDecision(t *testing.T) {
	l, srv := newRedisLimiter(t, 1)
	ctx := context.Background()

	d, err := l.Attempt(ctx, "patient:pat")
	if err != nil {
		t.Fatalf("Attempt error: %v", err)
	}
	if !d.Allowed || d.Remaining != 0 || d.RetryAfter != 0 {
		t.Fatalf("first decision = %+v", d)
	}

	d, err = l.Attempt(ctx, "patient:pat")
	if err != nil {
		t.Fatalf("Attempt error: %v", err)
	}
	if d.Allowed || d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("second decision = %+v", d)
	}

	srv.FastForward(time.Minute + time.Second)
	if d, err := l.Attempt(ctx, "patient:pat"); err != nil || !d.Allowed {
		t.Fatalf("after window decision = %+v, err = %v", d, err)
	}
}

func TestRedisLoginLimiterResetClearsFailures(t *testing.T) {
	l, _ := newRedisLimiter(t, 1)

	l.Allow("patient:pat")
	if l.Allow("patient:pat") {
		t.Fatalf("budget should be spent")
	}
	l.Reset("patient:pat")
	if !l.Allow("patient:pat") {
		t.Fatalf("reset should restore the budget")
	}
}

func TestRedisLoginLimiterFailsClosed(t *testing.T) {
	l, srv := newRedisLimiter(t, 5)

	srv.Close()
	if l.Allow("patient:pat") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestRedisLoginLimiterValidation(t *testing.T) {
	if l, err := NewRedisLoginLimiter(nil, 1, time.Second); err == nil || l != nil {
		t.Fatalf("expected error for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if l, err := NewRedisLoginLimiter(client, 0, time.Second); err == nil || l != nil {
		t.Fatalf("expected error for zero attempts")
	}
}

func TestLocalLimiterReset(t *testing.T) {
	l := NewLocalLimiter(1, 1)
	l.Allow("k")
	if l.Allow("k") {
		t.Fatalf("budget should be spent")
	}
	l.Reset("k")
	if !l.Allow("k") {
		t.Fatalf("reset should restore the budget")
	}
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	for i := 0; i < 100; i++ {
		if !l.Allow("k") {
			t.Fatalf("Unlimited blocked attempt %d", i)
		}
	}
}
