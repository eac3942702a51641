package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// loginAttemptScript bumps the attempt counter for one account and returns
// the new count with the remaining window in milliseconds.
var loginAttemptScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// Decision is the outcome of one login attempt against the shared budget.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RedisLoginLimiter caps login attempts per account across every scheduler
// process sharing one Redis. The counter for an account is cleared after a
// successful login, so only consecutive failures use up the budget.
type RedisLoginLimiter struct {
	client   *redis.Client
	attempts int
	window   time.Duration
	timeout  time.Duration
}

func NewRedisLoginLimiter(client *redis.Client, attempts int, window time.Duration) (*RedisLoginLimiter, error) {
	if client == nil {
		return nil, errors.New("login limiter requires a redis client")
	}
	if attempts <= 0 || window <= 0 {
		return nil, errors.New("login limiter requires positive attempts and window")
	}
	return &RedisLoginLimiter{
		client:   client,
		attempts: attempts,
		window:   window,
		timeout:  2 * time.Second,
	}, nil
}

func loginKey(account string) string {
	account = strings.TrimSpace(account)
	if account == "" {
		account = "unknown"
	}
	return "vaxsched:login:" + account
}

func (l *RedisLoginLimiter) Attempt(ctx context.Context, account string) (Decision, error) {
	res, err := loginAttemptScript.Run(ctx, l.client, []string{loginKey(account)}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 2 {
		return Decision{}, errors.New("login limiter: unexpected script reply")
	}
	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if ttl < 0 {
		ttl = l.window
	}

	d := Decision{Allowed: count <= l.attempts, Remaining: l.attempts - count}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}

// Allow fails closed when Redis cannot be reached.
func (l *RedisLoginLimiter) Allow(account string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	d, err := l.Attempt(ctx, account)
	return err == nil && d.Allowed
}

func (l *RedisLoginLimiter) Reset(account string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	_ = l.client.Del(ctx, loginKey(account)).Err()
}
