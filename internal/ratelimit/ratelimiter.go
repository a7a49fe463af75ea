package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"acadgen/internal/models"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is a hint for rejected callers: how long until the
	// oldest request in the window falls out and admission resumes.
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter gatekeeps requests per (actor, operation kind) before they
// consume upstream capacity. Distinct operation kinds have independent
// budgets.
type Limiter interface {
	Allow(ctx context.Context, actorID string, kind models.OperationKind) (Decision, error)
}

// Limit is the configured ceiling for one operation kind.
type Limit struct {
	Requests int           // admitted requests per window; 0 = unlimited
	Window   time.Duration // rolling window size
}

// NoopLimiter admits every request. Used when admission control is
// disabled and for trusted service accounts.
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Allow(ctx context.Context, actorID string, kind models.OperationKind) (Decision, error) {
	return Decision{Allowed: true, Remaining: -1}, nil
}

// RateLimiter implements distributed sliding-window rate limiting on
// Redis sorted sets. Prune, count and admit run in a single Lua
// script, so concurrent admission checks for the same bucket cannot
// interleave and over-admit.
type RateLimiter struct {
	client *redis.Client
	limits map[models.OperationKind]Limit
}

// slidingWindowScript prunes expired entries, counts the window, and
// records the request only when it is admitted. Returns
// {admitted, count} and, on rejection, the oldest entry's score so the
// caller can compute a retry hint.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local window_start = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])
	local score = ARGV[3]
	local member = ARGV[4]
	local ttl_ms = tonumber(ARGV[5])

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, score, member)
		redis.call('PEXPIRE', key, ttl_ms)
		return {1, count}
	end

	redis.call('PEXPIRE', key, ttl_ms)
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if oldest[2] then
		return {0, count, oldest[2]}
	end
	return {0, count}
`)

// NewRateLimiter creates a rate limiter with per-operation limits
func NewRateLimiter(client *redis.Client, limits map[models.OperationKind]Limit) *RateLimiter {
	return &RateLimiter{client: client, limits: limits}
}

func bucketKey(actorID string, kind models.OperationKind) string {
	return fmt.Sprintf("ratelimit:%s:%s", actorID, kind)
}

// Allow checks whether one more request should be admitted for the
// given actor and operation kind. A burst beyond the limit is rejected
// with a RetryAfter hint, never queued.
func (rl *RateLimiter) Allow(ctx context.Context, actorID string, kind models.OperationKind) (Decision, error) {
	limit, ok := rl.limits[kind]
	if !ok || limit.Requests <= 0 {
		// No limit configured for this kind
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	window := limit.Window
	if window <= 0 {
		window = time.Minute
	}

	key := bucketKey(actorID, kind)
	now := time.Now()
	ts := now.UnixMilli()

	res, err := slidingWindowScript.Run(ctx, rl.client, []string{key},
		now.Add(-window).UnixMilli(),
		limit.Requests,
		ts,
		fmt.Sprintf("%d:%d", ts, now.Nanosecond()),
		(2 * window).Milliseconds(),
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) < 2 {
		return Decision{}, fmt.Errorf("rate limit check failed: unexpected script reply %v", res)
	}

	admitted, _ := res[0].(int64)
	count, _ := res[1].(int64)
	current := int(count)

	if admitted == 1 {
		return Decision{
			Allowed:   true,
			Remaining: limit.Requests - current - 1,
			ResetAt:   now.Add(window),
		}, nil
	}

	// The oldest entry's score tells the caller when the window opens
	retryAfter := window
	if len(res) > 2 {
		if raw, ok := res[2].(string); ok {
			if oldest, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
				retryAfter = time.UnixMilli(oldest).Add(window).Sub(now)
				if retryAfter <= 0 {
					retryAfter = time.Second
				}
			}
		}
	}
	return Decision{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: retryAfter,
		ResetAt:    now.Add(retryAfter),
	}, nil
}

// CurrentUsage returns the number of requests currently in the window
// for an actor and operation kind
func (rl *RateLimiter) CurrentUsage(ctx context.Context, actorID string, kind models.OperationKind) (int64, error) {
	limit, ok := rl.limits[kind]
	if !ok {
		return 0, nil
	}
	window := limit.Window
	if window <= 0 {
		window = time.Minute
	}

	key := bucketKey(actorID, kind)
	windowStart := time.Now().Add(-window)

	if err := rl.client.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixMilli(), 10)).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := rl.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get current usage: %w", err)
	}

	return count, nil
}

// Reset clears the bucket for an actor and operation kind
func (rl *RateLimiter) Reset(ctx context.Context, actorID string, kind models.OperationKind) error {
	return rl.client.Del(ctx, bucketKey(actorID, kind)).Err()
}
