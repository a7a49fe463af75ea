// Package quota enforces a monthly token allowance per actor. It is a
// coarser guard than rate limiting: the limiter bounds burst traffic,
// the quota bounds total upstream spend over a billing month.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Service tracks token consumption and enforces allowances.
type Service interface {
	WithinAllowance(ctx context.Context, actorID string) bool
	AddTokens(ctx context.Context, actorID string, tokens int) error
}

// NoopService does not enforce allowances and discards usage.
type NoopService struct{}

func NewNoopService() *NoopService {
	return &NoopService{}
}

func (s *NoopService) WithinAllowance(ctx context.Context, actorID string) bool {
	return true
}

func (s *NoopService) AddTokens(ctx context.Context, actorID string, tokens int) error {
	return nil
}

// RedisQuotaService tracks token consumption in Redis per calendar
// month. An allowance of 0 means unlimited.
type RedisQuotaService struct {
	redis     *redis.Client
	allowance int64 // tokens per actor per month, 0 = unlimited
}

// NewRedisQuotaService creates a new quota service
func NewRedisQuotaService(client *redis.Client, monthlyTokenAllowance int64) *RedisQuotaService {
	return &RedisQuotaService{
		redis:     client,
		allowance: monthlyTokenAllowance,
	}
}

// WithinAllowance checks if an actor still has monthly tokens left.
// On Redis errors the request is allowed; availability of generation
// wins over strict quota enforcement.
func (s *RedisQuotaService) WithinAllowance(ctx context.Context, actorID string) bool {
	if s.allowance <= 0 {
		return true
	}

	used, err := s.MonthlyTokens(ctx, actorID)
	if err != nil {
		return true
	}

	return used < s.allowance
}

// AddTokens adds consumed tokens to the actor's running monthly total
func (s *RedisQuotaService) AddTokens(ctx context.Context, actorID string, tokens int) error {
	if tokens <= 0 {
		return nil
	}

	now := time.Now()
	key := s.monthlyKey(actorID, now.Year(), int(now.Month()))

	script := redis.NewScript(`
		local key = KEYS[1]
		local tokens = tonumber(ARGV[1])
		local ttl = tonumber(ARGV[2])

		local current = tonumber(redis.call('GET', key)) or 0
		local new_total = current + tokens

		redis.call('SET', key, new_total, 'EX', ttl)
		return new_total
	`)

	// Keep data for 2 months
	ttl := 60 * 24 * 60 * 60

	_, err := script.Run(ctx, s.redis, []string{key}, tokens, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to add tokens: %w", err)
	}

	return nil
}

// MonthlyTokens returns the current month's token total for an actor
func (s *RedisQuotaService) MonthlyTokens(ctx context.Context, actorID string) (int64, error) {
	now := time.Now()
	key := s.monthlyKey(actorID, now.Year(), int(now.Month()))

	val, err := s.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get monthly tokens: %w", err)
	}

	return val, nil
}

// TokensFor returns the token total for a specific month
func (s *RedisQuotaService) TokensFor(ctx context.Context, actorID string, year int, month int) (int64, error) {
	key := s.monthlyKey(actorID, year, month)

	val, err := s.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get tokens: %w", err)
	}

	return val, nil
}

// ResetMonthlyTokens clears the current month's total (admin use)
func (s *RedisQuotaService) ResetMonthlyTokens(ctx context.Context, actorID string) error {
	now := time.Now()
	key := s.monthlyKey(actorID, now.Year(), int(now.Month()))
	return s.redis.Del(ctx, key).Err()
}

// monthlyKey generates the Redis key for a monthly token total
func (s *RedisQuotaService) monthlyKey(actorID string, year int, month int) string {
	return fmt.Sprintf("quota:tokens:%s:%d:%02d", actorID, year, month)
}
