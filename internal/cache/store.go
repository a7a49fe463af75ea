package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"acadgen/internal/models"
)

// Entry is a stored generation result together with the source version
// it was computed from.
type Entry struct {
	Result        *models.GenerationResult `json:"result"`
	SourceVersion string                   `json:"source_version"`
	GeneratedAt   time.Time                `json:"generated_at"`
}

// ResultStore serves previously computed generation results by
// fingerprint. A lookup is a hit only if the stored entry's source
// version matches the current one AND the entry is within its TTL;
// the stricter condition wins. Failed generations are never stored.
type ResultStore interface {
	// Lookup returns the entry for fingerprint, or (nil, false) on miss.
	// An entry whose source version differs from currentVersion is
	// treated as a miss and superseded.
	Lookup(ctx context.Context, fingerprint, currentVersion string) (*Entry, bool, error)

	// Store inserts or overwrites the entry for fingerprint.
	Store(ctx context.Context, fingerprint string, result *models.GenerationResult, sourceVersion string) error
}

// RedisResultStore keeps generation results in Redis with a fixed TTL.
type RedisResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisResultStore creates a Redis-backed result store
func NewRedisResultStore(client *redis.Client, ttl time.Duration) *RedisResultStore {
	return &RedisResultStore{client: client, ttl: ttl}
}

func resultKey(fingerprint string) string {
	return fmt.Sprintf("gen:result:%s", fingerprint)
}

// Lookup retrieves an entry by fingerprint
func (s *RedisResultStore) Lookup(ctx context.Context, fingerprint, currentVersion string) (*Entry, bool, error) {
	data, err := s.client.Get(ctx, resultKey(fingerprint)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to decode cache entry: %w", err)
	}

	if entry.SourceVersion != currentVersion {
		// Stale entry: the document changed since this was generated.
		// Drop it so the regenerated result supersedes, never merges.
		_ = s.client.Del(ctx, resultKey(fingerprint)).Err()
		return nil, false, nil
	}

	return &entry, true, nil
}

// Store inserts or overwrites an entry
func (s *RedisResultStore) Store(ctx context.Context, fingerprint string, result *models.GenerationResult, sourceVersion string) error {
	entry := Entry{
		Result:        result,
		SourceVersion: sourceVersion,
		GeneratedAt:   time.Now(),
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if err := s.client.Set(ctx, resultKey(fingerprint), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache store failed: %w", err)
	}

	return nil
}

// MemoryResultStore keeps generation results in an in-process LRU.
// Used for standalone deployments and tests; no persistence.
type MemoryResultStore struct {
	lru *LRU
}

// NewMemoryResultStore creates an in-memory result store
func NewMemoryResultStore(capacity int, ttl time.Duration) *MemoryResultStore {
	return &MemoryResultStore{lru: NewLRU(capacity, ttl)}
}

// Lookup retrieves an entry by fingerprint
func (s *MemoryResultStore) Lookup(ctx context.Context, fingerprint, currentVersion string) (*Entry, bool, error) {
	v, ok := s.lru.Get(fingerprint)
	if !ok {
		return nil, false, nil
	}

	entry := v.(*Entry)
	if entry.SourceVersion != currentVersion {
		s.lru.Delete(fingerprint)
		return nil, false, nil
	}

	return entry, true, nil
}

// Store inserts or overwrites an entry
func (s *MemoryResultStore) Store(ctx context.Context, fingerprint string, result *models.GenerationResult, sourceVersion string) error {
	s.lru.Set(fingerprint, &Entry{
		Result:        result,
		SourceVersion: sourceVersion,
		GeneratedAt:   time.Now(),
	})
	return nil
}
