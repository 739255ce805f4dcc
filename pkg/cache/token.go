// Package cache provides the mutable stores the aggregation pipeline depends
// on: the shared CSRF token store and the request-scoped group-owner memo.
// Stores are explicitly constructed and injected so concurrent aggregations
// never cross-contaminate.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrMiss indicates the requested value was not found in the store.
var ErrMiss = errors.New("cache miss")

// TokenStore holds the anti-forgery token shared by catalog-details calls.
type TokenStore interface {
	// Get returns the cached token, or ErrMiss when none is cached.
	Get(ctx context.Context) (string, error)

	// Set replaces the cached token.
	Set(ctx context.Context, token string) error
}

// MemoryTokenStore is a process-local TokenStore.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenStore creates an empty in-process token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Get returns the cached token.
func (s *MemoryTokenStore) Get(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrMiss
	}
	return s.token, nil
}

// Set replaces the cached token.
func (s *MemoryTokenStore) Set(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Redis-backed token store defaults.
const (
	// DefaultTokenKey is the Redis key holding the shared token entry.
	DefaultTokenKey = "aggregator:csrf:token"

	// DefaultTokenTTL bounds how long a token is reused before the next
	// 403-driven refresh. Upstream rotates tokens on its own schedule, so
	// a stale entry only costs one extra round trip.
	DefaultTokenTTL = 30 * time.Minute
)

// tokenEntry is the msgpack-encoded value stored in Redis.
type tokenEntry struct {
	Token string    `msgpack:"token"`
	SetAt time.Time `msgpack:"set_at"`
}

// RedisTokenStore shares one CSRF token across aggregator instances.
type RedisTokenStore struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewRedisTokenStore creates a Redis-backed token store with default key and TTL.
func NewRedisTokenStore(redisClient *redis.Client) *RedisTokenStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisTokenStore{
		redis: redisClient,
		key:   DefaultTokenKey,
		ttl:   DefaultTokenTTL,
	}
}

// Get returns the shared token, or ErrMiss when absent or expired.
func (s *RedisTokenStore) Get(ctx context.Context) (string, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return "", ErrMiss
		}
		return "", fmt.Errorf("redis get: %w", err)
	}

	var entry tokenEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return "", fmt.Errorf("decode token entry: %w", err)
	}
	if entry.Token == "" {
		return "", ErrMiss
	}
	return entry.Token, nil
}

// Set replaces the shared token.
func (s *RedisTokenStore) Set(ctx context.Context, token string) error {
	data, err := msgpack.Marshal(tokenEntry{
		Token: token,
		SetAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("encode token entry: %w", err)
	}

	if err := s.redis.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
