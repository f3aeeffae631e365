package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/timeseries-pager/pkg/logging"
	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Config holds cache manager configuration.
type Config struct {
	// MemorySize is the number of entries kept in the in-process layer
	MemorySize int

	// MemoryTTL bounds how long an entry stays in the in-process layer
	MemoryTTL time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MemorySize: 256,
		MemoryTTL:  DefaultTTL,
	}
}

// Manager handles caching operations with an in-process LRU in front of an
// optional Redis backend.
//
// Entries returned by Get are shared between callers and must not be modified.
type Manager struct {
	redis  *redis.Client
	memory *expirable.LRU[string, *CacheEntry]
	logger zerolog.Logger
}

// NewManager creates a new cache manager. A nil redisClient keeps results in
// process memory only.
func NewManager(redisClient *redis.Client, cfg Config) *Manager {
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = DefaultConfig().MemorySize
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = DefaultTTL
	}

	return &Manager{
		redis:  redisClient,
		memory: expirable.NewLRU[string, *CacheEntry](cfg.MemorySize, nil, cfg.MemoryTTL),
		logger: logging.NewLogger("cache"),
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	cacheKey := key.String()

	if entry, ok := m.memory.Get(cacheKey); ok {
		if !entry.IsExpired() {
			CacheHits.WithLabelValues("memory").Inc()
			return entry, nil
		}
		m.memory.Remove(cacheKey)
	}

	if m.redis == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.Response == nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: no response", ErrInvalidEntry)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	m.memory.Add(cacheKey, &entry)
	CacheEntries.WithLabelValues("memory").Set(float64(m.memory.Len()))

	return &entry, nil
}

// Set stores a cache entry in both layers. Redis drops the entry when it
// expires.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil || entry.Response == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	cacheKey := key.String()

	ttl := entry.TTL()
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	m.memory.Add(cacheKey, entry)
	CacheEntries.WithLabelValues("memory").Set(float64(m.memory.Len()))

	if m.redis == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(data)))
	m.logger.Debug().
		Str("key", cacheKey).
		Int("bytes", len(data)).
		Dur("ttl", ttl).
		Msg("Cached query result")

	return nil
}

// Delete removes a cache entry from both layers.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	cacheKey := key.String()

	m.memory.Remove(cacheKey)
	CacheEntries.WithLabelValues("memory").Set(float64(m.memory.Len()))

	if m.redis == nil {
		return nil
	}
	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks the Redis backend. It succeeds for memory-only managers.
func (m *Manager) Ping(ctx context.Context) error {
	if m.redis == nil {
		return nil
	}
	return m.redis.Ping(ctx).Err()
}
