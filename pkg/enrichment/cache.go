package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kart-io/relayhub/pkg/logger"
)

// DefaultKeyPrefix namespaces cached origins in Redis
const DefaultKeyPrefix = "relay:origin:"

// MemoryCache implements Cache in process memory. Expired entries are
// dropped lazily on access.
type MemoryCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	origin    Origin
	expiresAt time.Time
	createdAt time.Time
}

// NewMemoryCache creates an in-memory cache. maxEntries <= 0 means unbounded.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]memoryEntry),
	}
}

// Get implements Cache
func (c *MemoryCache) Get(_ context.Context, ip string) (*Origin, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[ip]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, ip)
		return nil, false
	}
	origin := entry.origin
	return &origin, true
}

// Set implements Cache
func (c *MemoryCache) Set(_ context.Context, ip string, origin *Origin) {
	if origin == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[ip]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	now := c.now()
	c.entries[ip] = memoryEntry{origin: *origin, expiresAt: now.Add(c.ttl), createdAt: now}
}

// Len returns the number of stored entries, expired or not
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.createdAt.Before(oldest) {
			oldestKey = key
			oldest = entry.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// RedisCache implements Cache on Redis. Every failure is logged and treated
// as a miss.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	logger logger.Logger
}

// NewRedisCache wraps an existing Redis client
func NewRedisCache(client redis.Cmdable, ttl time.Duration, l logger.Logger) *RedisCache {
	if l == nil {
		l = logger.Discard
	}
	return &RedisCache{client: client, ttl: ttl, prefix: DefaultKeyPrefix, logger: l}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// Get implements Cache
func (c *RedisCache) Get(ctx context.Context, ip string) (*Origin, bool) {
	key := c.prefix + ip
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Redis GET failed", "key", key, "error", err)
		}
		return nil, false
	}

	var origin Origin
	if err := json.Unmarshal(raw, &origin); err != nil {
		c.logger.Warn("Discarding corrupt cached origin", "key", key, "error", err)
		return nil, false
	}
	c.logger.Debug("Redis cache hit", "key", key)
	return &origin, true
}

// Set implements Cache
func (c *RedisCache) Set(ctx context.Context, ip string, origin *Origin) {
	if origin == nil {
		return
	}
	key := c.prefix + ip
	raw, err := json.Marshal(origin)
	if err != nil {
		c.logger.Warn("Encode origin failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Redis SET failed", "key", key, "error", err)
		return
	}
	c.logger.Debug("Redis cache set", "key", key, "ttl", c.ttl)
}
