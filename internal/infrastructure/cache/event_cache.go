package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

// EventCache remembers recently processed webhook deliveries so exact
// replays can be skipped cheaply. It is a best-effort fast path only:
// the monotonic transition rules in the domain remain the real
// idempotency guard, so a cache miss or outage is never an error.
type EventCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewEventCache(cfg config.RedisConfig, ttl time.Duration, logger *slog.Logger) (*EventCache, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.URL,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &EventCache{client: client, ttl: ttl, logger: logger}, nil
}

// NewEventCacheWithClient wires an existing client, used by tests.
func NewEventCacheWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *EventCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EventCache{client: client, ttl: ttl, logger: logger}
}

// Seen records a delivery and reports whether the identical payload was
// already processed. Redis errors degrade to "not seen".
func (c *EventCache) Seen(ctx context.Context, rawBody []byte) bool {
	key := "webhook:seen:" + digest(rawBody)

	created, err := c.client.SetNX(ctx, key, 1, c.ttl).Result()
	if err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "event cache unavailable, falling through to full processing", "error", err)
		}
		return false
	}
	return !created
}

// Forget drops a delivery record so a failed application can be retried
// by carrier redelivery.
func (c *EventCache) Forget(ctx context.Context, rawBody []byte) {
	if err := c.client.Del(ctx, "webhook:seen:"+digest(rawBody)).Err(); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "failed to evict event cache entry", "error", err)
	}
}

// Ping reports Redis connectivity, used by readiness probes.
func (c *EventCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *EventCache) Close() error {
	return c.client.Close()
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
