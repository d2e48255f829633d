package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bobarin/xvoice/internal/models"
	"github.com/go-redis/redis/v8"
)

const keyPrefix = "voice:"

// Cache keeps recent synthesize results in Redis so repeat lookups of the
// same handle skip the upstream APIs.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Key is the Redis key for handle. X handles are case-insensitive.
func Key(handle string) string {
	return keyPrefix + strings.ToLower(handle)
}

// Get returns the cached result for handle. A miss is (nil, false, nil).
func (c *Cache) Get(ctx context.Context, handle string) (*models.VoiceResult, bool, error) {
	raw, err := c.client.Get(ctx, Key(handle)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache: %w", err)
	}

	result, err := decode(raw)
	if err != nil {
		// Drop entries written by an incompatible version.
		c.client.Del(ctx, Key(handle))
		return nil, false, nil
	}
	return result, true, nil
}

func (c *Cache) Set(ctx context.Context, handle string, result *models.VoiceResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal cached result: %w", err)
	}
	if err := c.client.Set(ctx, Key(handle), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, handle string) error {
	return c.client.Del(ctx, Key(handle)).Err()
}

func decode(raw []byte) (*models.VoiceResult, error) {
	var result models.VoiceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	if result.Handle == "" {
		return nil, fmt.Errorf("cached result has no handle")
	}
	return &result, nil
}
