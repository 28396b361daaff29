// Package redis caches terminal task views in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "inkwell:task:"

// StatusCache stores serialized task views with a TTL.
type StatusCache struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewStatusCache wraps an existing client.
func NewStatusCache(client *goredis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StatusCache{client: client, ttl: ttl}
}

// Dial builds a client for addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func key(taskID uuid.UUID) string {
	return keyPrefix + taskID.String()
}

// Get returns the cached view for a task. found is false on a cache miss.
func (c *StatusCache) Get(ctx context.Context, taskID uuid.UUID) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key(taskID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

// Set stores the view for a task.
func (c *StatusCache) Set(ctx context.Context, taskID uuid.UUID, view []byte) error {
	if err := c.client.Set(ctx, key(taskID), view, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
