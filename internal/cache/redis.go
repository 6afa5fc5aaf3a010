// Package cache provides the Redis-backed stats cache and the worm event
// stream. Both are optional: the memory manager runs without them when no
// Redis host is configured.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps a Redis connection for stats caching and event streaming.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New connects to Redis at addr and verifies the connection.
func New(ctx context.Context, addr string, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	logger.Info("redis connected", zap.String("addr", addr))
	return &Client{rdb: rdb, logger: logger}, nil
}

// Close shuts down the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
