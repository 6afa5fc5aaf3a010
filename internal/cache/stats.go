package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/wormworks/agentic-worm/internal/memory"
)

const (
	statsKeyPrefix = "worm:stats:"
	statsTTL       = 30 * time.Second
)

// GetStats returns a cached stats snapshot, if one exists and is fresh.
func (c *Client) GetStats(ctx context.Context, wormID string) (*memory.Stats, bool) {
	data, err := c.rdb.Get(ctx, statsKeyPrefix+wormID).Bytes()
	if err != nil {
		return nil, false
	}
	var stats memory.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		c.logger.Warn("corrupt cached stats, dropping",
			zap.String("worm", wormID),
			zap.Error(err))
		c.rdb.Del(ctx, statsKeyPrefix+wormID)
		return nil, false
	}
	return &stats, true
}

// PutStats caches a stats snapshot with a short TTL. Failures are logged and
// swallowed; the cache is best effort.
func (c *Client) PutStats(ctx context.Context, wormID string, stats *memory.Stats) {
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, statsKeyPrefix+wormID, data, statsTTL).Err(); err != nil {
		c.logger.Warn("stats cache write failed",
			zap.String("worm", wormID),
			zap.Error(err))
	}
}

// Invalidate drops the cached snapshot after a memory write.
func (c *Client) Invalidate(ctx context.Context, wormID string) {
	if err := c.rdb.Del(ctx, statsKeyPrefix+wormID).Err(); err != nil {
		c.logger.Warn("stats cache invalidate failed",
			zap.String("worm", wormID),
			zap.Error(err))
	}
}
