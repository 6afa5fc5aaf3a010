package world

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wormworks/agentic-worm/internal/memory"
)

// Consolidator is a ClockListener that periodically folds each worm's recent
// experiences into semantic and procedural memory.
type Consolidator struct {
	interval time.Duration // world-time between passes
	mem      *memory.Manager
	logger   *zap.Logger

	mu      sync.Mutex
	lastRun time.Time
	wormIDs []string
}

// NewConsolidator creates a consolidation listener.
func NewConsolidator(interval time.Duration, mem *memory.Manager, logger *zap.Logger) *Consolidator {
	return &Consolidator{
		interval: interval,
		mem:      mem,
		logger:   logger,
	}
}

// SetWorms updates which worms get consolidated.
func (c *Consolidator) SetWorms(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wormIDs = ids
}

// AddWorm registers one worm for periodic consolidation.
func (c *Consolidator) AddWorm(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.wormIDs {
		if existing == id {
			return
		}
	}
	c.wormIDs = append(c.wormIDs, id)
}

// FireNow forces an immediate consolidation pass for all worms, bypassing
// the interval check. Returns how many passes succeeded.
func (c *Consolidator) FireNow() int {
	c.mu.Lock()
	worms := make([]string, len(c.wormIDs))
	copy(worms, c.wormIDs)
	c.lastRun = time.Time{}
	c.mu.Unlock()
	return c.run(worms)
}

// OnTick implements ClockListener.
func (c *Consolidator) OnTick(t Tick) {
	c.mu.Lock()
	if c.lastRun.IsZero() {
		c.lastRun = t.WorldTime
		c.mu.Unlock()
		return
	}
	if t.WorldTime.Sub(c.lastRun) < c.interval {
		c.mu.Unlock()
		return
	}
	c.lastRun = t.WorldTime
	worms := make([]string, len(c.wormIDs))
	copy(worms, c.wormIDs)
	c.mu.Unlock()

	c.run(worms)
}

func (c *Consolidator) run(worms []string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fired := 0
	for _, id := range worms {
		if _, err := c.mem.Consolidate(ctx, id); err != nil {
			c.logger.Warn("consolidation pass failed",
				zap.String("worm", id),
				zap.Error(err))
		} else {
			fired++
		}
	}
	return fired
}
