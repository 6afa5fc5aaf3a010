// Package world simulates the environment the worm lives in and the
// perceive-decide-act loop that generates its experiences.
package world

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Tick is one beat of simulated time. Seq is monotonic from clock start;
// WorldTime advances by the wall interval times the speed multiplier.
type Tick struct {
	Seq       uint64
	WorldTime time.Time
}

// ClockListener receives world tick events.
type ClockListener interface {
	OnTick(t Tick)
}

// Clock drives the simulation with a configurable tick rate and time speed.
type Clock struct {
	interval time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	speed     float64 // time multiplier, 1.0 = realtime
	listeners []ClockListener
	worldTime time.Time
	seq       uint64
	cancel    context.CancelFunc
}

// NewClock creates a clock with the given tick interval and speed multiplier.
func NewClock(interval time.Duration, speed float64, logger *zap.Logger) *Clock {
	return &Clock{
		interval:  interval,
		speed:     speed,
		worldTime: time.Now(),
		logger:    logger,
	}
}

// AddListener registers a tick listener.
func (c *Clock) AddListener(l ClockListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// WorldTime returns the current simulated world time.
func (c *Clock) WorldTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.worldTime
}

// Ticks returns how many ticks have fired since the clock was created.
func (c *Clock) Ticks() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq
}

// SetSpeed changes the time multiplier.
func (c *Clock) SetSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = speed
}

// Start begins the tick loop in a background goroutine.
func (c *Clock) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	go c.loop(ctx)
	c.logger.Info("world clock started",
		zap.Duration("interval", c.interval),
		zap.Float64("speed", c.speed))
}

// Stop halts the tick loop.
func (c *Clock) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.logger.Info("world clock stopped")
	}
}

func (c *Clock) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Clock) tick() {
	c.mu.Lock()
	c.seq++
	c.worldTime = c.worldTime.Add(
		time.Duration(float64(c.interval) * c.speed),
	)
	t := Tick{Seq: c.seq, WorldTime: c.worldTime}
	listeners := make([]ClockListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnTick(t)
	}
}
