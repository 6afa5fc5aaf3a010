package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/wormworks/agentic-worm/internal/world"
)

// seriesCapacity bounds the in-process history kept for the dashboard.
const seriesCapacity = 600

// Sample is one point in a worm's performance history.
type Sample struct {
	Time       time.Time `json:"time"`
	Fitness    float64   `json:"fitness"`
	Energy     float64   `json:"energy"`
	Health     float64   `json:"health"`
	Confidence float64   `json:"confidence"`
}

// Collector implements world.Sink. It keeps a ring buffer of samples per worm
// and feeds the Prometheus instruments.
type Collector struct {
	metrics *Metrics

	mu        sync.RWMutex
	series    map[string][]Sample
	decisions map[string]int
	goals     map[string]string
	switches  int
}

// NewCollector creates a collector feeding the given instruments.
func NewCollector(m *Metrics) *Collector {
	return &Collector{
		metrics:   m,
		series:    make(map[string][]Sample),
		decisions: make(map[string]int),
		goals:     make(map[string]string),
	}
}

// ObserveTick implements world.Sink.
func (c *Collector) ObserveTick(snap world.WormSnapshot, behavior string, confidence float64) {
	c.mu.Lock()
	s := append(c.series[snap.ID], Sample{
		Time:       time.Now().UTC(),
		Fitness:    snap.Fitness,
		Energy:     snap.Energy,
		Health:     snap.Health,
		Confidence: confidence,
	})
	if len(s) > seriesCapacity {
		s = s[len(s)-seriesCapacity:]
	}
	c.series[snap.ID] = s
	c.decisions[behavior]++
	if prev, ok := c.goals[snap.ID]; ok && prev != behavior {
		c.switches++
	}
	c.goals[snap.ID] = behavior
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.TicksProcessed.Inc()
		c.metrics.Decisions.WithLabelValues(behavior).Inc()
		c.metrics.WormFitness.WithLabelValues(snap.ID).Set(snap.Fitness)
		c.metrics.WormEnergy.WithLabelValues(snap.ID).Set(snap.Energy)
	}
}

// Worms returns the IDs of every worm observed so far, sorted.
func (c *Collector) Worms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.series))
	for id := range c.series {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Series returns up to limit recent samples for a worm, oldest first.
func (c *Collector) Series(wormID string, limit int) []Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.series[wormID]
	if limit > 0 && len(s) > limit {
		s = s[len(s)-limit:]
	}
	out := make([]Sample, len(s))
	copy(out, s)
	return out
}

// Summary aggregates decision counts and goal switches for the API.
type Summary struct {
	Decisions    map[string]int `json:"decisions"`
	GoalSwitches int            `json:"goal_switches"`
}

// Summarize returns a copy of the aggregate counters.
func (c *Collector) Summarize() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	decisions := make(map[string]int, len(c.decisions))
	for k, v := range c.decisions {
		decisions[k] = v
	}
	return Summary{Decisions: decisions, GoalSwitches: c.switches}
}
