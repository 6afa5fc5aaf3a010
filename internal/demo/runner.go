// Package demo runs scripted simulation scenarios that exercise the memory
// system end to end and report what the worm learned.
package demo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wormworks/agentic-worm/internal/memory"
	"github.com/wormworks/agentic-worm/internal/world"
)

// ErrBusy is returned when a scenario is already running.
var ErrBusy = errors.New("demo: a scenario is already running")

// ErrUnknownScenario is returned for scenario names Run does not know.
var ErrUnknownScenario = errors.New("demo: unknown scenario")

// Scenario names accepted by Run.
const (
	ScenarioBasic             = "basic"
	ScenarioFoodSeeking       = "food_seeking"
	ScenarioObstacleAvoidance = "obstacle_avoidance"
	ScenarioLearning          = "learning"
)

// Scenarios lists the available scenario names.
func Scenarios() []string {
	return []string{ScenarioBasic, ScenarioFoodSeeking, ScenarioObstacleAvoidance, ScenarioLearning}
}

// scenarioSpec shapes the arena for a scenario.
type scenarioSpec struct {
	food        int
	obstacles   int
	consolidate bool // run a consolidation pass when the scenario ends
}

func specFor(scenario string) (scenarioSpec, error) {
	switch scenario {
	case ScenarioBasic:
		return scenarioSpec{food: 3, obstacles: 0}, nil
	case ScenarioFoodSeeking:
		return scenarioSpec{food: 10, obstacles: 2}, nil
	case ScenarioObstacleAvoidance:
		return scenarioSpec{food: 4, obstacles: 8}, nil
	case ScenarioLearning:
		return scenarioSpec{food: 6, obstacles: 3, consolidate: true}, nil
	default:
		return scenarioSpec{}, fmt.Errorf("%w: %q", ErrUnknownScenario, scenario)
	}
}

// Report summarizes a finished scenario run.
type Report struct {
	Scenario  string             `json:"scenario"`
	WormID    string             `json:"worm_id"`
	Duration  time.Duration      `json:"duration"`
	Worm      world.WormSnapshot `json:"worm"`
	Stats     *memory.Stats      `json:"memory_stats,omitempty"`
	Highlight string             `json:"highlight"`
}

// Status describes what the runner is doing right now.
type Status struct {
	Running  bool   `json:"running"`
	Scenario string `json:"scenario,omitempty"`
	WormID   string `json:"worm_id,omitempty"`
	Started  string `json:"started,omitempty"`
}

// WormRegistry receives the IDs of worms the runner creates, so background
// consolidation can pick them up.
type WormRegistry interface {
	AddWorm(id string)
}

// Runner executes one scenario at a time against the shared memory manager.
type Runner struct {
	mem      *memory.Manager
	sink     world.Sink
	registry WormRegistry // optional
	tick     time.Duration
	speed    float64
	logger   *zap.Logger

	mu       sync.Mutex
	running  bool
	scenario string
	wormID   string
	started  time.Time
}

// NewRunner creates a scenario runner. sink may be nil.
func NewRunner(mem *memory.Manager, sink world.Sink, tick time.Duration, speed float64, logger *zap.Logger) *Runner {
	if tick <= 0 {
		tick = 250 * time.Millisecond
	}
	if speed <= 0 {
		speed = 1.0
	}
	return &Runner{
		mem:    mem,
		sink:   sink,
		tick:   tick,
		speed:  speed,
		logger: logger,
	}
}

// SetRegistry wires a registry that is told about every worm the runner
// creates. Call before Run.
func (r *Runner) SetRegistry(reg WormRegistry) {
	r.registry = reg
}

// Status reports whether a scenario is in flight.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{Running: r.running}
	if r.running {
		st.Scenario = r.scenario
		st.WormID = r.wormID
		st.Started = r.started.UTC().Format(time.RFC3339)
	}
	return st
}

// Run executes a scenario for the given duration and returns a report.
// Only one scenario runs at a time.
func (r *Runner) Run(ctx context.Context, scenario string, duration time.Duration) (*Report, error) {
	spec, err := specFor(scenario)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		duration = 30 * time.Second
	}

	wormID := "demo-" + uuid.New().String()[:8]
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	r.running = true
	r.scenario = scenario
	r.wormID = wormID
	r.started = time.Now()
	r.mu.Unlock()

	// Register only once the run owns the slot, so rejected runs leave no trace.
	if r.registry != nil {
		r.registry.AddWorm(wormID)
	}
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	env := world.NewEnvironment(100, 100, spec.food, spec.obstacles, time.Now().UnixNano())
	worm := world.NewWorm(wormID, memory.Location{X: 50, Y: 50})
	engine := world.NewEngine(worm, env, r.mem, r.sink, r.logger)

	clock := world.NewClock(r.tick, r.speed, r.logger)
	clock.AddListener(engine)
	clock.Start()

	r.mem.Notify(ctx, wormID, "demo_started", map[string]any{"scenario": scenario})
	r.logger.Info("demo scenario started",
		zap.String("scenario", scenario),
		zap.String("worm", wormID),
		zap.Duration("duration", duration))

	select {
	case <-ctx.Done():
		clock.Stop()
		return nil, ctx.Err()
	case <-time.After(duration):
	}
	clock.Stop()

	report := &Report{
		Scenario: scenario,
		WormID:   wormID,
		Duration: duration,
		Worm:     worm.Snapshot(),
	}

	if spec.consolidate {
		if _, err := r.mem.Consolidate(ctx, wormID); err != nil {
			r.logger.Warn("demo consolidation failed",
				zap.String("worm", wormID),
				zap.Error(err))
		}
	}
	if stats, err := r.mem.Stats(ctx, wormID); err == nil {
		report.Stats = stats
	}
	report.Highlight = highlight(report)

	r.mem.Notify(ctx, wormID, "demo_finished", map[string]any{
		"scenario":   scenario,
		"food_eaten": report.Worm.FoodEaten,
		"fitness":    report.Worm.Fitness,
	})
	r.logger.Info("demo scenario finished",
		zap.String("scenario", scenario),
		zap.String("worm", wormID),
		zap.Int("food_eaten", report.Worm.FoodEaten),
		zap.Float64("fitness", report.Worm.Fitness))
	return report, nil
}

func highlight(r *Report) string {
	switch {
	case r.Worm.FoodEaten > 0 && r.Stats != nil && r.Stats.KnowledgeFacts > 0:
		return fmt.Sprintf("Found food %d times and extracted %d knowledge facts",
			r.Worm.FoodEaten, r.Stats.KnowledgeFacts)
	case r.Worm.FoodEaten > 0:
		return fmt.Sprintf("Found food %d times over %d steps", r.Worm.FoodEaten, r.Worm.Steps)
	case r.Worm.Collisions > 0:
		return fmt.Sprintf("Survived %d obstacle collisions", r.Worm.Collisions)
	default:
		return fmt.Sprintf("Explored for %d steps", r.Worm.Steps)
	}
}
