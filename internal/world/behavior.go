package world

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wormworks/agentic-worm/internal/memory"
)

const (
	stepSize        = 1.5
	eatRadius       = 2.0
	senseRadius     = 25.0
	energyPerStep   = 0.004
	lowEnergy       = 0.5
	gradientTrigger = 0.01

	// explorationRecordEvery spaces out uneventful experience records so
	// exploration does not flood the episodic store.
	explorationRecordEvery = 20
)

// Sink receives per-tick observations, implemented by the metrics package.
type Sink interface {
	ObserveTick(snapshot WormSnapshot, behavior string, confidence float64)
}

// Engine runs one worm's perceive-decide-act-learn cycle on every world tick.
type Engine struct {
	worm   *Worm
	env    *Environment
	mem    *memory.Manager
	sink   Sink
	logger *zap.Logger
	rng    *rand.Rand

	mu             sync.Mutex
	sinceLastTrace int
}

// NewEngine wires a worm to its environment and memory.
func NewEngine(worm *Worm, env *Environment, mem *memory.Manager, sink Sink, logger *zap.Logger) *Engine {
	return &Engine{
		worm:   worm,
		env:    env,
		mem:    mem,
		sink:   sink,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// percept is what the worm senses in one tick.
type percept struct {
	gradient     float64
	foodDistance float64
	foodBearing  float64
	blockedAhead bool
	energy       float64
}

// decision is the outcome of the cognition stage.
type decision struct {
	behavior   string
	confidence float64
	motors     map[string]float64
	usedMemory bool
	strategy   string
}

// OnTick implements ClockListener.
func (e *Engine) OnTick(t Tick) {
	snap := e.worm.Snapshot()
	if !snap.Alive {
		return
	}

	p := e.perceive(snap)
	d := e.decide(snap, p)
	outcome, fitnessDelta, energyDelta := e.act(snap, p, d)
	e.learn(snap, d, outcome, fitnessDelta, energyDelta)

	if e.sink != nil {
		e.sink.ObserveTick(e.worm.Snapshot(), d.behavior, d.confidence)
	}
}

func (e *Engine) perceive(snap WormSnapshot) percept {
	p := percept{
		gradient: e.env.Gradient(snap.Position),
		energy:   snap.Energy,
	}
	if food, dist := e.env.ClosestFood(snap.Position); food != nil && dist <= senseRadius {
		p.foodDistance = dist
		p.foodBearing = math.Atan2(food.Position.Y-snap.Position.Y, food.Position.X-snap.Position.X)
	} else {
		p.foodDistance = -1
	}
	ahead := memory.Location{
		X: snap.Position.X + math.Cos(snap.Heading)*stepSize*2,
		Y: snap.Position.Y + math.Sin(snap.Heading)*stepSize*2,
	}
	p.blockedAhead = e.env.Blocked(ahead)
	return p
}

// decide picks a behavior and motor activations, consulting memory when the
// area or goal is already known. Confidence starts at 0.6, rises to 0.8 in
// familiar territory and 0.9 when a proven strategy applies.
func (e *Engine) decide(snap WormSnapshot, p percept) decision {
	d := decision{confidence: 0.6}

	switch {
	case p.blockedAhead:
		d.behavior = "avoid_obstacle"
	case p.energy < lowEnergy || p.gradient > gradientTrigger || p.foodDistance >= 0:
		d.behavior = "find_food"
	default:
		d.behavior = "explore"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if sc, err := e.mem.SpatialContext(ctx, snap.ID, snap.Position, senseRadius); err == nil && sc.IsFamiliar {
		d.confidence = 0.8
		d.usedMemory = true
		// A known bad area overrides the default urge to linger.
		if sc.SuccessRate < 0.3 && d.behavior == "explore" {
			d.behavior = "find_food"
		}
	}
	if strategies, err := e.mem.BestStrategies(ctx, snap.ID, d.behavior, 1); err == nil && len(strategies) > 0 {
		if strategies[0].SuccessRate > 0.6 {
			d.confidence = 0.9
			d.usedMemory = true
			d.strategy = strategies[0].Name
		}
	}

	d.motors = motorCommands(d.behavior, d.confidence)
	e.worm.SetGoal(d.behavior)
	return d
}

// motorCommands maps a behavior onto dorsal/ventral muscle activations.
func motorCommands(behavior string, confidence float64) map[string]float64 {
	switch behavior {
	case "find_food":
		return map[string]float64{
			"dorsal":  0.6 + 0.2*confidence,
			"ventral": 0.4 + 0.1*confidence,
		}
	case "explore":
		return map[string]float64{"dorsal": 0.5, "ventral": 0.5}
	default:
		return map[string]float64{"dorsal": 0.3, "ventral": 0.3}
	}
}

// act moves the worm when the decision is confident enough, and returns the
// outcome with the fitness and energy deltas of this tick.
func (e *Engine) act(snap WormSnapshot, p percept, d decision) (memory.Outcome, float64, float64) {
	outcome := memory.OutcomePartial
	fitnessDelta := 0.0
	energyDelta := -energyPerStep

	if d.confidence <= 0.5 {
		// Not confident enough to move; idle costs less energy.
		energyDelta = -energyPerStep / 2
		e.applyDeltas(outcome, fitnessDelta, energyDelta, false, false)
		return outcome, fitnessDelta, energyDelta
	}

	heading := snap.Heading
	switch d.behavior {
	case "avoid_obstacle":
		heading += math.Pi/2 + e.rng.Float64()*math.Pi/2
	case "find_food":
		if p.foodDistance >= 0 {
			heading = p.foodBearing
		} else {
			// Climb the gradient by wandering with a bias.
			heading += (e.rng.Float64() - 0.5) * math.Pi / 4
		}
	default:
		heading += (e.rng.Float64() - 0.5) * math.Pi / 2
	}

	speed := stepSize * (d.motors["dorsal"] + d.motors["ventral"]) / 2
	next := e.env.Clamp(memory.Location{
		X: snap.Position.X + math.Cos(heading)*speed,
		Y: snap.Position.Y + math.Sin(heading)*speed,
	})

	collided := false
	if e.env.Blocked(next) {
		collided = true
		outcome = memory.OutcomeFailure
		fitnessDelta = -0.1
		next = snap.Position
	}

	ate := false
	if gained := e.env.Consume(next, eatRadius); gained > 0 {
		ate = true
		outcome = memory.OutcomeSuccess
		fitnessDelta = 0.5
		energyDelta += gained
	}

	e.worm.apply(func(w *Worm) {
		w.position = next
		w.heading = heading
	})
	e.applyDeltas(outcome, fitnessDelta, energyDelta, ate, collided)
	return outcome, fitnessDelta, energyDelta
}

func (e *Engine) applyDeltas(outcome memory.Outcome, fitnessDelta, energyDelta float64, ate, collided bool) {
	e.worm.apply(func(w *Worm) {
		w.steps++
		w.fitness += fitnessDelta
		w.energy += energyDelta
		if w.energy > 1 {
			w.energy = 1
		}
		if w.energy < 0 {
			w.energy = 0
			w.health -= 0.01
		}
		if w.health <= 0 {
			w.alive = false
		}
		if ate {
			w.foodEaten++
		}
		if collided {
			w.collisions++
		}
	})
}

// learn records the tick as an episodic memory. Uneventful exploration is
// sampled so the store holds signal, not noise.
func (e *Engine) learn(snap WormSnapshot, d decision, outcome memory.Outcome, fitnessDelta, energyDelta float64) {
	notable := outcome != memory.OutcomePartial
	if !notable {
		e.mu.Lock()
		e.sinceLastTrace++
		if e.sinceLastTrace >= explorationRecordEvery {
			e.sinceLastTrace = 0
			notable = true
		}
		e.mu.Unlock()
	}
	if !notable {
		return
	}

	exp := &memory.Experience{
		WormID:   snap.ID,
		Location: snap.Position,
		Goal:     d.behavior,
		EnvironmentState: map[string]any{
			"energy":  snap.Energy,
			"fitness": snap.Fitness,
		},
		ActionsTaken: []memory.Action{
			{Type: "behavior", Name: d.behavior},
		},
		MotorCommands: d.motors,
		Outcome:       outcome,
		FitnessChange: fitnessDelta,
		EnergyChange:  energyDelta,
		Tags:          experienceTags(d),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := e.mem.RecordExperience(ctx, exp); err != nil {
			e.logger.Warn("experience record failed",
				zap.String("worm", snap.ID),
				zap.Error(err))
			return
		}
		if d.strategy != "" {
			success := outcome == memory.OutcomeSuccess
			if err := e.mem.RecordStrategyUse(ctx, snap.ID, d.strategy, success, fitnessDelta); err != nil {
				e.logger.Debug("strategy use record failed",
					zap.String("strategy", d.strategy),
					zap.Error(err))
			}
		}
	}()
}

func experienceTags(d decision) []string {
	tags := []string{d.behavior}
	if d.usedMemory {
		tags = append(tags, "memory_guided")
	}
	return tags
}
