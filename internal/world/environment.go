package world

import (
	"math/rand"
	"sync"

	"github.com/wormworks/agentic-worm/internal/memory"
)

// FoodSource is a consumable patch emitting a chemical gradient.
type FoodSource struct {
	Position memory.Location `json:"position"`
	Amount   float64         `json:"amount"`
}

// Obstacle is a circular region the worm cannot pass through.
type Obstacle struct {
	Position memory.Location `json:"position"`
	Radius   float64         `json:"radius"`
}

// Environment is the 2D arena with food sources and obstacles.
type Environment struct {
	mu        sync.RWMutex
	width     float64
	height    float64
	food      []FoodSource
	obstacles []Obstacle
	rng       *rand.Rand
}

// EnvironmentSnapshot is a read-only view for the API and dashboard.
type EnvironmentSnapshot struct {
	Width     float64      `json:"width"`
	Height    float64      `json:"height"`
	Food      []FoodSource `json:"food_sources"`
	Obstacles []Obstacle   `json:"obstacles"`
}

// NewEnvironment builds an arena with randomly placed food and obstacles.
// A fixed seed gives reproducible demo runs.
func NewEnvironment(width, height float64, foodCount, obstacleCount int, seed int64) *Environment {
	env := &Environment{
		width:  width,
		height: height,
		rng:    rand.New(rand.NewSource(seed)),
	}
	for i := 0; i < foodCount; i++ {
		env.food = append(env.food, env.randomFood())
	}
	for i := 0; i < obstacleCount; i++ {
		env.obstacles = append(env.obstacles, Obstacle{
			Position: env.randomPoint(),
			Radius:   3 + env.rng.Float64()*5,
		})
	}
	return env
}

func (e *Environment) randomPoint() memory.Location {
	return memory.Location{
		X: e.rng.Float64() * e.width,
		Y: e.rng.Float64() * e.height,
	}
}

func (e *Environment) randomFood() FoodSource {
	return FoodSource{
		Position: e.randomPoint(),
		Amount:   0.5 + e.rng.Float64()*0.5,
	}
}

// Gradient samples the summed chemical concentration at loc. Each food source
// contributes its amount with inverse-square falloff.
func (e *Environment) Gradient(loc memory.Location) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var total float64
	for _, f := range e.food {
		d := loc.Distance(f.Position)
		total += f.Amount / (1 + d*d)
	}
	return total
}

// ClosestFood returns the nearest food source and its distance, or nil when
// the arena has no food.
func (e *Environment) ClosestFood(loc memory.Location) (*FoodSource, float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var best *FoodSource
	bestDist := 0.0
	for i := range e.food {
		d := loc.Distance(e.food[i].Position)
		if best == nil || d < bestDist {
			f := e.food[i]
			best = &f
			bestDist = d
		}
	}
	return best, bestDist
}

// Consume eats the nearest food source within radius, returning the energy
// gained. A consumed source respawns elsewhere so the arena never starves.
func (e *Environment) Consume(loc memory.Location, radius float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.food {
		if loc.Distance(e.food[i].Position) <= radius {
			amount := e.food[i].Amount
			e.food[i] = e.randomFood()
			return amount
		}
	}
	return 0
}

// Blocked reports whether loc is inside an obstacle.
func (e *Environment) Blocked(loc memory.Location) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, o := range e.obstacles {
		if loc.Distance(o.Position) <= o.Radius {
			return true
		}
	}
	return false
}

// Clamp keeps loc inside the arena bounds.
func (e *Environment) Clamp(loc memory.Location) memory.Location {
	if loc.X < 0 {
		loc.X = 0
	} else if loc.X > e.width {
		loc.X = e.width
	}
	if loc.Y < 0 {
		loc.Y = 0
	} else if loc.Y > e.height {
		loc.Y = e.height
	}
	return loc
}

// Snapshot returns a copy of the arena state.
func (e *Environment) Snapshot() EnvironmentSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := EnvironmentSnapshot{
		Width:     e.width,
		Height:    e.height,
		Food:      make([]FoodSource, len(e.food)),
		Obstacles: make([]Obstacle, len(e.obstacles)),
	}
	copy(snap.Food, e.food)
	copy(snap.Obstacles, e.obstacles)
	return snap
}
