package world

import (
	"sync"

	"github.com/wormworks/agentic-worm/internal/memory"
)

// Worm holds the mutable state of one simulated worm.
type Worm struct {
	mu sync.RWMutex

	id       string
	position memory.Location
	heading  float64 // radians
	energy   float64 // 0..1
	fitness  float64
	health   float64 // 0..1
	goal     string
	alive    bool

	steps      int
	foodEaten  int
	collisions int
}

// WormSnapshot is a read-only view of a worm's state.
type WormSnapshot struct {
	ID         string          `json:"id"`
	Position   memory.Location `json:"position"`
	Heading    float64         `json:"heading"`
	Energy     float64         `json:"energy"`
	Fitness    float64         `json:"fitness"`
	Health     float64         `json:"health"`
	Goal       string          `json:"current_goal"`
	Alive      bool            `json:"alive"`
	Steps      int             `json:"steps"`
	FoodEaten  int             `json:"food_eaten"`
	Collisions int             `json:"collisions"`
}

// NewWorm creates a worm at the given starting position.
func NewWorm(id string, start memory.Location) *Worm {
	return &Worm{
		id:       id,
		position: start,
		energy:   1.0,
		health:   1.0,
		goal:     "explore",
		alive:    true,
	}
}

// ID returns the worm's identifier.
func (w *Worm) ID() string { return w.id }

// Snapshot returns a copy of the worm's current state.
func (w *Worm) Snapshot() WormSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WormSnapshot{
		ID:         w.id,
		Position:   w.position,
		Heading:    w.heading,
		Energy:     w.energy,
		Fitness:    w.fitness,
		Health:     w.health,
		Goal:       w.goal,
		Alive:      w.alive,
		Steps:      w.steps,
		FoodEaten:  w.foodEaten,
		Collisions: w.collisions,
	}
}

// Position returns the worm's current location.
func (w *Worm) Position() memory.Location {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.position
}

// Goal returns the worm's current goal.
func (w *Worm) Goal() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.goal
}

// SetGoal changes the worm's current goal.
func (w *Worm) SetGoal(goal string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.goal = goal
}

func (w *Worm) apply(update func(*Worm)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	update(w)
}
