package memory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a document does not exist.
var ErrNotFound = errors.New("memory: not found")

// Counts holds raw per-worm collection counts used to build Stats.
type Counts struct {
	Episodic          int
	Spatial           int
	Semantic          int
	Procedural        int
	Successes         int
	DistinctLocations int
}

// Store is the persistence boundary for the four memory collections.
// The production implementation lives in the arango package.
type Store interface {
	Ping(ctx context.Context) error

	PutExperience(ctx context.Context, exp *Experience, embedding []float32) (string, error)
	PutSpatialMemory(ctx context.Context, sm *SpatialMemory, embedding []float32) (string, error)
	PutKnowledgeFact(ctx context.Context, fact *KnowledgeFact, embedding []float32) (string, error)
	PutStrategy(ctx context.Context, strat *Strategy, embedding []float32) (string, error)

	// SpatialNear returns spatial memories within radius of loc, closest first.
	SpatialNear(ctx context.Context, wormID string, loc Location, radius float64) ([]SpatialMemory, error)

	// Search runs a single-kind query; vector may be nil when no query text
	// was given, in which case results are ordered by recency.
	Search(ctx context.Context, kind Kind, q Query, vector []float32) ([]Result, error)

	// RecentExperiences returns experiences newer than since, newest first.
	RecentExperiences(ctx context.Context, wormID string, since time.Time, limit int) ([]Experience, error)

	// Strategies returns a worm's strategies ordered by success rate and usage.
	Strategies(ctx context.Context, wormID string, limit int) ([]Strategy, error)

	// StrategyByName looks up a strategy by its unique (worm, name) pair.
	// Returns ErrNotFound when absent.
	StrategyByName(ctx context.Context, wormID, name string) (*Strategy, error)

	// FactsByTag returns knowledge facts of a type carrying the given tag.
	FactsByTag(ctx context.Context, wormID, factType, tag string) ([]KnowledgeFact, error)

	Counts(ctx context.Context, wormID string) (Counts, error)

	// LinkFactToExperiences records which experiences support a fact.
	LinkFactToExperiences(ctx context.Context, factID string, experienceIDs []string) error
	// LinkStrategyToExperiences records which experiences produced a strategy.
	LinkStrategyToExperiences(ctx context.Context, strategyID string, experienceIDs []string) error
}

// Events receives worm lifecycle notifications. Implemented by the cache
// package on Redis Streams; a nil Events on the Manager disables publishing.
type Events interface {
	Publish(ctx context.Context, wormID, eventType string, payload map[string]any) error
}

// StatsCache is a read-through cache for Stats snapshots.
type StatsCache interface {
	GetStats(ctx context.Context, wormID string) (*Stats, bool)
	PutStats(ctx context.Context, wormID string, stats *Stats)
	Invalidate(ctx context.Context, wormID string)
}
