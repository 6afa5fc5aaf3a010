package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wormworks/agentic-worm/internal/embedding"
)

const (
	// spatialMergeRadius is how close an experience must be to an existing
	// spatial memory to update it instead of creating a new one.
	spatialMergeRadius = 20.0

	// retrievalRadius bounds location-scoped retrieval queries.
	retrievalRadius = 50.0

	// retrievalWindow bounds how far back relevant-memory retrieval looks.
	retrievalWindow = 30 * 24 * time.Hour
)

// Manager coordinates storage, retrieval and consolidation across the four
// memory kinds for every worm in the simulation.
type Manager struct {
	store    Store
	embedder embedding.Provider
	events   Events     // optional
	cache    StatsCache // optional
	logger   *zap.Logger

	consolidationEnabled  bool
	consolidationInterval time.Duration

	mu                sync.Mutex
	lastConsolidation map[string]time.Time
	consolidating     map[string]bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithEvents attaches an event publisher.
func WithEvents(ev Events) Option {
	return func(m *Manager) { m.events = ev }
}

// WithStatsCache attaches a stats cache.
func WithStatsCache(c StatsCache) Option {
	return func(m *Manager) { m.cache = c }
}

// WithConsolidation enables automatic consolidation at the given interval.
func WithConsolidation(interval time.Duration) Option {
	return func(m *Manager) {
		m.consolidationEnabled = true
		m.consolidationInterval = interval
	}
}

// NewManager creates a memory manager on top of a store and an embedder.
func NewManager(store Store, embedder embedding.Provider, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:                 store,
		embedder:              embedder,
		logger:                logger,
		consolidationInterval: 24 * time.Hour,
		lastConsolidation:     make(map[string]time.Time),
		consolidating:         make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ping verifies the underlying store connection.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// RecordExperience stores a new episodic memory, folds it into spatial
// memory, and schedules consolidation when the worm's interval has elapsed.
// Returns the experience ID.
func (m *Manager) RecordExperience(ctx context.Context, exp *Experience) (string, error) {
	if exp.WormID == "" {
		return "", errors.New("memory: experience requires a worm id")
	}
	if exp.ID == "" {
		exp.ID = uuid.New().String()
	}
	if exp.Timestamp.IsZero() {
		exp.Timestamp = time.Now().UTC()
	}
	if exp.Duration <= 0 {
		exp.Duration = 1.0
	}
	exp.Importance = experienceImportance(exp.Outcome, exp.FitnessChange)

	vec := m.embedText(ctx, strings.Join(append([]string{exp.Goal, string(exp.Outcome)}, exp.Tags...), " "))

	id, err := m.store.PutExperience(ctx, exp, vec)
	if err != nil {
		return "", fmt.Errorf("record experience: %w", err)
	}

	if err := m.updateSpatialMemory(ctx, exp); err != nil {
		// Spatial aggregation is derived data; the experience itself landed.
		m.logger.Warn("spatial memory update failed",
			zap.String("worm", exp.WormID),
			zap.Error(err))
	}

	m.invalidateStats(ctx, exp.WormID)
	m.publish(ctx, exp.WormID, "experience_recorded", map[string]any{
		"experience_id": id,
		"goal":          exp.Goal,
		"outcome":       string(exp.Outcome),
	})

	if m.consolidationEnabled && m.consolidationDue(exp.WormID) {
		go m.runScheduledConsolidation(exp.WormID)
	}

	m.logger.Debug("experience recorded",
		zap.String("worm", exp.WormID),
		zap.String("experience", id),
		zap.String("outcome", string(exp.Outcome)),
		zap.Float64("importance", exp.Importance))
	return id, nil
}

// experienceImportance scores how much an experience matters for learning.
// Failures are nearly as important as successes.
func experienceImportance(outcome Outcome, fitnessChange float64) float64 {
	importance := 0.5
	switch outcome {
	case OutcomeSuccess:
		importance += 0.3
	case OutcomeFailure:
		importance += 0.2
	}
	delta := fitnessChange
	if delta < 0 {
		delta = -delta
	}
	if delta > 0.2 {
		delta = 0.2
	}
	return clamp01(importance + delta)
}

// updateSpatialMemory merges an experience into the nearest spatial memory
// within spatialMergeRadius, or creates a new region record.
func (m *Manager) updateSpatialMemory(ctx context.Context, exp *Experience) error {
	nearby, err := m.store.SpatialNear(ctx, exp.WormID, exp.Location, spatialMergeRadius)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var sm SpatialMemory
	if len(nearby) > 0 {
		sm = nearby[0]
		sm.VisitCount++
		sm.LastVisited = now
		sm.TotalTimeSpent += exp.Duration
		switch exp.Outcome {
		case OutcomeSuccess:
			sm.FoodFoundCount++
		case OutcomeFailure:
			sm.ObstaclesEncountered++
		}
		sm.SuccessRate = clamp01(float64(sm.FoodFoundCount) / float64(sm.VisitCount))
	} else {
		sm = SpatialMemory{
			ID:           uuid.New().String(),
			WormID:       exp.WormID,
			Coordinates:  exp.Location,
			RegionType:   regionTypeFor(exp.Outcome),
			VisitCount:   1,
			FirstVisited: now,
			LastVisited:  now,
			Tags:         spatialTags(exp.Outcome),
		}
		sm.TotalTimeSpent = exp.Duration
		if exp.Outcome == OutcomeSuccess {
			sm.FoodFoundCount = 1
			sm.SuccessRate = 1.0
		} else if exp.Outcome == OutcomeFailure {
			sm.ObstaclesEncountered = 1
		}
	}

	vec := m.embedText(ctx, sm.RegionType+" "+strings.Join(sm.Tags, " "))
	_, err = m.store.PutSpatialMemory(ctx, &sm, vec)
	return err
}

func regionTypeFor(outcome Outcome) string {
	switch outcome {
	case OutcomeSuccess:
		return "food_rich"
	case OutcomeFailure:
		return "obstacle"
	default:
		return "neutral"
	}
}

func spatialTags(outcome Outcome) []string {
	tags := []string{"auto_generated"}
	switch outcome {
	case OutcomeSuccess:
		tags = append(tags, "successful_location")
	case OutcomeFailure:
		tags = append(tags, "challenging_location")
	}
	return tags
}

// RetrieveRelevant returns memories relevant to the worm's current situation,
// grouped by kind.
func (m *Manager) RetrieveRelevant(ctx context.Context, wormID string, loc Location, goal, context_ string, kinds []Kind, limit int) (map[Kind][]Result, error) {
	if len(kinds) == 0 {
		kinds = Kinds()
	}
	if limit <= 0 {
		limit = 10
	}

	since := time.Now().Add(-retrievalWindow)
	text := strings.TrimSpace(goal + " " + context_)
	vec := m.embedText(ctx, text)

	results := make(map[Kind][]Result, len(kinds))
	total := 0
	for _, kind := range kinds {
		q := Query{
			Kinds:          []Kind{kind},
			Text:           text,
			Location:       &loc,
			LocationRadius: retrievalRadius,
			Since:          &since,
			WormID:         wormID,
			Limit:          limit,
		}
		rs, err := m.store.Search(ctx, kind, q, vec)
		if err != nil {
			return nil, fmt.Errorf("retrieve %s memories: %w", kind, err)
		}
		results[kind] = rs
		total += len(rs)
	}

	m.logger.Debug("retrieved relevant memories",
		zap.String("worm", wormID),
		zap.String("goal", goal),
		zap.Int("total", total))
	return results, nil
}

// RecentExperiences returns the worm's experiences newer than since,
// newest first.
func (m *Manager) RecentExperiences(ctx context.Context, wormID string, since time.Time, limit int) ([]Experience, error) {
	if since.IsZero() {
		since = time.Now().Add(-retrievalWindow)
	}
	if limit <= 0 {
		limit = 50
	}
	exps, err := m.store.RecentExperiences(ctx, wormID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent experiences: %w", err)
	}
	return exps, nil
}

// Notify publishes a worm lifecycle event on the event stream, if one is
// attached.
func (m *Manager) Notify(ctx context.Context, wormID, eventType string, payload map[string]any) {
	m.publish(ctx, wormID, eventType, payload)
}

// Query runs an arbitrary multi-kind memory query.
func (m *Manager) Query(ctx context.Context, q Query) ([]Result, error) {
	kinds := q.Kinds
	if len(kinds) == 0 {
		kinds = Kinds()
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	vec := m.embedText(ctx, q.Text)

	var all []Result
	for _, kind := range kinds {
		rs, err := m.store.Search(ctx, kind, q, vec)
		if err != nil {
			return nil, fmt.Errorf("query %s memories: %w", kind, err)
		}
		all = append(all, rs...)
	}
	// Rank across kinds before cutting to the limit, so the best matches
	// survive regardless of which kind produced them.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Relevance > all[j].Relevance
	})
	if len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, nil
}

// SpatialContext aggregates what the worm knows about the area around loc.
func (m *Manager) SpatialContext(ctx context.Context, wormID string, loc Location, radius float64) (*SpatialContext, error) {
	if radius <= 0 {
		radius = retrievalRadius
	}
	nearby, err := m.store.SpatialNear(ctx, wormID, loc, radius)
	if err != nil {
		return nil, fmt.Errorf("spatial context: %w", err)
	}

	sc := &SpatialContext{RegionType: "unknown", Recommendations: []string{}}
	if len(nearby) == 0 {
		return sc, nil
	}

	totalVisits := 0
	weightedSuccess := 0.0
	regionVisits := make(map[string]int)
	for _, sm := range nearby {
		totalVisits += sm.VisitCount
		weightedSuccess += sm.SuccessRate * float64(sm.VisitCount)
		regionVisits[sm.RegionType] += sm.VisitCount
	}
	if totalVisits > 0 {
		sc.SuccessRate = clamp01(weightedSuccess / float64(totalVisits))
	}
	sc.IsFamiliar = totalVisits > 0
	sc.VisitCount = totalVisits
	sc.NearbyLocations = len(nearby)

	best := 0
	for region, visits := range regionVisits {
		if visits > best {
			best = visits
			sc.RegionType = region
		}
	}

	if sc.SuccessRate > 0.7 {
		sc.Recommendations = append(sc.Recommendations, "This area has been successful before")
	} else if sc.SuccessRate < 0.3 {
		sc.Recommendations = append(sc.Recommendations, "This area has been challenging")
	}
	if totalVisits < 3 {
		sc.Recommendations = append(sc.Recommendations, "Limited experience in this area")
	}
	return sc, nil
}

// BestStrategies returns the worm's best strategies for a goal, ordered by
// success rate then usage.
func (m *Manager) BestStrategies(ctx context.Context, wormID, goal string, limit int) ([]Strategy, error) {
	if limit <= 0 {
		limit = 3
	}
	// Over-fetch so goal filtering still leaves enough candidates.
	candidates, err := m.store.Strategies(ctx, wormID, limit*4)
	if err != nil {
		return nil, fmt.Errorf("best strategies: %w", err)
	}

	keywords := tokenize(goal)
	var matched []Strategy
	for _, s := range candidates {
		if len(keywords) == 0 || textSimilarity(keywords, s.Name+" "+s.Description) > 0 {
			matched = append(matched, s)
		}
	}
	rankStrategies(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// CreateStrategy stores a new procedural memory. Returns the strategy ID.
func (m *Manager) CreateStrategy(ctx context.Context, strat *Strategy) (string, error) {
	if strat.WormID == "" || strat.Name == "" {
		return "", errors.New("memory: strategy requires a worm id and name")
	}
	now := time.Now().UTC()
	if strat.ID == "" {
		strat.ID = uuid.New().String()
	}
	strat.Created = now
	strat.LastUsed = now
	strat.LastUpdated = now
	if strat.Importance == 0 {
		strat.Importance = 0.5
	}

	vec := m.embedText(ctx, strat.Name+" "+strat.Description+" "+strings.Join(strat.Tags, " "))
	id, err := m.store.PutStrategy(ctx, strat, vec)
	if err != nil {
		return "", fmt.Errorf("create strategy: %w", err)
	}

	m.invalidateStats(ctx, strat.WormID)
	m.logger.Info("strategy created",
		zap.String("worm", strat.WormID),
		zap.String("strategy", id),
		zap.String("name", strat.Name))
	return id, nil
}

// RecordStrategyUse updates a strategy's performance counters after a run.
func (m *Manager) RecordStrategyUse(ctx context.Context, wormID, name string, success bool, fitnessGain float64) error {
	strat, err := m.store.StrategyByName(ctx, wormID, name)
	if err != nil {
		return fmt.Errorf("record strategy use: %w", err)
	}

	prevUses := float64(strat.UsageCount)
	strat.UsageCount++
	if success {
		strat.SuccessCount++
	} else {
		strat.FailureCount++
	}
	strat.SuccessRate = clamp01(float64(strat.SuccessCount) / float64(strat.UsageCount))
	// Rolling mean over all uses.
	strat.AverageFitnessGain = (strat.AverageFitnessGain*prevUses + fitnessGain) / float64(strat.UsageCount)
	now := time.Now().UTC()
	strat.LastUsed = now
	strat.LastUpdated = now

	if _, err := m.store.PutStrategy(ctx, strat, nil); err != nil {
		return fmt.Errorf("record strategy use: %w", err)
	}
	m.invalidateStats(ctx, wormID)
	return nil
}

// embedText returns an embedding for text, or nil when text is empty or the
// provider fails. Retrieval degrades to recency ordering on nil vectors.
func (m *Manager) embedText(ctx context.Context, text string) []float32 {
	text = strings.TrimSpace(text)
	if text == "" || m.embedder == nil {
		return nil
	}
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		m.logger.Warn("embedding failed", zap.Error(err))
		return nil
	}
	return vec
}

func (m *Manager) publish(ctx context.Context, wormID, eventType string, payload map[string]any) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, wormID, eventType, payload); err != nil {
		m.logger.Warn("event publish failed",
			zap.String("type", eventType),
			zap.Error(err))
	}
}

func (m *Manager) invalidateStats(ctx context.Context, wormID string) {
	if m.cache != nil {
		m.cache.Invalidate(ctx, wormID)
	}
}
