package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeStore is an in-memory Store for tests.
type fakeStore struct {
	mu          sync.Mutex
	experiences map[string]Experience
	spatial     map[string]SpatialMemory
	facts       map[string]KnowledgeFact
	strategies  map[string]Strategy
	factLinks   map[string][]string
	stratLinks  map[string][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		experiences: make(map[string]Experience),
		spatial:     make(map[string]SpatialMemory),
		facts:       make(map[string]KnowledgeFact),
		strategies:  make(map[string]Strategy),
		factLinks:   make(map[string][]string),
		stratLinks:  make(map[string][]string),
	}
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) PutExperience(ctx context.Context, exp *Experience, _ []float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.experiences[exp.ID] = *exp
	return exp.ID, nil
}

func (f *fakeStore) PutSpatialMemory(ctx context.Context, sm *SpatialMemory, _ []float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spatial[sm.ID] = *sm
	return sm.ID, nil
}

func (f *fakeStore) PutKnowledgeFact(ctx context.Context, fact *KnowledgeFact, _ []float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facts[fact.ID] = *fact
	return fact.ID, nil
}

func (f *fakeStore) PutStrategy(ctx context.Context, strat *Strategy, _ []float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strategies[strat.ID] = *strat
	return strat.ID, nil
}

func (f *fakeStore) SpatialNear(ctx context.Context, wormID string, loc Location, radius float64) ([]SpatialMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SpatialMemory
	for _, sm := range f.spatial {
		if sm.WormID == wormID && sm.Coordinates.Distance(loc) <= radius {
			out = append(out, sm)
		}
	}
	return out, nil
}

func (f *fakeStore) Search(ctx context.Context, kind Kind, q Query, _ []float32) ([]Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Result
	if kind == KindEpisodic {
		for _, exp := range f.experiences {
			if q.WormID == "" || exp.WormID == q.WormID {
				out = append(out, Result{Kind: kind, Relevance: exp.Importance, Document: map[string]any{"_key": exp.ID, "goal": exp.Goal}})
			}
		}
	}
	return out, nil
}

func (f *fakeStore) RecentExperiences(ctx context.Context, wormID string, since time.Time, limit int) ([]Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Experience
	for _, exp := range f.experiences {
		if exp.WormID == wormID && exp.Timestamp.After(since) {
			out = append(out, exp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) Strategies(ctx context.Context, wormID string, limit int) ([]Strategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Strategy
	for _, s := range f.strategies {
		if s.WormID == wormID {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) StrategyByName(ctx context.Context, wormID, name string) (*Strategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.strategies {
		if s.WormID == wormID && s.Name == name {
			cp := s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) FactsByTag(ctx context.Context, wormID, factType, tag string) ([]KnowledgeFact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []KnowledgeFact
	for _, fact := range f.facts {
		if fact.WormID != wormID || fact.FactType != factType {
			continue
		}
		for _, t := range fact.Tags {
			if t == tag {
				out = append(out, fact)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Counts(ctx context.Context, wormID string) (Counts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c Counts
	cells := make(map[string]bool)
	for _, exp := range f.experiences {
		if exp.WormID != wormID {
			continue
		}
		c.Episodic++
		if exp.Outcome == OutcomeSuccess {
			c.Successes++
		}
		cells[exp.Location.CellKey()] = true
	}
	c.DistinctLocations = len(cells)
	for _, sm := range f.spatial {
		if sm.WormID == wormID {
			c.Spatial++
		}
	}
	for _, fact := range f.facts {
		if fact.WormID == wormID {
			c.Semantic++
		}
	}
	for _, s := range f.strategies {
		if s.WormID == wormID {
			c.Procedural++
		}
	}
	return c, nil
}

func (f *fakeStore) LinkFactToExperiences(ctx context.Context, factID string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factLinks[factID] = append(f.factLinks[factID], ids...)
	return nil
}

func (f *fakeStore) LinkStrategyToExperiences(ctx context.Context, strategyID string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stratLinks[strategyID] = append(f.stratLinks[strategyID], ids...)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEvents) Publish(ctx context.Context, wormID, eventType string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakeEvents) has(eventType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == eventType {
			return true
		}
	}
	return false
}

func newTestManager(t *testing.T, store Store, opts ...Option) *Manager {
	t.Helper()
	return NewManager(store, nil, zap.NewNop(), opts...)
}

func TestRecordExperienceSetsDefaults(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	m := newTestManager(t, store, WithEvents(events))

	id, err := m.RecordExperience(context.Background(), &Experience{
		WormID:        "worm-1",
		Goal:          "find_food",
		Outcome:       OutcomeSuccess,
		FitnessChange: 0.5,
		Location:      Location{X: 10, Y: 20},
	})
	if err != nil {
		t.Fatalf("RecordExperience: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated experience id")
	}

	exp := store.experiences[id]
	if exp.Timestamp.IsZero() {
		t.Error("timestamp not defaulted")
	}
	if exp.Duration != 1.0 {
		t.Errorf("duration = %v, want 1.0", exp.Duration)
	}
	// success bonus 0.3 plus fitness delta capped at 0.2
	if exp.Importance != 1.0 {
		t.Errorf("importance = %v, want 1.0", exp.Importance)
	}
	if !events.has("experience_recorded") {
		t.Error("experience_recorded event not published")
	}
}

func TestRecordExperienceRequiresWormID(t *testing.T) {
	m := newTestManager(t, newFakeStore())
	if _, err := m.RecordExperience(context.Background(), &Experience{Goal: "g"}); err == nil {
		t.Fatal("expected error for missing worm id")
	}
}

func TestExperienceImportance(t *testing.T) {
	tests := []struct {
		outcome Outcome
		fitness float64
		want    float64
	}{
		{OutcomeSuccess, 0, 0.8},
		{OutcomeFailure, 0, 0.7},
		{OutcomePartial, 0, 0.5},
		{OutcomeSuccess, 0.1, 0.9},
		{OutcomeSuccess, -5.0, 1.0}, // delta capped at 0.2, sum clamped
		{OutcomePartial, 0.05, 0.55},
	}
	for _, tt := range tests {
		got := experienceImportance(tt.outcome, tt.fitness)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("experienceImportance(%s, %v) = %v, want %v", tt.outcome, tt.fitness, got, tt.want)
		}
	}
}

func TestSpatialMemoryMergesNearbyVisits(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		outcome := OutcomeSuccess
		if i == 2 {
			outcome = OutcomeFailure
		}
		// All within the merge radius of the first visit.
		_, err := m.RecordExperience(ctx, &Experience{
			WormID:   "worm-1",
			Goal:     "find_food",
			Outcome:  outcome,
			Location: Location{X: float64(i * 5), Y: 0},
		})
		if err != nil {
			t.Fatalf("RecordExperience: %v", err)
		}
	}

	if len(store.spatial) != 1 {
		t.Fatalf("spatial memories = %d, want 1 merged region", len(store.spatial))
	}
	for _, sm := range store.spatial {
		if sm.VisitCount != 3 {
			t.Errorf("visit count = %d, want 3", sm.VisitCount)
		}
		if sm.FoodFoundCount != 2 {
			t.Errorf("food found = %d, want 2", sm.FoodFoundCount)
		}
		want := 2.0 / 3.0
		if diff := sm.SuccessRate - want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("success rate = %v, want %v", sm.SuccessRate, want)
		}
	}
}

func TestSpatialMemoryCreatesDistantRegions(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store)
	ctx := context.Background()

	locs := []Location{{X: 0, Y: 0}, {X: 100, Y: 100}}
	for _, loc := range locs {
		if _, err := m.RecordExperience(ctx, &Experience{
			WormID: "worm-1", Goal: "explore", Outcome: OutcomePartial, Location: loc,
		}); err != nil {
			t.Fatalf("RecordExperience: %v", err)
		}
	}
	if len(store.spatial) != 2 {
		t.Fatalf("spatial memories = %d, want 2 distinct regions", len(store.spatial))
	}
}

func TestSpatialContextAggregation(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store)
	ctx := context.Background()

	store.spatial["a"] = SpatialMemory{
		ID: "a", WormID: "worm-1", Coordinates: Location{X: 0, Y: 0},
		RegionType: "food_rich", VisitCount: 8, SuccessRate: 0.9,
	}
	store.spatial["b"] = SpatialMemory{
		ID: "b", WormID: "worm-1", Coordinates: Location{X: 10, Y: 0},
		RegionType: "neutral", VisitCount: 2, SuccessRate: 0.1,
	}

	sc, err := m.SpatialContext(ctx, "worm-1", Location{X: 5, Y: 0}, 50)
	if err != nil {
		t.Fatalf("SpatialContext: %v", err)
	}
	if !sc.IsFamiliar {
		t.Error("area should be familiar")
	}
	if sc.VisitCount != 10 {
		t.Errorf("visit count = %d, want 10", sc.VisitCount)
	}
	if sc.RegionType != "food_rich" {
		t.Errorf("region type = %q, want food_rich", sc.RegionType)
	}
	want := (0.9*8 + 0.1*2) / 10
	if diff := sc.SuccessRate - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("success rate = %v, want %v", sc.SuccessRate, want)
	}
	if len(sc.Recommendations) == 0 {
		t.Error("expected at least one recommendation for a successful area")
	}
}

func TestSpatialContextUnknownArea(t *testing.T) {
	m := newTestManager(t, newFakeStore())
	sc, err := m.SpatialContext(context.Background(), "worm-1", Location{X: 500, Y: 500}, 50)
	if err != nil {
		t.Fatalf("SpatialContext: %v", err)
	}
	if sc.IsFamiliar {
		t.Error("empty area should not be familiar")
	}
	if sc.RegionType != "unknown" {
		t.Errorf("region type = %q, want unknown", sc.RegionType)
	}
}

func TestConsolidationCreatesKnowledgeAndStrategies(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	m := newTestManager(t, store, WithEvents(events))
	ctx := context.Background()

	// Four successful experiences in the same location cell and goal.
	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		store.experiences[string(rune('a'+i))] = Experience{
			ID:        string(rune('a' + i)),
			WormID:    "worm-1",
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
			Location:  Location{X: 3.2, Y: 7.1},
			Goal:      "find_food",
			Outcome:   OutcomeSuccess,
		}
	}

	result, err := m.Consolidate(ctx, "worm-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if result.ConsolidatedCount != 4 {
		t.Errorf("consolidated = %d, want 4", result.ConsolidatedCount)
	}
	if result.NewKnowledgeCount != 1 {
		t.Errorf("new knowledge = %d, want 1", result.NewKnowledgeCount)
	}
	if len(result.UpdatedStrategies) != 1 {
		t.Fatalf("strategies = %d, want 1", len(result.UpdatedStrategies))
	}
	if !events.has("consolidation_complete") {
		t.Error("consolidation_complete event not published")
	}

	for _, fact := range store.facts {
		if fact.Confidence != 0.95 {
			t.Errorf("fact confidence = %v, want capped 0.95", fact.Confidence)
		}
		if fact.EvidenceCount != 4 {
			t.Errorf("evidence count = %d, want 4", fact.EvidenceCount)
		}
	}
	strat, err := store.StrategyByName(ctx, "worm-1", "proven_find_food")
	if err != nil {
		t.Fatalf("derived strategy missing: %v", err)
	}
	if strat.SuccessRate != 1.0 {
		t.Errorf("strategy success rate = %v, want 1.0", strat.SuccessRate)
	}
}

func TestConsolidationIsIdempotent(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		store.experiences[id] = Experience{
			ID: id, WormID: "worm-1", Timestamp: now,
			Location: Location{X: 1, Y: 1}, Goal: "find_food", Outcome: OutcomeSuccess,
		}
	}

	if _, err := m.Consolidate(ctx, "worm-1"); err != nil {
		t.Fatalf("first Consolidate: %v", err)
	}
	if _, err := m.Consolidate(ctx, "worm-1"); err != nil {
		t.Fatalf("second Consolidate: %v", err)
	}

	if len(store.facts) != 1 {
		t.Errorf("facts = %d, want 1 after re-consolidation", len(store.facts))
	}
	if len(store.strategies) != 1 {
		t.Errorf("strategies = %d, want 1 after re-consolidation", len(store.strategies))
	}
}

func TestConsolidationSkipsSparseAndFailedCells(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store)
	ctx := context.Background()

	now := time.Now().UTC()
	// Only two experiences in one cell: below evidence minimum.
	store.experiences["a"] = Experience{ID: "a", WormID: "worm-1", Timestamp: now, Location: Location{X: 1, Y: 1}, Goal: "g", Outcome: OutcomeSuccess}
	store.experiences["b"] = Experience{ID: "b", WormID: "worm-1", Timestamp: now, Location: Location{X: 1, Y: 1}, Goal: "g", Outcome: OutcomeSuccess}
	// Three failures in another cell: below success threshold.
	for i := 0; i < 3; i++ {
		id := string(rune('x' + i))
		store.experiences[id] = Experience{ID: id, WormID: "worm-1", Timestamp: now, Location: Location{X: 50, Y: 50}, Goal: "g", Outcome: OutcomeFailure}
	}

	result, err := m.Consolidate(ctx, "worm-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if result.NewKnowledgeCount != 0 {
		t.Errorf("new knowledge = %d, want 0", result.NewKnowledgeCount)
	}
	if len(result.UpdatedStrategies) != 0 {
		t.Errorf("strategies = %d, want 0", len(result.UpdatedStrategies))
	}
}

func TestRecordStrategyUseUpdatesCounters(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store)
	ctx := context.Background()

	id, err := m.CreateStrategy(ctx, &Strategy{
		WormID: "worm-1", Name: "gradient_climb", Description: "follow the food gradient",
	})
	if err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}

	if err := m.RecordStrategyUse(ctx, "worm-1", "gradient_climb", true, 0.4); err != nil {
		t.Fatalf("RecordStrategyUse: %v", err)
	}
	if err := m.RecordStrategyUse(ctx, "worm-1", "gradient_climb", false, -0.2); err != nil {
		t.Fatalf("RecordStrategyUse: %v", err)
	}

	strat := store.strategies[id]
	if strat.UsageCount != 2 || strat.SuccessCount != 1 || strat.FailureCount != 1 {
		t.Errorf("counters = %d/%d/%d, want 2/1/1", strat.UsageCount, strat.SuccessCount, strat.FailureCount)
	}
	if strat.SuccessRate != 0.5 {
		t.Errorf("success rate = %v, want 0.5", strat.SuccessRate)
	}
	want := 0.1 // rolling mean of 0.4 and -0.2
	if diff := strat.AverageFitnessGain - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("avg fitness gain = %v, want %v", strat.AverageFitnessGain, want)
	}
}

func TestRecordStrategyUseUnknownStrategy(t *testing.T) {
	m := newTestManager(t, newFakeStore())
	err := m.RecordStrategyUse(context.Background(), "worm-1", "missing", true, 0)
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestBestStrategiesFiltersByGoal(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store)
	ctx := context.Background()

	store.strategies["s1"] = Strategy{ID: "s1", WormID: "worm-1", Name: "gradient_climb", Description: "move toward food gradient", SuccessRate: 0.9, UsageCount: 10}
	store.strategies["s2"] = Strategy{ID: "s2", WormID: "worm-1", Name: "wall_follow", Description: "avoid obstacle walls", SuccessRate: 0.6, UsageCount: 5}
	store.strategies["s3"] = Strategy{ID: "s3", WormID: "worm-1", Name: "food_dash", Description: "dash when food is close", SuccessRate: 0.8, UsageCount: 3}

	best, err := m.BestStrategies(ctx, "worm-1", "find food", 2)
	if err != nil {
		t.Fatalf("BestStrategies: %v", err)
	}
	if len(best) == 0 {
		t.Fatal("expected matching strategies")
	}
	for i := 1; i < len(best); i++ {
		if best[i-1].SuccessRate < best[i].SuccessRate {
			t.Error("strategies not ordered by success rate")
		}
	}
	for _, s := range best {
		if s.Name == "wall_follow" {
			t.Error("wall_follow should not match a food goal")
		}
	}
}

func TestStatsComputation(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		id := string(rune('a' + i))
		outcome := OutcomeSuccess
		if i == 3 {
			outcome = OutcomeFailure
		}
		store.experiences[id] = Experience{
			ID: id, WormID: "worm-1", Timestamp: now,
			Location: Location{X: float64(i * 30)}, Goal: "g", Outcome: outcome,
		}
	}
	store.spatial["sp"] = SpatialMemory{ID: "sp", WormID: "worm-1"}
	store.strategies["st"] = Strategy{ID: "st", WormID: "worm-1", Name: "n"}

	stats, err := m.Stats(ctx, "worm-1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.EpisodicCount != 4 {
		t.Errorf("episodic = %d, want 4", stats.EpisodicCount)
	}
	if stats.SuccessRate != 0.75 {
		t.Errorf("success rate = %v, want 0.75", stats.SuccessRate)
	}
	if stats.SuccessRate < 0 || stats.SuccessRate > 1 {
		t.Errorf("success rate %v outside [0,1]", stats.SuccessRate)
	}
	// 0.5 base + 4*0.05 episodic + 0.2 success + 0.1 spatial
	want := 0.5 + 0.2 + 0.2 + 0.1
	if diff := stats.MemoryConfidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %v, want %v", stats.MemoryConfidence, want)
	}
	if len(stats.Insights) == 0 {
		t.Error("expected insights")
	}
	joined := strings.Join(stats.Insights, "\n")
	if !strings.Contains(joined, "Learned from 4 experiences") {
		t.Errorf("missing learning insight, got %q", joined)
	}
}

func TestStatsEmptyWorm(t *testing.T) {
	m := newTestManager(t, newFakeStore())
	stats, err := m.Stats(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.SuccessRate != 0 {
		t.Errorf("success rate = %v, want 0", stats.SuccessRate)
	}
	if stats.MemoryConfidence != 0.5 {
		t.Errorf("confidence = %v, want base 0.5", stats.MemoryConfidence)
	}
	if len(stats.Insights) != 1 || stats.Insights[0] != "No memories formed yet" {
		t.Errorf("insights = %v", stats.Insights)
	}
}

type countingCache struct {
	mu    sync.Mutex
	stats map[string]*Stats
	hits  int
}

func (c *countingCache) GetStats(ctx context.Context, wormID string) (*Stats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[wormID]
	if ok {
		c.hits++
	}
	return s, ok
}

func (c *countingCache) PutStats(ctx context.Context, wormID string, stats *Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[wormID] = stats
}

func (c *countingCache) Invalidate(ctx context.Context, wormID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stats, wormID)
}

func TestStatsCacheReadThrough(t *testing.T) {
	store := newFakeStore()
	cache := &countingCache{stats: make(map[string]*Stats)}
	m := newTestManager(t, store, WithStatsCache(cache))
	ctx := context.Background()

	if _, err := m.Stats(ctx, "worm-1"); err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if _, err := m.Stats(ctx, "worm-1"); err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if cache.hits != 1 {
		t.Errorf("cache hits = %d, want 1", cache.hits)
	}

	// A new experience invalidates the snapshot.
	if _, err := m.RecordExperience(ctx, &Experience{WormID: "worm-1", Goal: "g", Outcome: OutcomeSuccess}); err != nil {
		t.Fatalf("RecordExperience: %v", err)
	}
	if _, ok := cache.stats["worm-1"]; ok {
		t.Error("cache not invalidated after write")
	}
}

func TestQueryLimitsResults(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		store.experiences[id] = Experience{ID: id, WormID: "worm-1", Timestamp: time.Now(), Goal: "g"}
	}

	results, err := m.Query(ctx, Query{Kinds: []Kind{KindEpisodic}, WormID: "worm-1", Limit: 5})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 5 {
		t.Errorf("results = %d, want 5", len(results))
	}
}

func TestQueryKeepsMostRelevantResults(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store)
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		id := string(rune('a' + i))
		store.experiences[id] = Experience{
			ID: id, WormID: "worm-1", Timestamp: time.Now(), Goal: "g",
			Importance: float64(i+1) / 10,
		}
	}

	results, err := m.Query(ctx, Query{Kinds: []Kind{KindEpisodic}, WormID: "worm-1", Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Relevance != 0.9 || results[1].Relevance != 0.8 {
		t.Errorf("relevances = %v/%v, want 0.9/0.8", results[0].Relevance, results[1].Relevance)
	}
}

// wrappingStore annotates lookup errors the way a real driver layer would.
type wrappingStore struct {
	*fakeStore
}

func (s *wrappingStore) StrategyByName(ctx context.Context, wormID, name string) (*Strategy, error) {
	strat, err := s.fakeStore.StrategyByName(ctx, wormID, name)
	if err != nil {
		return nil, fmt.Errorf("lookup strategy %q: %w", name, err)
	}
	return strat, nil
}

func TestConsolidationHandlesWrappedNotFound(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, &wrappingStore{store})
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		store.experiences[id] = Experience{
			ID: id, WormID: "worm-1", Timestamp: now,
			Location: Location{X: 1, Y: 1}, Goal: "find_food", Outcome: OutcomeSuccess,
		}
	}

	result, err := m.Consolidate(ctx, "worm-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(result.UpdatedStrategies) != 1 {
		t.Errorf("strategies = %d, want 1 despite wrapped lookup error", len(result.UpdatedStrategies))
	}
}
