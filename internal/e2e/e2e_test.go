//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/wormworks/agentic-worm/internal/arango"
	"github.com/wormworks/agentic-worm/internal/cache"
	"github.com/wormworks/agentic-worm/internal/embedding"
	"github.com/wormworks/agentic-worm/internal/memory"
)

// Package-level shared state, set by TestMain.
var (
	testLogger *zap.Logger
	testStore  *arango.Store
	testRedis  *cache.Client
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	testLogger = zap.NewNop()

	arangoEndpoint, arangoCleanup, err := startArango(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arango container: %v\n", err)
		os.Exit(1)
	}

	redisAddr, redisCleanup, err := startRedis(ctx)
	if err != nil {
		arangoCleanup()
		fmt.Fprintf(os.Stderr, "redis container: %v\n", err)
		os.Exit(1)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	testStore, err = arango.Connect(connectCtx, arango.Config{
		Endpoint: arangoEndpoint,
		Database: "agentic_worm_memory_test",
		Username: "root",
		Password: "test",
	}, testLogger)
	cancel()
	if err != nil {
		redisCleanup()
		arangoCleanup()
		fmt.Fprintf(os.Stderr, "arango connect: %v\n", err)
		os.Exit(1)
	}

	testRedis, err = cache.New(ctx, redisAddr, testLogger)
	if err != nil {
		redisCleanup()
		arangoCleanup()
		fmt.Fprintf(os.Stderr, "redis connect: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	testRedis.Close()
	redisCleanup()
	arangoCleanup()
	os.Exit(code)
}

// startArango starts an ArangoDB testcontainer, returns endpoint + cleanup.
func startArango(ctx context.Context) (string, func(), error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "arangodb:3.11",
			ExposedPorts: []string{"8529/tcp"},
			Env:          map[string]string{"ARANGO_ROOT_PASSWORD": "test"},
			WaitingFor:   wait.ForListeningPort("8529/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("start arangodb: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "http")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("arangodb endpoint: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return endpoint, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns host:port + cleanup.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return endpoint, cleanup, nil
}

func newManager() *memory.Manager {
	return memory.NewManager(testStore, embedding.NewHashProvider(64), testLogger,
		memory.WithEvents(testRedis),
		memory.WithStatsCache(testRedis))
}

func TestRecordAndRetrieveLifecycle(t *testing.T) {
	ctx := context.Background()
	mem := newManager()
	wormID := "e2e-lifecycle"

	// Record a cluster of successful experiences at one spot.
	for i := 0; i < 5; i++ {
		_, err := mem.RecordExperience(ctx, &memory.Experience{
			WormID:        wormID,
			Goal:          "find_food",
			Outcome:       memory.OutcomeSuccess,
			FitnessChange: 0.3,
			Location:      memory.Location{X: 10, Y: 10},
			Tags:          []string{"food"},
		})
		if err != nil {
			t.Fatalf("record experience: %v", err)
		}
	}

	results, err := mem.RetrieveRelevant(ctx, wormID, memory.Location{X: 12, Y: 8}, "find_food", "hungry", nil, 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results[memory.KindEpisodic]) == 0 {
		t.Error("no episodic memories retrieved near the recorded location")
	}
	if len(results[memory.KindSpatial]) == 0 {
		t.Error("no spatial memories retrieved; visits should have aggregated")
	}
}

func TestConsolidationLifecycle(t *testing.T) {
	ctx := context.Background()
	mem := newManager()
	wormID := "e2e-consolidation"

	for i := 0; i < 4; i++ {
		if _, err := mem.RecordExperience(ctx, &memory.Experience{
			WormID:   wormID,
			Goal:     "find_food",
			Outcome:  memory.OutcomeSuccess,
			Location: memory.Location{X: 3, Y: 3},
		}); err != nil {
			t.Fatalf("record experience: %v", err)
		}
	}

	result, err := mem.Consolidate(ctx, wormID)
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if result.NewKnowledgeCount == 0 {
		t.Error("expected knowledge extraction from a consistent success cluster")
	}

	// Re-consolidation must not duplicate facts.
	again, err := mem.Consolidate(ctx, wormID)
	if err != nil {
		t.Fatalf("re-consolidate: %v", err)
	}
	stats, err := mem.Stats(ctx, wormID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.KnowledgeFacts > result.NewKnowledgeCount {
		t.Errorf("facts grew from %d to %d on re-consolidation",
			result.NewKnowledgeCount, stats.KnowledgeFacts)
	}
	_ = again
}

func TestStatsThroughCache(t *testing.T) {
	ctx := context.Background()
	mem := newManager()
	wormID := "e2e-stats"

	if _, err := mem.RecordExperience(ctx, &memory.Experience{
		WormID:  wormID,
		Goal:    "explore",
		Outcome: memory.OutcomePartial,
	}); err != nil {
		t.Fatalf("record experience: %v", err)
	}

	first, err := mem.Stats(ctx, wormID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	second, err := mem.Stats(ctx, wormID)
	if err != nil {
		t.Fatalf("cached stats: %v", err)
	}
	if first.EpisodicCount != second.EpisodicCount {
		t.Errorf("cache returned different counts: %d vs %d",
			first.EpisodicCount, second.EpisodicCount)
	}
	if first.SuccessRate < 0 || first.SuccessRate > 1 {
		t.Errorf("success rate %v outside [0,1]", first.SuccessRate)
	}
}

func TestEventStreamDelivery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	mem := newManager()
	wormID := "e2e-events"

	events := testRedis.Subscribe(ctx, wormID)
	// Give the subscriber loop a moment to attach before publishing.
	time.Sleep(500 * time.Millisecond)

	if _, err := mem.RecordExperience(ctx, &memory.Experience{
		WormID:  wormID,
		Goal:    "find_food",
		Outcome: memory.OutcomeSuccess,
	}); err != nil {
		t.Fatalf("record experience: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != "experience_recorded" {
			t.Errorf("event type = %q, want experience_recorded", ev.Type)
		}
	case <-ctx.Done():
		t.Fatal("no event received before timeout")
	}
}

func TestStrategyPersistence(t *testing.T) {
	ctx := context.Background()
	mem := newManager()
	wormID := "e2e-strategies"

	if _, err := mem.CreateStrategy(ctx, &memory.Strategy{
		WormID:      wormID,
		Name:        "gradient_climb",
		Description: "follow the chemical gradient toward food",
	}); err != nil {
		t.Fatalf("create strategy: %v", err)
	}

	if err := mem.RecordStrategyUse(ctx, wormID, "gradient_climb", true, 0.4); err != nil {
		t.Fatalf("record strategy use: %v", err)
	}

	best, err := mem.BestStrategies(ctx, wormID, "gradient", 3)
	if err != nil {
		t.Fatalf("best strategies: %v", err)
	}
	if len(best) != 1 {
		t.Fatalf("strategies = %d, want 1", len(best))
	}
	if best[0].UsageCount != 1 || best[0].SuccessCount != 1 {
		t.Errorf("counters = %d/%d, want 1/1", best[0].UsageCount, best[0].SuccessCount)
	}
}
