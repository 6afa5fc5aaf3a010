// Package arango persists worm memories in ArangoDB. One document collection
// per memory kind, plus edge collections linking derived knowledge and
// strategies back to their source experiences.
package arango

import (
	"context"
	"fmt"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
	"go.uber.org/zap"

	"github.com/wormworks/agentic-worm/internal/memory"
)

const (
	colExperiences = "experiences"
	colSpatial     = "spatial_memories"
	colKnowledge   = "knowledge_facts"
	colStrategies  = "strategies"

	edgeExperienceKnowledge = "experience_knowledge_edges"
	edgeStrategyExperience  = "strategy_experience_edges"
)

// Config holds ArangoDB connection settings.
type Config struct {
	Endpoint string
	Database string
	Username string
	Password string
}

// Store implements memory.Store on an ArangoDB database.
type Store struct {
	db     arangodb.Database
	logger *zap.Logger

	experiences arangodb.Collection
	spatial     arangodb.Collection
	knowledge   arangodb.Collection
	strategies  arangodb.Collection
	expKnowEdge arangodb.Collection
	stratExEdge arangodb.Collection
}

// Connect dials ArangoDB with retries and ensures the database, collections
// and indexes exist. The database container may still be starting, so the
// first attempts are expected to fail.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	conn := connection.NewHttpConnection(connection.HttpConfiguration{
		Endpoint: connection.NewRoundRobinEndpoints([]string{cfg.Endpoint}),
	})
	if cfg.Username != "" {
		auth := connection.NewBasicAuth(cfg.Username, cfg.Password)
		if err := conn.SetAuthentication(auth); err != nil {
			return nil, fmt.Errorf("arango: set authentication: %w", err)
		}
	}
	client := arangodb.NewClient(conn)

	const maxAttempts = 10
	backoff := 3 * time.Second
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if _, err := client.Version(ctx); err == nil {
			lastErr = nil
			break
		} else {
			lastErr = err
		}
		logger.Warn("arangodb not reachable, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * 1.5)
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("arango: connect to %s: %w", cfg.Endpoint, lastErr)
	}

	db, err := ensureDatabase(ctx, client, cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, logger: logger}
	if err := s.ensureCollections(ctx); err != nil {
		return nil, err
	}

	logger.Info("arangodb ready",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("database", cfg.Database))
	return s, nil
}

func ensureDatabase(ctx context.Context, client arangodb.Client, name string) (arangodb.Database, error) {
	exists, err := client.DatabaseExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("arango: check database %s: %w", name, err)
	}
	if !exists {
		if _, err := client.CreateDatabase(ctx, name, nil); err != nil {
			return nil, fmt.Errorf("arango: create database %s: %w", name, err)
		}
	}
	db, err := client.GetDatabase(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("arango: open database %s: %w", name, err)
	}
	return db, nil
}

func (s *Store) ensureCollections(ctx context.Context) error {
	docs := []struct {
		name   string
		target *arangodb.Collection
	}{
		{colExperiences, &s.experiences},
		{colSpatial, &s.spatial},
		{colKnowledge, &s.knowledge},
		{colStrategies, &s.strategies},
	}
	for _, d := range docs {
		col, err := s.ensureCollection(ctx, d.name, arangodb.CollectionTypeDocument)
		if err != nil {
			return err
		}
		*d.target = col
	}

	edges := []struct {
		name   string
		target *arangodb.Collection
	}{
		{edgeExperienceKnowledge, &s.expKnowEdge},
		{edgeStrategyExperience, &s.stratExEdge},
	}
	for _, e := range edges {
		col, err := s.ensureCollection(ctx, e.name, arangodb.CollectionTypeEdge)
		if err != nil {
			return err
		}
		*e.target = col
	}

	return s.ensureIndexes(ctx)
}

func (s *Store) ensureCollection(ctx context.Context, name string, colType arangodb.CollectionType) (arangodb.Collection, error) {
	exists, err := s.db.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("arango: check collection %s: %w", name, err)
	}
	if !exists {
		props := &arangodb.CreateCollectionPropertiesV2{Type: &colType}
		if _, err := s.db.CreateCollectionV2(ctx, name, props); err != nil {
			return nil, fmt.Errorf("arango: create collection %s: %w", name, err)
		}
	}
	col, err := s.db.GetCollection(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("arango: open collection %s: %w", name, err)
	}
	return col, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		col    arangodb.Collection
		fields []string
	}{
		{s.experiences, []string{"worm_id", "timestamp"}},
		{s.experiences, []string{"worm_id", "outcome"}},
		{s.spatial, []string{"worm_id"}},
		{s.knowledge, []string{"worm_id", "fact_type"}},
		{s.strategies, []string{"worm_id", "name"}},
	}
	for _, idx := range indexes {
		if _, _, err := idx.col.EnsurePersistentIndex(ctx, idx.fields, nil); err != nil {
			return fmt.Errorf("arango: ensure index on %s %v: %w", idx.col.Name(), idx.fields, err)
		}
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.db.Info(ctx); err != nil {
		return fmt.Errorf("arango: ping: %w", err)
	}
	return nil
}

// Document envelopes add the embedding vector alongside the memory payload.

type experienceDoc struct {
	memory.Experience
	Embedding []float32 `json:"embedding,omitempty"`
}

type spatialDoc struct {
	memory.SpatialMemory
	Embedding []float32 `json:"embedding,omitempty"`
}

type knowledgeDoc struct {
	memory.KnowledgeFact
	Embedding []float32 `json:"embedding,omitempty"`
}

type strategyDoc struct {
	memory.Strategy
	Embedding []float32 `json:"embedding,omitempty"`
}

// upsert writes a document, replacing any existing one with the same key.
func upsert(ctx context.Context, col arangodb.Collection, doc any) error {
	mode := arangodb.CollectionDocumentCreateOverwriteModeReplace
	_, err := col.CreateDocumentWithOptions(ctx, doc, &arangodb.CollectionDocumentCreateOptions{
		OverwriteMode: &mode,
	})
	return err
}

// PutExperience stores an episodic memory.
func (s *Store) PutExperience(ctx context.Context, exp *memory.Experience, embedding []float32) (string, error) {
	if err := upsert(ctx, s.experiences, experienceDoc{Experience: *exp, Embedding: embedding}); err != nil {
		return "", fmt.Errorf("arango: put experience: %w", err)
	}
	return exp.ID, nil
}

// PutSpatialMemory stores or updates a spatial region record.
func (s *Store) PutSpatialMemory(ctx context.Context, sm *memory.SpatialMemory, embedding []float32) (string, error) {
	if err := upsert(ctx, s.spatial, spatialDoc{SpatialMemory: *sm, Embedding: embedding}); err != nil {
		return "", fmt.Errorf("arango: put spatial memory: %w", err)
	}
	return sm.ID, nil
}

// PutKnowledgeFact stores or updates a semantic memory.
func (s *Store) PutKnowledgeFact(ctx context.Context, fact *memory.KnowledgeFact, embedding []float32) (string, error) {
	if err := upsert(ctx, s.knowledge, knowledgeDoc{KnowledgeFact: *fact, Embedding: embedding}); err != nil {
		return "", fmt.Errorf("arango: put knowledge fact: %w", err)
	}
	return fact.ID, nil
}

// PutStrategy stores or updates a procedural memory. A nil embedding keeps
// the previously stored vector out of counter-only updates.
func (s *Store) PutStrategy(ctx context.Context, strat *memory.Strategy, embedding []float32) (string, error) {
	if embedding == nil {
		if err := s.updateStrategyCounters(ctx, strat); err == nil {
			return strat.ID, nil
		}
		// Fall through to a full write when the document does not exist yet.
	}
	if err := upsert(ctx, s.strategies, strategyDoc{Strategy: *strat, Embedding: embedding}); err != nil {
		return "", fmt.Errorf("arango: put strategy: %w", err)
	}
	return strat.ID, nil
}

func (s *Store) updateStrategyCounters(ctx context.Context, strat *memory.Strategy) error {
	query := `
		FOR s IN strategies
			FILTER s._key == @key
			UPDATE s WITH {
				usage_count: @usage,
				success_count: @successes,
				failure_count: @failures,
				success_rate: @rate,
				average_fitness_gain: @gain,
				last_used: @lastUsed,
				last_updated: @lastUpdated
			} IN strategies
			RETURN NEW._key`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: map[string]any{
		"key":         strat.ID,
		"usage":       strat.UsageCount,
		"successes":   strat.SuccessCount,
		"failures":    strat.FailureCount,
		"rate":        strat.SuccessRate,
		"gain":        strat.AverageFitnessGain,
		"lastUsed":    strat.LastUsed,
		"lastUpdated": strat.LastUpdated,
	}})
	if err != nil {
		return fmt.Errorf("arango: update strategy counters: %w", err)
	}
	defer cursor.Close()
	if !cursor.HasMore() {
		return memory.ErrNotFound
	}
	return nil
}

// LinkFactToExperiences creates graph edges from a knowledge fact to the
// experiences that support it.
func (s *Store) LinkFactToExperiences(ctx context.Context, factID string, experienceIDs []string) error {
	return s.linkEdges(ctx, s.expKnowEdge, colKnowledge+"/"+factID, experienceIDs)
}

// LinkStrategyToExperiences creates graph edges from a strategy to the
// experiences it was derived from.
func (s *Store) LinkStrategyToExperiences(ctx context.Context, strategyID string, experienceIDs []string) error {
	return s.linkEdges(ctx, s.stratExEdge, colStrategies+"/"+strategyID, experienceIDs)
}

type edgeDoc struct {
	Key  string `json:"_key"`
	From string `json:"_from"`
	To   string `json:"_to"`
}

func (s *Store) linkEdges(ctx context.Context, col arangodb.Collection, from string, experienceIDs []string) error {
	for _, expID := range experienceIDs {
		to := colExperiences + "/" + expID
		edge := edgeDoc{
			// Deterministic key makes edge creation idempotent.
			Key:  edgeKey(from, to),
			From: from,
			To:   to,
		}
		if err := upsert(ctx, col, edge); err != nil {
			return fmt.Errorf("arango: link %s -> %s: %w", from, to, err)
		}
	}
	return nil
}
