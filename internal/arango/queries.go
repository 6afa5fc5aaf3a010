package arango

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"

	"github.com/wormworks/agentic-worm/internal/memory"
)

// edgeKey derives a stable document key from an edge's endpoints.
func edgeKey(from, to string) string {
	sum := sha1.Sum([]byte(from + "->" + to))
	return hex.EncodeToString(sum[:])
}

// SpatialNear returns the worm's spatial memories within radius of loc,
// closest first.
func (s *Store) SpatialNear(ctx context.Context, wormID string, loc memory.Location, radius float64) ([]memory.SpatialMemory, error) {
	query := `
		FOR m IN spatial_memories
			FILTER m.worm_id == @worm
			LET dist = SQRT(
				POW(m.coordinates.x - @x, 2) +
				POW(m.coordinates.y - @y, 2) +
				POW(m.coordinates.z - @z, 2))
			FILTER dist <= @radius
			SORT dist ASC
			RETURN m`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: map[string]any{
		"worm":   wormID,
		"x":      loc.X,
		"y":      loc.Y,
		"z":      loc.Z,
		"radius": radius,
	}})
	if err != nil {
		return nil, fmt.Errorf("arango: spatial near: %w", err)
	}
	defer cursor.Close()

	var out []memory.SpatialMemory
	for cursor.HasMore() {
		var sm memory.SpatialMemory
		if _, err := cursor.ReadDocument(ctx, &sm); err != nil {
			return nil, fmt.Errorf("arango: spatial near read: %w", err)
		}
		out = append(out, sm)
	}
	return out, nil
}

// kindSpec maps a memory kind onto its collection and field names.
type kindSpec struct {
	collection string
	timeField  string
	scoreField string // fallback relevance when no vector is given
	locField   string // empty when the kind has no location
}

func specFor(kind memory.Kind) (kindSpec, error) {
	switch kind {
	case memory.KindEpisodic:
		return kindSpec{colExperiences, "timestamp", "importance", "location"}, nil
	case memory.KindSpatial:
		return kindSpec{colSpatial, "last_visited", "success_rate", "coordinates"}, nil
	case memory.KindSemantic:
		return kindSpec{colKnowledge, "last_updated", "confidence", ""}, nil
	case memory.KindProcedural:
		return kindSpec{colStrategies, "last_updated", "success_rate", ""}, nil
	default:
		return kindSpec{}, fmt.Errorf("arango: unknown memory kind %q", kind)
	}
}

// Search runs a single-kind query. With a vector it ranks by cosine
// similarity against the stored embeddings; without one it falls back to the
// kind's own score field and recency.
func (s *Store) Search(ctx context.Context, kind memory.Kind, q memory.Query, vector []float32) ([]memory.Result, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	bind := map[string]any{"limit": limit}
	aql := fmt.Sprintf("FOR m IN %s\n", spec.collection)

	if q.WormID != "" {
		aql += "FILTER m.worm_id == @worm\n"
		bind["worm"] = q.WormID
	}
	if q.Since != nil {
		aql += fmt.Sprintf("FILTER m.%s >= @since\n", spec.timeField)
		bind["since"] = q.Since.UTC()
	}
	if q.Until != nil {
		aql += fmt.Sprintf("FILTER m.%s <= @until\n", spec.timeField)
		bind["until"] = q.Until.UTC()
	}
	if len(q.Tags) > 0 {
		aql += "FILTER LENGTH(INTERSECTION(m.tags, @tags)) > 0\n"
		bind["tags"] = q.Tags
	}
	if q.Location != nil && spec.locField != "" {
		radius := q.LocationRadius
		if radius <= 0 {
			radius = 50
		}
		aql += fmt.Sprintf(`FILTER SQRT(
			POW(m.%s.x - @lx, 2) +
			POW(m.%s.y - @ly, 2) +
			POW(m.%s.z - @lz, 2)) <= @lradius
`, spec.locField, spec.locField, spec.locField)
		bind["lx"] = q.Location.X
		bind["ly"] = q.Location.Y
		bind["lz"] = q.Location.Z
		bind["lradius"] = radius
	}

	if len(vector) > 0 {
		aql += "FILTER LENGTH(m.embedding) > 0\n"
		aql += "LET relevance = COSINE_SIMILARITY(m.embedding, @vec)\n"
		bind["vec"] = vector
	} else {
		aql += fmt.Sprintf("LET relevance = m.%s != null ? m.%s : 0\n", spec.scoreField, spec.scoreField)
	}
	if q.MinRelevance > 0 {
		aql += "FILTER relevance >= @minRelevance\n"
		bind["minRelevance"] = q.MinRelevance
	}
	aql += fmt.Sprintf("SORT relevance DESC, m.%s DESC\n", spec.timeField)
	aql += "LIMIT @limit\n"
	aql += "RETURN { relevance: relevance, doc: UNSET(m, \"embedding\", \"_id\", \"_rev\") }"

	cursor, err := s.db.Query(ctx, aql, &arangodb.QueryOptions{BindVars: bind})
	if err != nil {
		return nil, fmt.Errorf("arango: search %s: %w", kind, err)
	}
	defer cursor.Close()

	var out []memory.Result
	for cursor.HasMore() {
		var row struct {
			Relevance float64        `json:"relevance"`
			Doc       map[string]any `json:"doc"`
		}
		if _, err := cursor.ReadDocument(ctx, &row); err != nil {
			return nil, fmt.Errorf("arango: search %s read: %w", kind, err)
		}
		out = append(out, memory.Result{Kind: kind, Relevance: row.Relevance, Document: row.Doc})
	}
	return out, nil
}

// RecentExperiences returns the worm's experiences newer than since,
// newest first.
func (s *Store) RecentExperiences(ctx context.Context, wormID string, since time.Time, limit int) ([]memory.Experience, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		FOR e IN experiences
			FILTER e.worm_id == @worm AND e.timestamp >= @since
			SORT e.timestamp DESC
			LIMIT @limit
			RETURN UNSET(e, "embedding", "_id", "_rev")`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: map[string]any{
		"worm":  wormID,
		"since": since.UTC(),
		"limit": limit,
	}})
	if err != nil {
		return nil, fmt.Errorf("arango: recent experiences: %w", err)
	}
	defer cursor.Close()

	var out []memory.Experience
	for cursor.HasMore() {
		var exp memory.Experience
		if _, err := cursor.ReadDocument(ctx, &exp); err != nil {
			return nil, fmt.Errorf("arango: recent experiences read: %w", err)
		}
		out = append(out, exp)
	}
	return out, nil
}

// Strategies returns the worm's strategies ordered by success rate and usage.
func (s *Store) Strategies(ctx context.Context, wormID string, limit int) ([]memory.Strategy, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		FOR st IN strategies
			FILTER st.worm_id == @worm
			SORT st.success_rate DESC, st.usage_count DESC
			LIMIT @limit
			RETURN UNSET(st, "embedding", "_id", "_rev")`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: map[string]any{
		"worm":  wormID,
		"limit": limit,
	}})
	if err != nil {
		return nil, fmt.Errorf("arango: strategies: %w", err)
	}
	defer cursor.Close()

	var out []memory.Strategy
	for cursor.HasMore() {
		var strat memory.Strategy
		if _, err := cursor.ReadDocument(ctx, &strat); err != nil {
			return nil, fmt.Errorf("arango: strategies read: %w", err)
		}
		out = append(out, strat)
	}
	return out, nil
}

// StrategyByName looks up a strategy by its unique (worm, name) pair.
func (s *Store) StrategyByName(ctx context.Context, wormID, name string) (*memory.Strategy, error) {
	query := `
		FOR st IN strategies
			FILTER st.worm_id == @worm AND st.name == @name
			LIMIT 1
			RETURN UNSET(st, "embedding", "_id", "_rev")`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: map[string]any{
		"worm": wormID,
		"name": name,
	}})
	if err != nil {
		return nil, fmt.Errorf("arango: strategy by name: %w", err)
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return nil, memory.ErrNotFound
	}
	var strat memory.Strategy
	if _, err := cursor.ReadDocument(ctx, &strat); err != nil {
		return nil, fmt.Errorf("arango: strategy by name read: %w", err)
	}
	return &strat, nil
}

// FactsByTag returns knowledge facts of the given type carrying the tag.
func (s *Store) FactsByTag(ctx context.Context, wormID, factType, tag string) ([]memory.KnowledgeFact, error) {
	query := `
		FOR f IN knowledge_facts
			FILTER f.worm_id == @worm AND f.fact_type == @type AND @tag IN f.tags
			RETURN UNSET(f, "embedding", "_id", "_rev")`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: map[string]any{
		"worm": wormID,
		"type": factType,
		"tag":  tag,
	}})
	if err != nil {
		return nil, fmt.Errorf("arango: facts by tag: %w", err)
	}
	defer cursor.Close()

	var out []memory.KnowledgeFact
	for cursor.HasMore() {
		var fact memory.KnowledgeFact
		if _, err := cursor.ReadDocument(ctx, &fact); err != nil {
			return nil, fmt.Errorf("arango: facts by tag read: %w", err)
		}
		out = append(out, fact)
	}
	return out, nil
}

// Counts gathers the per-worm numbers behind the stats snapshot in a single
// round trip.
func (s *Store) Counts(ctx context.Context, wormID string) (memory.Counts, error) {
	query := `
		LET episodic = (FOR e IN experiences FILTER e.worm_id == @worm RETURN 1)
		LET successes = (FOR e IN experiences FILTER e.worm_id == @worm AND e.outcome == "success" RETURN 1)
		LET cells = (
			FOR e IN experiences
				FILTER e.worm_id == @worm
				COLLECT cell = CONCAT(ROUND(e.location.x), ",", ROUND(e.location.y))
				RETURN cell)
		LET spatial = (FOR m IN spatial_memories FILTER m.worm_id == @worm RETURN 1)
		LET semantic = (FOR f IN knowledge_facts FILTER f.worm_id == @worm RETURN 1)
		LET procedural = (FOR st IN strategies FILTER st.worm_id == @worm RETURN 1)
		RETURN {
			episodic: LENGTH(episodic),
			successes: LENGTH(successes),
			distinct_locations: LENGTH(cells),
			spatial: LENGTH(spatial),
			semantic: LENGTH(semantic),
			procedural: LENGTH(procedural)
		}`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: map[string]any{
		"worm": wormID,
	}})
	if err != nil {
		return memory.Counts{}, fmt.Errorf("arango: counts: %w", err)
	}
	defer cursor.Close()

	var row struct {
		Episodic          int `json:"episodic"`
		Successes         int `json:"successes"`
		DistinctLocations int `json:"distinct_locations"`
		Spatial           int `json:"spatial"`
		Semantic          int `json:"semantic"`
		Procedural        int `json:"procedural"`
	}
	if !cursor.HasMore() {
		return memory.Counts{}, nil
	}
	if _, err := cursor.ReadDocument(ctx, &row); err != nil {
		return memory.Counts{}, fmt.Errorf("arango: counts read: %w", err)
	}
	return memory.Counts{
		Episodic:          row.Episodic,
		Spatial:           row.Spatial,
		Semantic:          row.Semantic,
		Procedural:        row.Procedural,
		Successes:         row.Successes,
		DistinctLocations: row.DistinctLocations,
	}, nil
}
