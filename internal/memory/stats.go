package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Stats builds the per-worm memory statistics snapshot. Reads go through the
// stats cache when one is attached; writes to memory invalidate it.
func (m *Manager) Stats(ctx context.Context, wormID string) (*Stats, error) {
	if m.cache != nil {
		if cached, ok := m.cache.GetStats(ctx, wormID); ok {
			return cached, nil
		}
	}

	counts, err := m.store.Counts(ctx, wormID)
	if err != nil {
		return nil, fmt.Errorf("memory stats: %w", err)
	}

	stats := buildStats(counts)
	if m.cache != nil {
		m.cache.PutStats(ctx, wormID, stats)
	}

	m.logger.Debug("memory stats computed",
		zap.String("worm", wormID),
		zap.Int("episodic", stats.EpisodicCount),
		zap.Float64("success_rate", stats.SuccessRate))
	return stats, nil
}

func buildStats(c Counts) *Stats {
	stats := &Stats{
		EpisodicCount:     c.Episodic,
		SpatialCount:      c.Spatial,
		SemanticCount:     c.Semantic,
		ProceduralCount:   c.Procedural,
		TotalExperiences:  c.Episodic,
		LocationsVisited:  c.DistinctLocations,
		StrategiesLearned: c.Procedural,
		KnowledgeFacts:    c.Semantic,
	}
	if c.Episodic > 0 {
		stats.SuccessRate = clamp01(float64(c.Successes) / float64(c.Episodic))
	}
	stats.MemoryConfidence = memoryConfidence(stats)
	stats.Insights = memoryInsights(stats)
	return stats
}

// memoryConfidence estimates how much the worm can trust its own memory.
// Grows with episodic volume, boosted by a good track record and any
// spatial coverage.
func memoryConfidence(s *Stats) float64 {
	confidence := 0.5
	confidence += minFloat(0.3, float64(s.EpisodicCount)*0.05)
	if s.SuccessRate > 0.5 {
		confidence += 0.2
	}
	if s.SpatialCount > 0 {
		confidence += 0.1
	}
	return clamp01(confidence)
}

// memoryInsights renders human-readable observations for the dashboard.
func memoryInsights(s *Stats) []string {
	insights := []string{}
	if s.EpisodicCount > 0 {
		insights = append(insights, fmt.Sprintf("Learned from %d experiences", s.EpisodicCount))
	}
	if s.SuccessRate > 0.7 {
		insights = append(insights, "High success rate - learning effectively")
	} else if s.SuccessRate < 0.3 && s.EpisodicCount > 5 {
		insights = append(insights, "Low success rate - may need strategy adjustment")
	}
	if s.SpatialCount > 0 {
		insights = append(insights, fmt.Sprintf("Explored %d distinct locations", s.SpatialCount))
	}
	if s.ProceduralCount > 0 {
		insights = append(insights, fmt.Sprintf("Developed %d behavioral strategies", s.ProceduralCount))
	}
	if s.KnowledgeFacts > 0 {
		insights = append(insights, fmt.Sprintf("Extracted %d knowledge facts", s.KnowledgeFacts))
	}
	if len(insights) == 0 {
		insights = append(insights, "No memories formed yet")
	}
	return insights
}
