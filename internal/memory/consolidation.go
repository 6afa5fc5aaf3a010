package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// consolidationLookback is how far back consolidation examines experiences.
	consolidationLookback = 7 * 24 * time.Hour

	// consolidationBatch caps how many experiences one pass processes.
	consolidationBatch = 100

	// minEvidenceCount is the minimum experiences per location cell before a
	// knowledge fact is derived.
	minEvidenceCount = 3

	// knowledgeSuccessThreshold is the success rate a cell must reach.
	knowledgeSuccessThreshold = 0.7

	// maxFactConfidence caps derived confidence below certainty.
	maxFactConfidence = 0.95
)

// Consolidate derives semantic and procedural memory from the worm's recent
// episodic record. Re-running is idempotent per (worm, cell, goal): existing
// facts and strategies are updated in place rather than duplicated.
func (m *Manager) Consolidate(ctx context.Context, wormID string) (*ConsolidationResult, error) {
	start := time.Now()

	experiences, err := m.store.RecentExperiences(ctx, wormID, time.Now().Add(-consolidationLookback), consolidationBatch)
	if err != nil {
		return nil, fmt.Errorf("consolidate: load experiences: %w", err)
	}

	newFacts, err := m.extractKnowledge(ctx, wormID, experiences)
	if err != nil {
		return nil, fmt.Errorf("consolidate: extract knowledge: %w", err)
	}

	updated, err := m.deriveStrategies(ctx, wormID, experiences)
	if err != nil {
		return nil, fmt.Errorf("consolidate: derive strategies: %w", err)
	}

	result := &ConsolidationResult{
		ConsolidatedCount: len(experiences),
		NewKnowledgeCount: newFacts,
		UpdatedStrategies: updated,
		ProcessingTime:    time.Since(start),
	}
	result.Summary = fmt.Sprintf("Consolidated %d experiences, created %d knowledge facts, updated %d strategies",
		result.ConsolidatedCount, result.NewKnowledgeCount, len(result.UpdatedStrategies))

	m.mu.Lock()
	m.lastConsolidation[wormID] = time.Now()
	m.mu.Unlock()

	m.invalidateStats(ctx, wormID)
	m.publish(ctx, wormID, "consolidation_complete", map[string]any{
		"consolidated":   result.ConsolidatedCount,
		"new_knowledge":  result.NewKnowledgeCount,
		"strategies":     len(result.UpdatedStrategies),
		"processing_sec": result.ProcessingTime.Seconds(),
	})

	m.logger.Info("memory consolidation complete",
		zap.String("worm", wormID),
		zap.Int("experiences", result.ConsolidatedCount),
		zap.Int("new_facts", result.NewKnowledgeCount),
		zap.Int("strategies", len(result.UpdatedStrategies)),
		zap.Duration("duration", result.ProcessingTime))
	return result, nil
}

// cellGroup is the working set of experiences sharing a location grid cell.
type cellGroup struct {
	cell        string
	experiences []Experience
	successes   int
}

func groupByCell(experiences []Experience) map[string]*cellGroup {
	groups := make(map[string]*cellGroup)
	for _, exp := range experiences {
		key := exp.Location.CellKey()
		g, ok := groups[key]
		if !ok {
			g = &cellGroup{cell: key}
			groups[key] = g
		}
		g.experiences = append(g.experiences, exp)
		if exp.Outcome == OutcomeSuccess {
			g.successes++
		}
	}
	return groups
}

// extractKnowledge turns consistently successful location cells into
// knowledge facts. Returns how many facts were created or strengthened.
func (m *Manager) extractKnowledge(ctx context.Context, wormID string, experiences []Experience) (int, error) {
	created := 0
	for _, g := range groupByCell(experiences) {
		if len(g.experiences) < minEvidenceCount {
			continue
		}
		rate := float64(g.successes) / float64(len(g.experiences))
		if rate < knowledgeSuccessThreshold {
			continue
		}

		cellTag := "cell:" + g.cell
		ids := make([]string, 0, len(g.experiences))
		for _, exp := range g.experiences {
			ids = append(ids, exp.ID)
		}

		now := time.Now().UTC()
		fact := KnowledgeFact{
			WormID:            wormID,
			FactType:          "location",
			Content:           fmt.Sprintf("Location %s has high success rate (%.2f) for goal %s", g.cell, rate, g.experiences[0].Goal),
			Confidence:        clamp01(minFloat(rate, maxFactConfidence)),
			SourceExperiences: ids,
			EvidenceCount:     len(g.experiences),
			FirstLearned:      now,
			LastUpdated:       now,
			Tags:              []string{"high_success", "location_knowledge", cellTag},
		}

		// Idempotency: refresh the existing fact for this cell if present.
		existing, err := m.store.FactsByTag(ctx, wormID, "location", cellTag)
		if err != nil {
			return created, err
		}
		if len(existing) > 0 {
			fact.ID = existing[0].ID
			fact.FirstLearned = existing[0].FirstLearned
			if existing[0].EvidenceCount > fact.EvidenceCount {
				fact.EvidenceCount = existing[0].EvidenceCount
			}
		} else {
			fact.ID = uuid.New().String()
		}

		vec := m.embedText(ctx, fact.FactType+" "+fact.Content)
		factID, err := m.store.PutKnowledgeFact(ctx, &fact, vec)
		if err != nil {
			return created, err
		}
		if err := m.store.LinkFactToExperiences(ctx, factID, ids); err != nil {
			m.logger.Warn("linking fact to experiences failed",
				zap.String("fact", factID),
				zap.Error(err))
		}
		created++
	}
	return created, nil
}

// deriveStrategies promotes goals that succeed consistently across cells into
// procedural strategies, updating performance counters on existing ones.
func (m *Manager) deriveStrategies(ctx context.Context, wormID string, experiences []Experience) ([]string, error) {
	type goalStats struct {
		total       int
		successes   int
		fitnessSum  float64
		experiences []Experience
	}
	byGoal := make(map[string]*goalStats)
	for _, exp := range experiences {
		if exp.Goal == "" {
			continue
		}
		gs, ok := byGoal[exp.Goal]
		if !ok {
			gs = &goalStats{}
			byGoal[exp.Goal] = gs
		}
		gs.total++
		gs.fitnessSum += exp.FitnessChange
		gs.experiences = append(gs.experiences, exp)
		if exp.Outcome == OutcomeSuccess {
			gs.successes++
		}
	}

	var updated []string
	for goal, gs := range byGoal {
		if gs.total < minEvidenceCount {
			continue
		}
		rate := float64(gs.successes) / float64(gs.total)
		if rate < knowledgeSuccessThreshold {
			continue
		}

		name := "proven_" + goal
		strat, err := m.store.StrategyByName(ctx, wormID, name)
		switch {
		case err == nil:
			strat.UsageCount += gs.total
			strat.SuccessCount += gs.successes
			strat.FailureCount += gs.total - gs.successes
			strat.SuccessRate = clamp01(float64(strat.SuccessCount) / float64(strat.UsageCount))
			strat.AverageFitnessGain = gs.fitnessSum / float64(gs.total)
			strat.LastUpdated = time.Now().UTC()
			if _, err := m.store.PutStrategy(ctx, strat, nil); err != nil {
				return updated, err
			}
			updated = append(updated, strat.ID)

		case errors.Is(err, ErrNotFound):
			now := time.Now().UTC()
			strat = &Strategy{
				ID:          uuid.New().String(),
				WormID:      wormID,
				Name:        name,
				Description: fmt.Sprintf("Repeat behavior that achieved %s with %.0f%% success", goal, rate*100),
				TriggerConditions: map[string]any{
					"goal": goal,
				},
				ActionSequence: []Action{
					{Type: "behavior", Name: goal},
				},
				UsageCount:         gs.total,
				SuccessCount:       gs.successes,
				FailureCount:       gs.total - gs.successes,
				SuccessRate:        clamp01(rate),
				AverageFitnessGain: gs.fitnessSum / float64(gs.total),
				Created:            now,
				LastUsed:           now,
				LastUpdated:        now,
				Tags:               []string{"consolidated"},
				Importance:         clamp01(rate),
			}
			vec := m.embedText(ctx, strat.Name+" "+strat.Description)
			id, err := m.store.PutStrategy(ctx, strat, vec)
			if err != nil {
				return updated, err
			}
			ids := make([]string, 0, len(gs.experiences))
			for _, exp := range gs.experiences {
				ids = append(ids, exp.ID)
			}
			if err := m.store.LinkStrategyToExperiences(ctx, id, ids); err != nil {
				m.logger.Warn("linking strategy to experiences failed",
					zap.String("strategy", id),
					zap.Error(err))
			}
			updated = append(updated, id)

		default:
			return updated, err
		}
	}
	return updated, nil
}

// consolidationDue reports whether the worm's consolidation interval elapsed.
func (m *Manager) consolidationDue(wormID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consolidating[wormID] {
		return false
	}
	last, ok := m.lastConsolidation[wormID]
	if ok && time.Since(last) < m.consolidationInterval {
		return false
	}
	m.consolidating[wormID] = true
	return true
}

// runScheduledConsolidation executes a background consolidation pass.
func (m *Manager) runScheduledConsolidation(wormID string) {
	defer func() {
		m.mu.Lock()
		m.consolidating[wormID] = false
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if _, err := m.Consolidate(ctx, wormID); err != nil {
		m.logger.Error("scheduled consolidation failed",
			zap.String("worm", wormID),
			zap.Error(err))
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
