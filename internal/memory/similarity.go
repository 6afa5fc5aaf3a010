package memory

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// textSimilarity computes overlap between query keywords and a memory's text.
// Blends a Jaccard-style overlap ratio with keyword coverage, so a strategy
// named "gradient climb" still matches the goal "find_food gradient".
func textSimilarity(keywords []string, text string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	target := strings.ToLower(text)
	targetWords := tokenize(target)
	targetSet := make(map[string]bool, len(targetWords))
	for _, w := range targetWords {
		targetSet[w] = true
	}

	var matched int
	var weightedScore float64
	for _, kw := range keywords {
		kwLower := strings.ToLower(kw)
		if targetSet[kwLower] {
			matched++
			weightedScore += 1.0
		} else if strings.Contains(target, kwLower) {
			matched++
			weightedScore += 0.7 // partial substring match
		}
	}

	if matched == 0 {
		return 0
	}

	overlap := float64(matched)
	union := float64(len(keywords) + len(targetSet) - matched)
	jaccard := overlap / math.Max(union, 1)
	coverage := weightedScore / float64(len(keywords))

	return 0.4*jaccard + 0.6*coverage
}

// tokenize splits text into lowercase word tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-')
	})
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if len(w) > 1 { // skip single chars
			result = append(result, w)
		}
	}
	return result
}

// rankStrategies orders strategies by success rate, breaking ties on usage.
func rankStrategies(strategies []Strategy) {
	sort.SliceStable(strategies, func(i, j int) bool {
		if strategies[i].SuccessRate != strategies[j].SuccessRate {
			return strategies[i].SuccessRate > strategies[j].SuccessRate
		}
		return strategies[i].UsageCount > strategies[j].UsageCount
	})
}

// cellKey quantizes x/y into a unit grid cell label such as "3,-7".
func cellKey(x, y float64) string {
	return fmt.Sprintf("%.0f,%.0f", x, y)
}
