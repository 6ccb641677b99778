// Package scoring turns a questionnaire response set into a health result.
// Aggregation is an unweighted arithmetic mean; question weights are display
// metadata only.
package scoring

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/questionnaire"
)

// Scorer computes results against a fixed catalog. It holds no mutable state.
type Scorer struct {
	catalog *questionnaire.Catalog
}

// NewScorer creates a scorer bound to catalog.
func NewScorer(catalog *questionnaire.Catalog) *Scorer {
	return &Scorer{catalog: catalog}
}

// Catalog returns the catalog the scorer resolves pillars against.
func (s *Scorer) Catalog() *questionnaire.Catalog {
	return s.catalog
}

// Validate checks a response set without scoring it.
func (s *Scorer) Validate(responses domain.ResponseSet) error {
	if len(responses) == 0 {
		return domain.NewValidationError("responses", "at least one answer is required")
	}
	for _, id := range sortedIDs(responses) {
		v := responses[id]
		field := domain.ResponseKey(id)
		if _, ok := s.catalog.PillarOf(id); !ok {
			return domain.NewValidationError(field, "unknown question")
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.NewValidationError(field, "value must be a finite number")
		}
		if v < domain.MinScore || v > domain.MaxScore {
			return domain.NewValidationError(field, "value %v outside [%d, %d]", v, domain.MinScore, domain.MaxScore)
		}
	}
	return nil
}

// Score validates responses and computes the total, pillar breakdown and band.
func (s *Scorer) Score(responses domain.ResponseSet) (domain.Result, error) {
	if err := s.Validate(responses); err != nil {
		return domain.Result{}, err
	}

	var total float64
	sums := make(map[string]float64)
	counts := make(map[string]int)

	// Summing in id order keeps the result independent of map iteration.
	for _, id := range sortedIDs(responses) {
		v := responses[id]
		pillar, _ := s.catalog.PillarOf(id)
		total += v
		sums[pillar] += v
		counts[pillar]++
	}

	score := Round(total / float64(len(responses)))
	pillars := make(map[string]int, len(sums))
	for p, sum := range sums {
		pillars[p] = Round(sum / float64(counts[p]))
	}

	return domain.Result{
		TotalScore:     score,
		PilarScores:    pillars,
		Classification: Classify(score),
	}, nil
}

// Round rounds half away from zero, so 50.5 becomes 51.
func Round(x float64) int {
	return int(math.Round(x))
}

// Classify returns the first band whose lower limit the score reaches.
func Classify(score int) domain.Classification {
	for _, b := range domain.ClassificationBands {
		if score >= b.LowerLimit {
			return b.Classification
		}
	}
	return domain.ClassificationCritical
}

// StorageResponses converts a response set to its persisted form ("q<id>" keys).
func StorageResponses(responses domain.ResponseSet) map[string]float64 {
	out := make(map[string]float64, len(responses))
	for id, v := range responses {
		out[domain.ResponseKey(id)] = v
	}
	return out
}

// ParseResponses converts loosely typed request input into a response set.
// Keys may be "q7" or "7"; values must be numbers.
func ParseResponses(raw map[string]any) (domain.ResponseSet, error) {
	out := make(domain.ResponseSet, len(raw))
	for key, val := range raw {
		id, err := domain.ParseResponseKey(key)
		if err != nil {
			return nil, domain.NewValidationError(key, "invalid question key")
		}
		if _, dup := out[id]; dup {
			return nil, domain.NewValidationError(key, "question answered twice")
		}

		var v float64
		switch n := val.(type) {
		case float64:
			v = n
		case float32:
			v = float64(n)
		case int:
			v = float64(n)
		case int64:
			v = float64(n)
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, domain.NewValidationError(key, "value %q is not numeric", n.String())
			}
			v = f
		default:
			return nil, domain.NewValidationError(key, "value must be numeric, got %T", val)
		}
		out[id] = v
	}
	return out, nil
}

func sortedIDs(responses domain.ResponseSet) []int {
	ids := make([]int, 0, len(responses))
	for id := range responses {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
