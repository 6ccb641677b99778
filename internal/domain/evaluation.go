package domain

import (
	"time"
)

// ResponseSet maps question ID to the selected option value.
type ResponseSet map[int]float64

// Evaluation is one immutable health scoring record for an account.
type Evaluation struct {
	ID             string             `json:"id"`
	AccountID      string             `json:"accountId"`
	EvaluatedBy    string             `json:"evaluatedBy"`
	EvaluationDate time.Time          `json:"evaluationDate"`
	Responses      map[string]float64 `json:"responses"`
	TotalScore     int                `json:"totalScore"`
	PilarScores    map[string]int     `json:"pilarScores"`
	Classification Classification     `json:"classification"`
}

// Result is the display-only view of a scored response set.
type Result struct {
	TotalScore     int            `json:"totalScore"`
	PilarScores    map[string]int `json:"pilarScores"`
	Classification Classification `json:"classification"`
}

// Result returns the display view of a persisted evaluation.
func (e *Evaluation) Result() Result {
	return Result{
		TotalScore:     e.TotalScore,
		PilarScores:    e.PilarScores,
		Classification: e.Classification,
	}
}

// Classification is the qualitative health band derived from the total score.
type Classification string

const (
	ClassificationChampion  Classification = "champion"
	ClassificationHealthy   Classification = "healthy"
	ClassificationAttention Classification = "attention"
	ClassificationAtRisk    Classification = "at-risk"
	ClassificationCritical  Classification = "critical"
)

// ClassificationBand maps an inclusive lower bound to a classification.
type ClassificationBand struct {
	LowerLimit     int
	Classification Classification
}

// ClassificationBands are ordered highest first; the first band whose
// lower limit is <= score wins.
var ClassificationBands = []ClassificationBand{
	{LowerLimit: 90, Classification: ClassificationChampion},
	{LowerLimit: 70, Classification: ClassificationHealthy},
	{LowerLimit: 50, Classification: ClassificationAttention},
	{LowerLimit: 30, Classification: ClassificationAtRisk},
	{LowerLimit: 0, Classification: ClassificationCritical},
}

// Valid reports whether c is one of the known bands.
func (c Classification) Valid() bool {
	for _, b := range ClassificationBands {
		if b.Classification == c {
			return true
		}
	}
	return false
}

// NeedsAttention is true for the two lowest bands.
func (c Classification) NeedsAttention() bool {
	return c == ClassificationAtRisk || c == ClassificationCritical
}
