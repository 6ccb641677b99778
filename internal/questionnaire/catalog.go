// Package questionnaire provides the fixed health questionnaire catalog.
package questionnaire

import (
	_ "embed"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
)

//go:embed catalog.yaml
var referenceCatalog []byte

// Catalog is an immutable, ordered set of questions.
// It is safe for concurrent use without synchronization.
type Catalog struct {
	questions []domain.Question
	byID      map[int]*domain.Question
	pillars   []string
}

type catalogFile struct {
	Questions []domain.Question `yaml:"questions"`
}

// Default returns the embedded reference catalog.
func Default() *Catalog {
	c, err := Parse(referenceCatalog)
	if err != nil {
		panic(fmt.Sprintf("questionnaire: invalid reference catalog: %v", err))
	}
	return c
}

// Load returns the catalog at path, or the reference catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read questionnaire: %w", err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("questionnaire %s: %w", path, err)
	}

	slog.Info("questionnaire loaded", "path", path, "questions", len(c.questions))
	return c, nil
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return New(file.Questions)
}

// New validates questions and builds a catalog ordered by ascending ID.
func New(questions []domain.Question) (*Catalog, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("catalog must contain at least one question")
	}

	qs := make([]domain.Question, len(questions))
	for i, q := range questions {
		q.Options = append([]domain.Option(nil), q.Options...)
		qs[i] = q
	}
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })

	c := &Catalog{
		questions: qs,
		byID:      make(map[int]*domain.Question, len(qs)),
	}

	seenPillar := make(map[string]bool)
	for i := range qs {
		q := &qs[i]
		if err := validateQuestion(q); err != nil {
			return nil, err
		}
		if _, dup := c.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %d", q.ID)
		}
		c.byID[q.ID] = q

		if !seenPillar[q.Pillar] {
			seenPillar[q.Pillar] = true
			c.pillars = append(c.pillars, q.Pillar)
		}
	}

	return c, nil
}

func validateQuestion(q *domain.Question) error {
	if q.ID <= 0 {
		return fmt.Errorf("question id must be positive, got %d", q.ID)
	}
	if q.Pillar == "" {
		return fmt.Errorf("question %d: pillar is required", q.ID)
	}
	if !(q.Weight > 0) || math.IsInf(q.Weight, 0) {
		return fmt.Errorf("question %d: weight must be positive", q.ID)
	}
	if len(q.Options) == 0 {
		return fmt.Errorf("question %d: at least one option is required", q.ID)
	}

	seen := make(map[float64]bool, len(q.Options))
	for _, o := range q.Options {
		if math.IsNaN(o.Value) || o.Value < domain.MinScore || o.Value > domain.MaxScore {
			return fmt.Errorf("question %d: option value %v out of range", q.ID, o.Value)
		}
		if seen[o.Value] {
			return fmt.Errorf("question %d: duplicate option value %v", q.ID, o.Value)
		}
		seen[o.Value] = true
	}
	return nil
}

// ListQuestions returns the questions in ascending ID order.
// The returned slice is a copy; every call yields the same content.
func (c *Catalog) ListQuestions() []domain.Question {
	out := make([]domain.Question, len(c.questions))
	for i, q := range c.questions {
		q.Options = append([]domain.Option(nil), q.Options...)
		out[i] = q
	}
	return out
}

// Question looks up a question by ID.
func (c *Catalog) Question(id int) (domain.Question, bool) {
	q, ok := c.byID[id]
	if !ok {
		return domain.Question{}, false
	}
	cp := *q
	cp.Options = append([]domain.Option(nil), q.Options...)
	return cp, true
}

// PillarOf returns the pillar of a question without copying it.
func (c *Catalog) PillarOf(id int) (string, bool) {
	q, ok := c.byID[id]
	if !ok {
		return "", false
	}
	return q.Pillar, true
}

// Pillars returns pillar names in order of first appearance.
func (c *Catalog) Pillars() []string {
	return append([]string(nil), c.pillars...)
}

// TotalWeight is the sum of all question weights. Display only: scoring
// does not use weights.
func (c *Catalog) TotalWeight() float64 {
	var total float64
	for _, q := range c.questions {
		total += q.Weight
	}
	return total
}

// Len returns the number of questions.
func (c *Catalog) Len() int {
	return len(c.questions)
}
