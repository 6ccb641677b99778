package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Question is one entry of the health questionnaire.
// IDs are stable across releases because persisted responses reference them.
type Question struct {
	ID      int      `json:"id" yaml:"id"`
	Pillar  string   `json:"pillar" yaml:"pillar"`
	Text    string   `json:"text" yaml:"text"`
	Weight  float64  `json:"weight" yaml:"weight"`
	Options []Option `json:"options" yaml:"options"`
}

// Option is a selectable answer. Value is the score contribution (0-100).
type Option struct {
	Value float64 `json:"value" yaml:"value"`
	Label string  `json:"label" yaml:"label"`
}

// Score bounds for option values and submitted responses.
const (
	MinScore = 0
	MaxScore = 100
)

// ResponseKey returns the stable storage key for a question ID ("q7").
func ResponseKey(questionID int) string {
	return "q" + strconv.Itoa(questionID)
}

// ParseResponseKey accepts both "q7" and "7".
func ParseResponseKey(key string) (int, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(key), "q")
	id, err := strconv.Atoi(trimmed)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid question key %q", key)
	}
	return id, nil
}
