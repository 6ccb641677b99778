package domain

import "time"

// AlertRule is a CEL condition evaluated against every recorded evaluation.
type AlertRule struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Expression string   `json:"expression" yaml:"expression"`
	Severity   Severity `json:"severity" yaml:"severity"`
	Message    string   `json:"message" yaml:"message"`
	Enabled    bool     `json:"enabled" yaml:"enabled"`
}

// Severity ranks a health alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is emitted when an alert rule matches an evaluation.
type Alert struct {
	RuleID         string         `json:"ruleId"`
	RuleName       string         `json:"ruleName"`
	Severity       Severity       `json:"severity"`
	Message        string         `json:"message"`
	AccountID      string         `json:"accountId"`
	EvaluationID   string         `json:"evaluationId"`
	TotalScore     int            `json:"totalScore"`
	Classification Classification `json:"classification"`
	RaisedAt       time.Time      `json:"raisedAt"`
}
