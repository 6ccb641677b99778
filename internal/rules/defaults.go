package rules

import "github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"

// DefaultRules returns the alert rules used when no rules file is configured.
func DefaultRules() []*domain.AlertRule {
	return []*domain.AlertRule{
		{
			ID:         "account-critical",
			Name:       "Critical account health",
			Expression: `classification == "critical"`,
			Severity:   domain.SeverityCritical,
			Message:    "Account {account_id} scored {total_score} and is critical",
			Enabled:    true,
		},
		{
			ID:         "account-at-risk",
			Name:       "Account at risk",
			Expression: `classification == "at-risk"`,
			Severity:   domain.SeverityWarning,
			Message:    "Account {account_id} scored {total_score} and is at risk",
			Enabled:    true,
		},
		{
			ID:         "account-champion",
			Name:       "Champion account",
			Expression: `classification == "champion"`,
			Severity:   domain.SeverityInfo,
			Message:    "Account {account_id} is a champion ({total_score})",
			Enabled:    true,
		},
		{
			ID:         "pillar-collapse",
			Name:       "Collapsed pillar",
			Expression: `pillar_scores.exists(p, pillar_scores[p] < 30)`,
			Severity:   domain.SeverityWarning,
			Message:    "Account {account_id} has a pillar below 30",
			Enabled:    true,
		},
	}
}
