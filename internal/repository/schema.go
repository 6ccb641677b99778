package repository

// Schema definitions for the health score store.
// Compatible with both SQLite and PostgreSQL.

// Evaluations are append-only; there is no update path.
const schemaHealthEvaluations = `
CREATE TABLE IF NOT EXISTS health_evaluations (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    evaluated_by TEXT NOT NULL,
    evaluation_date TIMESTAMP NOT NULL,
    responses TEXT NOT NULL,
    total_score INTEGER NOT NULL,
    pilar_scores TEXT NOT NULL,
    classification TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_health_evaluations_account_date
    ON health_evaluations(account_id, evaluation_date DESC);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaHealthEvaluations,
	}
}
