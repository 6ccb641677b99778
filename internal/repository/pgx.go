package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
)

// PgxRepository implements domain.Repository on a native pgx pool.
type PgxRepository struct {
	pool *pgxpool.Pool
}

// NewPgxRepository connects to cfg.PostgresDSN and applies the schema.
func NewPgxRepository(ctx context.Context, cfg domain.RepositoryConfig) (*PgxRepository, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("%w: pgx driver requires a DSN", ErrInvalidInput)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = 10
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	for _, schema := range AllSchemas() {
		if _, err := pool.Exec(ctx, schema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &PgxRepository{pool: pool}, nil
}

// CreateEvaluation appends a new evaluation record.
func (r *PgxRepository) CreateEvaluation(ctx context.Context, eval *domain.Evaluation) (*domain.Evaluation, error) {
	rec, err := newRecord(eval)
	if err != nil {
		return nil, err
	}

	responses, err := json.Marshal(rec.Responses)
	if err != nil {
		return nil, fmt.Errorf("failed to encode responses: %w", err)
	}
	pillars, err := json.Marshal(rec.PilarScores)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pillar scores: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO health_evaluations (
			id, account_id, evaluated_by, evaluation_date,
			responses, total_score, pilar_scores, classification
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.AccountID, rec.EvaluatedBy, rec.EvaluationDate,
		string(responses), rec.TotalScore, string(pillars), string(rec.Classification),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return rec, nil
}

// ListEvaluations returns up to limit evaluations for an account, newest first.
func (r *PgxRepository) ListEvaluations(ctx context.Context, accountID string, limit int) ([]*domain.Evaluation, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, evaluated_by, evaluation_date,
		       responses, total_score, pilar_scores, classification
		FROM health_evaluations
		WHERE account_id = $1
		ORDER BY evaluation_date DESC, id DESC
		LIMIT $2`, accountID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}

	evals, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Evaluation, error) {
		var e domain.Evaluation
		var responses, pillars, classification string
		if err := row.Scan(
			&e.ID, &e.AccountID, &e.EvaluatedBy, &e.EvaluationDate,
			&responses, &e.TotalScore, &pillars, &classification,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(responses), &e.Responses); err != nil {
			return nil, fmt.Errorf("failed to decode responses for %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(pillars), &e.PilarScores); err != nil {
			return nil, fmt.Errorf("failed to decode pillar scores for %s: %w", e.ID, err)
		}
		e.Classification = domain.Classification(classification)
		e.EvaluationDate = e.EvaluationDate.UTC()
		return &e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read evaluations: %w", err)
	}
	return evals, nil
}

// Ping checks pool connectivity.
func (r *PgxRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (r *PgxRepository) Close() error {
	r.pool.Close()
	return nil
}
