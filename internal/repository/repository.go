// Package repository provides evaluation persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

// MaxListLimit caps a single ListEvaluations page.
const MaxListLimit = 100

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL (lib/pq) drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a repository based on configuration.
func New(ctx context.Context, cfg domain.RepositoryConfig) (domain.Repository, error) {
	var repo domain.Repository
	var err error

	switch cfg.Driver {
	case "memory":
		repo = NewMemoryRepository()
	case "pgx":
		repo, err = unlessErr(NewPgxRepository(ctx, cfg))
	case "mongo":
		repo, err = unlessErr(NewMongoRepository(ctx, cfg))
	case "sqlite", "postgres":
		repo, err = unlessErr(newSQLRepository(cfg))
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// unlessErr keeps a failed constructor's typed nil out of the interface.
func unlessErr[R domain.Repository](r R, err error) (domain.Repository, error) {
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newSQLRepository(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// CreateEvaluation appends a new evaluation record.
func (r *SQLRepository) CreateEvaluation(ctx context.Context, eval *domain.Evaluation) (*domain.Evaluation, error) {
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

	query := `
		INSERT INTO health_evaluations (
			id, account_id, evaluated_by, evaluation_date,
			responses, total_score, pilar_scores, classification
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.AccountID, rec.EvaluatedBy, rec.EvaluationDate,
		string(responses), rec.TotalScore, string(pillars), string(rec.Classification),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return rec, nil
}

// ListEvaluations returns up to limit evaluations for an account, newest first.
func (r *SQLRepository) ListEvaluations(ctx context.Context, accountID string, limit int) ([]*domain.Evaluation, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, account_id, evaluated_by, evaluation_date,
			   responses, total_score, pilar_scores, classification
		FROM health_evaluations
		WHERE account_id = ?
		ORDER BY evaluation_date DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer rows.Close()

	var evals []*domain.Evaluation
	for rows.Next() {
		var e domain.Evaluation
		var responses, pillars, classification string

		if err := rows.Scan(
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

		evals = append(evals, &e)
	}

	return evals, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// newRecord validates eval and returns the copy to persist, with ID assigned
// and the date stamped if the caller left it zero. Dates are stored in UTC at
// microsecond precision so every driver round-trips the same value.
func newRecord(eval *domain.Evaluation) (*domain.Evaluation, error) {
	if eval == nil {
		return nil, fmt.Errorf("%w: evaluation is required", ErrInvalidInput)
	}
	if eval.AccountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	rec := *eval
	rec.ID = uuid.NewString()
	if rec.EvaluationDate.IsZero() {
		rec.EvaluationDate = time.Now()
	}
	rec.EvaluationDate = rec.EvaluationDate.UTC().Truncate(time.Microsecond)

	rec.Responses = make(map[string]float64, len(eval.Responses))
	for k, v := range eval.Responses {
		rec.Responses[k] = v
	}
	rec.PilarScores = make(map[string]int, len(eval.PilarScores))
	for k, v := range eval.PilarScores {
		rec.PilarScores[k] = v
	}
	return &rec, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
