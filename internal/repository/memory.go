package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
)

// MemoryRepository keeps evaluations in process memory. Used by tests and
// by the "memory" driver for throwaway demos.
type MemoryRepository struct {
	mu    sync.RWMutex
	evals map[string][]*domain.Evaluation
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{evals: make(map[string][]*domain.Evaluation)}
}

// CreateEvaluation appends a new evaluation record.
func (r *MemoryRepository) CreateEvaluation(ctx context.Context, eval *domain.Evaluation) (*domain.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := newRecord(eval)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.evals[rec.AccountID] = append(r.evals[rec.AccountID], rec)
	r.mu.Unlock()

	out := *rec
	return &out, nil
}

// ListEvaluations returns up to limit evaluations for an account, newest first.
func (r *MemoryRepository) ListEvaluations(ctx context.Context, accountID string, limit int) ([]*domain.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	r.mu.RLock()
	stored := r.evals[accountID]
	out := make([]*domain.Evaluation, 0, len(stored))
	for _, e := range stored {
		cp := *e
		out = append(out, &cp)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EvaluationDate.Equal(out[j].EvaluationDate) {
			return out[i].EvaluationDate.After(out[j].EvaluationDate)
		}
		return out[i].ID > out[j].ID
	})

	if n := clampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Ping always succeeds.
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (r *MemoryRepository) Close() error {
	return nil
}
