package evaluation

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
)

// History page bounds.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// DefaultLatestTTL is used when NewReader is given a zero TTL.
const DefaultLatestTTL = 10 * time.Minute

// Reader serves the latest evaluation and bounded history per account.
// Absence is (nil, nil) or an empty slice, never an error.
type Reader struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration

	// unsynced holds, per account, the newest record whose cache write
	// failed. While an account is listed here its cache entry is ignored.
	mu       sync.Mutex
	unsynced map[string]*domain.Evaluation
}

// NewReader creates a reader. cache may be nil.
func NewReader(repo domain.Repository, cache domain.Cache, ttl time.Duration) *Reader {
	if ttl <= 0 {
		ttl = DefaultLatestTTL
	}
	return &Reader{
		repo:     repo,
		cache:    cache,
		ttl:      ttl,
		unsynced: make(map[string]*domain.Evaluation),
	}
}

// Latest returns the account's most recent evaluation, or nil if it has none.
func (r *Reader) Latest(ctx context.Context, accountID string) (*domain.Evaluation, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, domain.NewValidationError("accountId", "is required")
	}

	useCache := r.cache != nil && !r.isUnsynced(accountID)
	if useCache {
		cached, err := r.cache.GetLatest(ctx, accountID)
		if err != nil {
			slog.Warn("latest cache read failed", "account_id", accountID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	evals, err := r.repo.ListEvaluations(ctx, accountID, 1)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "latest evaluation", Err: err}
	}

	latest := mostRecent(evals)
	if latest != nil && useCache {
		r.fill(ctx, latest)
	}
	return latest, nil
}

// History returns up to limit evaluations, most recent first.
// limit <= 0 selects DefaultHistoryLimit; larger values are capped.
func (r *Reader) History(ctx context.Context, accountID string, limit int) ([]*domain.Evaluation, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, domain.NewValidationError("accountId", "is required")
	}

	limit = NormalizeLimit(limit)

	evals, err := r.repo.ListEvaluations(ctx, accountID, limit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list evaluations", Err: err}
	}

	SortMostRecentFirst(evals)
	if len(evals) > limit {
		evals = evals[:limit]
	}
	if evals == nil {
		evals = []*domain.Evaluation{}
	}
	return evals, nil
}

// NormalizeLimit applies the history page bounds.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

// SortMostRecentFirst orders by evaluation date descending, ties by ID descending.
func SortMostRecentFirst(evals []*domain.Evaluation) {
	sort.SliceStable(evals, func(i, j int) bool {
		return newer(evals[i], evals[j])
	})
}

func newer(a, b *domain.Evaluation) bool {
	if !a.EvaluationDate.Equal(b.EvaluationDate) {
		return a.EvaluationDate.After(b.EvaluationDate)
	}
	return a.ID > b.ID
}

func mostRecent(evals []*domain.Evaluation) *domain.Evaluation {
	var best *domain.Evaluation
	for _, e := range evals {
		if best == nil || newer(e, best) {
			best = e
		}
	}
	return best
}

// record publishes a freshly written evaluation to the cache. If the cache
// cannot take it, the stale entry is dropped and the account is read from
// the repository until a later record reaches the cache.
func (r *Reader) record(ctx context.Context, eval *domain.Evaluation) {
	if r.cache == nil || eval == nil {
		return
	}

	err := r.cache.SetLatest(ctx, eval.AccountID, eval, r.ttl)
	if err == nil {
		r.markSynced(eval)
		return
	}

	r.markUnsynced(eval)
	slog.Warn("latest cache write failed, bypassing cache for account",
		"account_id", eval.AccountID,
		"evaluation_id", eval.ID,
		"error", err,
	)
	if err := r.cache.DeleteLatest(ctx, eval.AccountID); err != nil {
		slog.Warn("latest cache delete failed", "account_id", eval.AccountID, "error", err)
	}
}

// fill caches a record loaded from the repository. The cache keeps
// whichever of the two records is newer.
func (r *Reader) fill(ctx context.Context, eval *domain.Evaluation) {
	if r.isUnsynced(eval.AccountID) {
		return
	}
	if err := r.cache.SetLatest(ctx, eval.AccountID, eval, r.ttl); err != nil {
		slog.Warn("latest cache fill failed", "account_id", eval.AccountID, "error", err)
	}
}

func (r *Reader) isUnsynced(accountID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.unsynced[accountID]
	return ok
}

func (r *Reader) markUnsynced(eval *domain.Evaluation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.unsynced[eval.AccountID]; !ok || newer(eval, cur) {
		r.unsynced[eval.AccountID] = eval
	}
}

// markSynced clears the bypass once a record at least as new as the one
// that failed has reached the cache.
func (r *Reader) markSynced(eval *domain.Evaluation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.unsynced[eval.AccountID]; ok && !newer(cur, eval) {
		delete(r.unsynced, eval.AccountID)
	}
}
