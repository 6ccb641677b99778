// Package freshness reports accounts whose health evaluation is missing or stale.
package freshness

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
)

// Status of a pending account.
type Status string

const (
	StatusNeverEvaluated Status = "never evaluated"
	StatusStale          Status = "stale"
)

// MaxAccounts bounds a single Pending call.
const MaxAccounts = 500

// LatestReader is the read accessor Pending depends on.
type LatestReader interface {
	Latest(ctx context.Context, accountID string) (*domain.Evaluation, error)
}

// Entry is an account that needs a new evaluation.
type Entry struct {
	AccountID       string                `json:"accountId"`
	Status          Status                `json:"status"`
	LastEvaluatedAt *time.Time            `json:"lastEvaluatedAt,omitempty"`
	LastScore       *int                  `json:"lastScore,omitempty"`
	Classification  domain.Classification `json:"classification,omitempty"`
}

// Service computes pending-evaluation reminders.
type Service struct {
	reader     LatestReader
	maxWorkers int
	now        func() time.Time
}

// NewService creates a freshness service.
func NewService(reader LatestReader, maxWorkers int) *Service {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Service{reader: reader, maxWorkers: maxWorkers, now: time.Now}
}

// Pending returns the accounts among accountIDs whose latest evaluation is
// absent or older than maxAge, ordered by account id. Blank and repeated ids
// are ignored.
func (s *Service) Pending(ctx context.Context, accountIDs []string, maxAge time.Duration) ([]Entry, error) {
	if maxAge <= 0 {
		return nil, domain.NewValidationError("maxAge", "must be positive")
	}

	ids := uniqueIDs(accountIDs)
	if len(ids) > MaxAccounts {
		return nil, domain.NewValidationError("accounts", "at most %d accounts per request", MaxAccounts)
	}

	cutoff := s.now().Add(-maxAge)
	entries := make([]*Entry, len(ids))
	errs := make([]error, len(ids))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxWorkers)

	for i, id := range ids {
		wg.Add(1)
		go func(idx int, accountID string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}

			latest, err := s.reader.Latest(ctx, accountID)
			if err != nil {
				errs[idx] = err
				return
			}
			entries[idx] = check(accountID, latest, cutoff)
		}(i, id)
	}
	wg.Wait()

	pending := []Entry{}
	for i := range ids {
		if errs[i] != nil {
			return nil, errs[i]
		}
		if entries[i] != nil {
			pending = append(pending, *entries[i])
		}
	}
	return pending, nil
}

func check(accountID string, latest *domain.Evaluation, cutoff time.Time) *Entry {
	if latest == nil {
		return &Entry{AccountID: accountID, Status: StatusNeverEvaluated}
	}
	if !latest.EvaluationDate.Before(cutoff) {
		return nil
	}

	at := latest.EvaluationDate
	score := latest.TotalScore
	return &Entry{
		AccountID:       accountID,
		Status:          StatusStale,
		LastEvaluatedAt: &at,
		LastScore:       &score,
		Classification:  latest.Classification,
	}
}

func uniqueIDs(accountIDs []string) []string {
	seen := make(map[string]bool, len(accountIDs))
	ids := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
