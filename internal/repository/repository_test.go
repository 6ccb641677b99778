package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
)

func sampleEvaluation(accountID string, at time.Time, score int) *domain.Evaluation {
	return &domain.Evaluation{
		AccountID:      accountID,
		EvaluatedBy:    "csm@example.com",
		EvaluationDate: at,
		Responses:      map[string]float64{"q1": float64(score), "q3": float64(score)},
		TotalScore:     score,
		PilarScores:    map[string]int{"Adoption & Engagement": score, "Value Realization": score},
		Classification: domain.ClassificationHealthy,
	}
}

// exerciseRepository runs the shared contract against any implementation.
func exerciseRepository(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("CreateAssignsID", func(t *testing.T) {
		in := sampleEvaluation("acc-create", base, 80)
		created, err := repo.CreateEvaluation(ctx, in)
		if err != nil {
			t.Fatalf("CreateEvaluation failed: %v", err)
		}
		if created.ID == "" {
			t.Error("expected store-assigned ID")
		}
		if in.ID != "" {
			t.Error("input must not be mutated")
		}
		if !created.EvaluationDate.Equal(base) {
			t.Errorf("expected date %v, got %v", base, created.EvaluationDate)
		}
	})

	t.Run("CreateStampsZeroDate", func(t *testing.T) {
		before := time.Now().Add(-time.Second)
		created, err := repo.CreateEvaluation(ctx, sampleEvaluation("acc-stamp", time.Time{}, 50))
		if err != nil {
			t.Fatalf("CreateEvaluation failed: %v", err)
		}
		if created.EvaluationDate.Before(before) {
			t.Errorf("expected stamped date, got %v", created.EvaluationDate)
		}
	})

	t.Run("RequiresAccountID", func(t *testing.T) {
		_, err := repo.CreateEvaluation(ctx, sampleEvaluation("", base, 10))
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		_, err = repo.ListEvaluations(ctx, "", 10)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		account := "acc-list"
		for i, score := range []int{40, 60, 90} {
			if _, err := repo.CreateEvaluation(ctx, sampleEvaluation(account, base.Add(time.Duration(i)*time.Hour), score)); err != nil {
				t.Fatalf("CreateEvaluation failed: %v", err)
			}
		}

		evals, err := repo.ListEvaluations(ctx, account, 10)
		if err != nil {
			t.Fatalf("ListEvaluations failed: %v", err)
		}
		if len(evals) != 3 {
			t.Fatalf("expected 3 evaluations, got %d", len(evals))
		}
		if evals[0].TotalScore != 90 || evals[2].TotalScore != 40 {
			t.Errorf("expected newest first, got %d..%d", evals[0].TotalScore, evals[2].TotalScore)
		}
		if evals[0].Responses["q1"] != 90 {
			t.Errorf("expected responses round-trip, got %v", evals[0].Responses)
		}
		if evals[0].PilarScores["Value Realization"] != 90 {
			t.Errorf("expected pillar scores round-trip, got %v", evals[0].PilarScores)
		}
		if evals[0].Classification != domain.ClassificationHealthy {
			t.Errorf("expected classification round-trip, got %s", evals[0].Classification)
		}
	})

	t.Run("ListRespectsLimit", func(t *testing.T) {
		evals, err := repo.ListEvaluations(ctx, "acc-list", 2)
		if err != nil {
			t.Fatalf("ListEvaluations failed: %v", err)
		}
		if len(evals) != 2 {
			t.Errorf("expected 2 evaluations, got %d", len(evals))
		}
	})

	t.Run("AccountIsolation", func(t *testing.T) {
		evals, err := repo.ListEvaluations(ctx, "acc-never", 10)
		if err != nil {
			t.Fatalf("ListEvaluations failed: %v", err)
		}
		if len(evals) != 0 {
			t.Errorf("expected no evaluations, got %d", len(evals))
		}
	})
}

func TestSQLiteRepository(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "healthscore-test.db"),
	}

	repo, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	exerciseRepository(t, repo)

	t.Run("SubSecondOrdering", func(t *testing.T) {
		ctx := context.Background()
		base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
		// Stored text lengths differ: "...:00", "...:00.4", "...:00.45", "...:00.5".
		offsets := []time.Duration{
			450 * time.Millisecond,
			0,
			500 * time.Millisecond,
			400 * time.Millisecond,
		}
		for i, off := range offsets {
			if _, err := repo.CreateEvaluation(ctx, sampleEvaluation("acc-frac", base.Add(off), i)); err != nil {
				t.Fatalf("CreateEvaluation failed: %v", err)
			}
		}

		evals, err := repo.ListEvaluations(ctx, "acc-frac", 10)
		if err != nil {
			t.Fatalf("ListEvaluations failed: %v", err)
		}
		want := []time.Duration{500 * time.Millisecond, 450 * time.Millisecond, 400 * time.Millisecond, 0}
		if len(evals) != len(want) {
			t.Fatalf("expected %d evaluations, got %d", len(want), len(evals))
		}
		for i, off := range want {
			if !evals[i].EvaluationDate.Equal(base.Add(off)) {
				t.Errorf("position %d: expected %v, got %v", i, base.Add(off), evals[i].EvaluationDate)
			}
		}
	})
}

func TestMemoryRepository(t *testing.T) {
	repo, err := New(context.Background(), domain.RepositoryConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	exerciseRepository(t, repo)

	t.Run("TiesBrokenByID", func(t *testing.T) {
		ctx := context.Background()
		at := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
		a, _ := repo.CreateEvaluation(ctx, sampleEvaluation("acc-tie", at, 10))
		b, _ := repo.CreateEvaluation(ctx, sampleEvaluation("acc-tie", at, 20))

		evals, err := repo.ListEvaluations(ctx, "acc-tie", 10)
		if err != nil {
			t.Fatalf("ListEvaluations failed: %v", err)
		}
		want := a.ID
		if b.ID > a.ID {
			want = b.ID
		}
		if evals[0].ID != want {
			t.Errorf("expected higher id %s first, got %s", want, evals[0].ID)
		}
	})

	t.Run("CanceledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := repo.CreateEvaluation(ctx, sampleEvaluation("acc-x", time.Now(), 1)); err == nil {
			t.Error("expected error for canceled context")
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(context.Background(), domain.RepositoryConfig{Driver: "oracle"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestDriversRequireConnectionString(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, domain.RepositoryConfig{Driver: "pgx"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("pgx: expected ErrInvalidInput, got %v", err)
	}
	if _, err := New(ctx, domain.RepositoryConfig{Driver: "mongo"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("mongo: expected ErrInvalidInput, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?")
	want := "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	lite := &SQLRepository{driver: "sqlite"}
	if q := lite.rebind("a = ?"); q != "a = ?" {
		t.Errorf("sqlite query must be unchanged, got %q", q)
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		got := postgresDSN(domain.RepositoryConfig{PostgresUser: "u", PostgresPassword: "p"})
		want := "host=localhost port=5432 user=u password=p dbname=healthscore sslmode=disable"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("ExplicitDSN", func(t *testing.T) {
		dsn := "postgres://u:p@db:5432/hs?sslmode=require"
		if got := postgresDSN(domain.RepositoryConfig{PostgresDSN: dsn}); got != dsn {
			t.Errorf("expected %q, got %q", dsn, got)
		}
	})
}
