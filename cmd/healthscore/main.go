// Healthscore - customer health score evaluation service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/api"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/bus"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/cache"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/evaluation"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/freshness"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/questionnaire"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/repository"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/rules"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/scoring"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := domain.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting healthscore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"jwt", cfg.Auth.JWTSecret != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("healthscore failed", "error", err)
		os.Exit(1)
	}
	slog.Info("healthscore shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	catalog, err := questionnaire.Load(cfg.Engine.QuestionnairePath)
	if err != nil {
		return fmt.Errorf("failed to load questionnaire: %w", err)
	}
	slog.Info("questionnaire ready", "questions", catalog.Len(), "pillars", len(catalog.Pillars()))

	repo, err := repository.New(ctx, cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	if cacheImpl != nil {
		defer cacheImpl.Close()
	}
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	reader := evaluation.NewReader(repo, cacheImpl, cfg.Cache.LatestTTL)
	engine := evaluation.NewEngine(scoring.NewScorer(catalog), repo,
		evaluation.WithReader(reader),
		evaluation.WithEventBus(busImpl),
		evaluation.WithWriteTimeout(cfg.Engine.WriteTimeout),
	)

	ruleEngine, err := newRuleEngine(cfg.Engine.AlertRulesPath)
	if err != nil {
		return err
	}
	slog.Info("alert rules loaded", "rules_count", ruleEngine.RulesCount())

	var alertWorker *worker.Worker
	if cfg.Engine.AlertWorker {
		alertWorker = worker.NewWorker(busImpl, ruleEngine)
		if err := alertWorker.Start(); err != nil {
			return fmt.Errorf("failed to start alert worker: %w", err)
		}
	}

	srv := api.NewServer(cfg.Server, cfg.Auth, api.Dependencies{
		Catalog:       catalog,
		Engine:        engine,
		Reader:        reader,
		Freshness:     freshness.NewService(reader, 8),
		Rules:         ruleEngine,
		Repo:          repo,
		Cache:         cacheImpl,
		Bus:           busImpl,
		PendingMaxAge: cfg.Engine.PendingMaxAge,
		Version:       Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("healthscore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// stop accepting writes before the worker loses its subscription
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if alertWorker != nil {
		if err := alertWorker.Stop(); err != nil {
			slog.Error("failed to stop alert worker", "error", err)
		}
	}
	return nil
}

func newRuleEngine(path string) (*rules.Engine, error) {
	engine, err := rules.NewEngine(0)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rule engine: %w", err)
	}

	ruleSet := rules.DefaultRules()
	if path != "" {
		if ruleSet, err = rules.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := engine.ReloadRules(ruleSet); err != nil {
		return nil, fmt.Errorf("failed to load alert rules: %w", err)
	}
	return engine, nil
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
