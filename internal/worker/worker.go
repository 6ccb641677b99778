// Package worker raises health alerts for recorded evaluations in the background.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/rules"
)

// Worker consumes evaluation events from the EventBus, runs the alert rules
// and publishes every raised alert.
type Worker struct {
	bus    domain.EventBus
	engine *rules.Engine

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	raised    atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a new alert worker.
func NewWorker(bus domain.EventBus, engine *rules.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		engine: engine,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to recorded evaluations.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicEvaluationRecorded, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("alert worker started",
		"topic", domain.TopicEvaluationRecorded,
		"rules", w.engine.RulesCount(),
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var eval domain.Evaluation
	if err := json.Unmarshal(msg.Payload, &eval); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse evaluation message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	_, err := w.Process(ctx, &eval)
	return err
}

// Process evaluates the alert rules against eval and publishes the alerts that
// fired. Alerts from rules that succeeded are published even when other rules
// fail.
func (w *Worker) Process(ctx context.Context, eval *domain.Evaluation) ([]domain.Alert, error) {
	start := time.Now()
	w.processed.Add(1)

	alerts, evalErr := w.engine.Evaluate(ctx, eval)
	if evalErr != nil {
		w.failed.Add(1)
		slog.Error("alert rule evaluation failed",
			"evaluation_id", eval.ID,
			"account_id", eval.AccountID,
			"error", evalErr,
		)
	}

	for _, alert := range alerts {
		payload, err := json.Marshal(alert)
		if err != nil {
			return alerts, fmt.Errorf("failed to encode alert: %w", err)
		}
		if err := w.bus.Publish(ctx, domain.TopicHealthAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"rule_id", alert.RuleID,
				"account_id", alert.AccountID,
				"error", err,
			)
			continue
		}
		w.raised.Add(1)
	}

	slog.Debug("evaluation checked",
		"evaluation_id", eval.ID,
		"account_id", eval.AccountID,
		"classification", eval.Classification,
		"alerts", len(alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return alerts, evalErr
}

// Stop unsubscribes and stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("alert worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	AlertsRaised      int64    `json:"alertsRaised"`
	Failures          int64    `json:"failures"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	return Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		Processed:         w.processed.Load(),
		AlertsRaised:      w.raised.Load(),
		Failures:          w.failed.Load(),
	}
}
