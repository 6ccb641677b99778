package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/bus"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/rules"
)

func newTestEngine(t *testing.T) *rules.Engine {
	t.Helper()
	engine, err := rules.NewEngine(2)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.ReloadRules(rules.DefaultRules()); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	return engine
}

func collectAlerts(t *testing.T, b domain.EventBus) <-chan domain.Alert {
	t.Helper()
	ch := make(chan domain.Alert, 16)
	_, err := b.Subscribe(context.Background(), domain.TopicHealthAlert, func(ctx context.Context, msg *domain.Message) error {
		var a domain.Alert
		if err := json.Unmarshal(msg.Payload, &a); err != nil {
			return err
		}
		ch <- a
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	return ch
}

func publishEvaluation(t *testing.T, b domain.EventBus, eval *domain.Evaluation) {
	t.Helper()
	payload, _ := json.Marshal(eval)
	if err := b.Publish(context.Background(), domain.TopicEvaluationRecorded, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	engine := newTestEngine(t)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, engine)
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 || stats.Topics[0] != domain.TopicEvaluationRecorded {
			t.Errorf("unexpected stats after start: %+v", stats)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
		if n := eventBus.SubscriberCount(domain.TopicEvaluationRecorded); n != 0 {
			t.Errorf("expected bus subscription removed, got %d", n)
		}
	})

	t.Run("CriticalEvaluationRaisesAlert", func(t *testing.T) {
		w := NewWorker(eventBus, engine)
		_ = w.Start()
		defer w.Stop()

		alerts := collectAlerts(t, eventBus)

		publishEvaluation(t, eventBus, &domain.Evaluation{
			ID:             "eval-critical",
			AccountID:      "acc-001",
			EvaluatedBy:    "csm",
			TotalScore:     25,
			PilarScores:    map[string]int{"Adoption & Engagement": 25},
			Classification: domain.ClassificationCritical,
			Responses:      map[string]float64{"q1": 25},
		})

		got := map[string]bool{}
		timeout := time.After(2 * time.Second)
		for len(got) < 2 {
			select {
			case a := <-alerts:
				got[a.RuleID] = true
				if a.EvaluationID != "eval-critical" {
					t.Errorf("unexpected evaluation id %s", a.EvaluationID)
				}
			case <-timeout:
				t.Fatalf("timed out waiting for alerts, got %v", got)
			}
		}
		if !got["account-critical"] || !got["pillar-collapse"] {
			t.Errorf("expected account-critical and pillar-collapse, got %v", got)
		}
	})

	t.Run("InvalidPayload", func(t *testing.T) {
		w := NewWorker(eventBus, engine)
		err := w.handleMessage(context.Background(), &domain.Message{ID: "m1", Payload: []byte("{")})
		if err == nil {
			t.Error("expected parse error")
		}
		if w.GetStats().Failures != 1 {
			t.Errorf("expected 1 failure, got %d", w.GetStats().Failures)
		}
	})
}

func TestProcess(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, newTestEngine(t))

	t.Run("HealthyRaisesNothing", func(t *testing.T) {
		alerts, err := w.Process(context.Background(), &domain.Evaluation{
			ID:             "eval-healthy",
			AccountID:      "acc-002",
			TotalScore:     80,
			PilarScores:    map[string]int{"Relationship": 80},
			Classification: domain.ClassificationHealthy,
		})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if len(alerts) != 0 {
			t.Errorf("expected no alerts, got %+v", alerts)
		}
	})

	t.Run("ChampionCounted", func(t *testing.T) {
		alerts, err := w.Process(context.Background(), &domain.Evaluation{
			ID:             "eval-champion",
			AccountID:      "acc-003",
			TotalScore:     95,
			PilarScores:    map[string]int{"Relationship": 95},
			Classification: domain.ClassificationChampion,
		})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if len(alerts) != 1 || alerts[0].Severity != domain.SeverityInfo {
			t.Errorf("expected one info alert, got %+v", alerts)
		}

		stats := w.GetStats()
		if stats.Processed != 2 || stats.AlertsRaised != 1 {
			t.Errorf("unexpected stats: %+v", stats)
		}
	})
}
