// Package evaluation records scored health evaluations and reads them back.
package evaluation

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/scoring"
)

var tracer = otel.Tracer("healthscore-evaluation")

// DefaultWriteTimeout bounds a detached persistence write.
const DefaultWriteTimeout = 15 * time.Second

// Engine scores a response set and hands the record to persistence.
// It keeps no per-account state; concurrent submissions for one account
// both persist.
type Engine struct {
	scorer       *scoring.Scorer
	repo         domain.Repository
	reader       *Reader
	bus          domain.EventBus
	writeTimeout time.Duration
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithReader keeps the reader's latest view current after each write.
func WithReader(r *Reader) Option {
	return func(e *Engine) { e.reader = r }
}

// WithEventBus publishes TopicEvaluationRecorded after each write.
func WithEventBus(b domain.EventBus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithWriteTimeout overrides DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.writeTimeout = d
		}
	}
}

// WithClock sets the source of evaluation dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine that persists through repo.
func NewEngine(scorer *scoring.Scorer, repo domain.Repository, opts ...Option) *Engine {
	e := &Engine{
		scorer:       scorer,
		repo:         repo,
		writeTimeout: DefaultWriteTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score computes the result without persisting anything.
func (e *Engine) Score(accountID string, responses domain.ResponseSet) (domain.Result, error) {
	if strings.TrimSpace(accountID) == "" {
		return domain.Result{}, domain.NewValidationError("accountId", "is required")
	}
	return e.scorer.Score(responses)
}

// Evaluate validates and scores responses, then creates exactly one record.
//
// Validation failures return a *domain.ValidationError and nothing is written.
// A storage failure returns a *domain.PersistenceError carrying the computed
// result. The write runs detached from ctx cancellation, bounded by the write
// timeout, so an abandoned request still records its evaluation.
func (e *Engine) Evaluate(ctx context.Context, accountID string, responses domain.ResponseSet, evaluatedBy string) (*domain.Evaluation, error) {
	ctx, span := tracer.Start(ctx, "evaluation.Evaluate",
		trace.WithAttributes(attribute.String("account.id", accountID)),
	)
	defer span.End()

	accountID = strings.TrimSpace(accountID)
	evaluatedBy = strings.TrimSpace(evaluatedBy)

	if accountID == "" {
		return nil, e.reject(span, domain.NewValidationError("accountId", "is required"))
	}
	if evaluatedBy == "" {
		return nil, e.reject(span, domain.NewValidationError("evaluatedBy", "is required"))
	}

	result, err := e.scorer.Score(responses)
	if err != nil {
		return nil, e.reject(span, err)
	}

	span.SetAttributes(
		attribute.Int("evaluation.total_score", result.TotalScore),
		attribute.String("evaluation.classification", string(result.Classification)),
		attribute.Int("evaluation.response_count", len(responses)),
	)

	record := &domain.Evaluation{
		AccountID:      accountID,
		EvaluatedBy:    evaluatedBy,
		EvaluationDate: e.now().UTC(),
		Responses:      scoring.StorageResponses(responses),
		TotalScore:     result.TotalScore,
		PilarScores:    result.PilarScores,
		Classification: result.Classification,
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.writeTimeout)
	defer cancel()

	created, err := e.repo.CreateEvaluation(writeCtx, record)
	if err != nil {
		slog.Error("failed to persist evaluation",
			"account_id", accountID,
			"total_score", result.TotalScore,
			"classification", result.Classification,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return nil, &domain.PersistenceError{Op: "create evaluation", Result: &result, Err: err}
	}

	span.SetAttributes(attribute.String("evaluation.id", created.ID))

	if e.reader != nil {
		e.reader.record(writeCtx, created)
	}
	e.publish(writeCtx, created)

	slog.Info("evaluation recorded",
		"evaluation_id", created.ID,
		"account_id", created.AccountID,
		"total_score", created.TotalScore,
		"classification", created.Classification,
	)

	return created, nil
}

func (e *Engine) reject(span trace.Span, err error) error {
	span.SetStatus(codes.Error, "validation failed")
	slog.Debug("evaluation rejected", "error", err)
	return err
}

// publish announces a durable record. Failure is logged only: the record
// already exists and the caller must not retry it.
func (e *Engine) publish(ctx context.Context, eval *domain.Evaluation) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(eval)
	if err != nil {
		slog.Error("failed to encode evaluation event", "evaluation_id", eval.ID, "error", err)
		return
	}
	if err := e.bus.Publish(ctx, domain.TopicEvaluationRecorded, payload); err != nil {
		slog.Warn("failed to publish evaluation event",
			"evaluation_id", eval.ID,
			"account_id", eval.AccountID,
			"error", err,
		)
	}
}
