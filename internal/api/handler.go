package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/evaluation"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/freshness"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/questionnaire"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/rules"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/scoring"
)

const maxBodyBytes = 64 << 10

// Dependencies are the components the API serves.
type Dependencies struct {
	Catalog       *questionnaire.Catalog
	Engine        *evaluation.Engine
	Reader        *evaluation.Reader
	Freshness     *freshness.Service
	Rules         *rules.Engine
	Repo          domain.Repository
	Cache         domain.Cache
	Bus           domain.EventBus
	PendingMaxAge time.Duration
	Version       string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps Dependencies

	// streams end when ctx is canceled on shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	if deps.PendingMaxAge <= 0 {
		deps.PendingMaxAge = 30 * 24 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{deps: deps, ctx: ctx, cancel: cancel}
}

// EvaluationRequest is the body of the evaluation endpoints. Response keys
// are question ids, either "q7" or "7".
type EvaluationRequest struct {
	Responses map[string]any `json:"responses"`
}

// EvaluationResponse is returned by POST /accounts/{accountID}/evaluations.
type EvaluationResponse struct {
	Evaluation     *domain.Evaluation    `json:"evaluation"`
	TotalScore     int                   `json:"totalScore"`
	Classification domain.Classification `json:"classification"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}

	if h.deps.Repo != nil {
		check("repository", func() error { return h.deps.Repo.Ping(r.Context()) })
	}
	if h.deps.Cache != nil {
		check("cache", func() error { return h.deps.Cache.Ping(r.Context()) })
	}
	if h.deps.Bus != nil {
		check("eventBus", func() error { return h.deps.Bus.Ping(r.Context()) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.deps.Version,
		"checks":  checks,
	})
}

// Ready reports whether evaluations can be recorded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.deps.Repo != nil {
		if err := h.deps.Repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": "repository unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// Questionnaire returns the question catalog in ascending id order.
func (h *Handler) Questionnaire(w http.ResponseWriter, r *http.Request) {
	c := h.deps.Catalog
	writeJSON(w, http.StatusOK, map[string]any{
		"questions":   c.ListQuestions(),
		"pillars":     c.Pillars(),
		"totalWeight": c.TotalWeight(),
	})
}

// CreateEvaluation scores and records a submitted questionnaire.
func (h *Handler) CreateEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := chi.URLParam(r, "accountID")

	responses, ok := decodeResponses(w, r)
	if !ok {
		return
	}

	eval, err := h.deps.Engine.Evaluate(ctx, accountID, responses, GetEvaluator(ctx))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, EvaluationResponse{
		Evaluation:     eval,
		TotalScore:     eval.TotalScore,
		Classification: eval.Classification,
	})
}

// PreviewEvaluation scores a questionnaire without recording it.
func (h *Handler) PreviewEvaluation(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	responses, ok := decodeResponses(w, r)
	if !ok {
		return
	}

	result, err := h.deps.Engine.Score(accountID, responses)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// LatestEvaluation returns the account's most recent evaluation. An account
// without evaluations is reported as unknown, never as a zero score.
func (h *Handler) LatestEvaluation(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	eval, err := h.deps.Reader.Latest(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	if eval == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"accountId": accountID,
			"status":    "unknown",
		})
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

// ListEvaluations returns the account's evaluation history, newest first.
func (h *Handler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	evals, err := h.deps.Reader.History(r.Context(), accountID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accountId":   accountID,
		"evaluations": evals,
		"count":       len(evals),
		"limit":       evaluation.NormalizeLimit(limit),
	})
}

// PendingEvaluations lists accounts that were never evaluated or whose
// latest evaluation is older than maxAgeDays.
func (h *Handler) PendingEvaluations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var accounts []string
	for _, v := range q["accounts"] {
		accounts = append(accounts, strings.Split(v, ",")...)
	}

	maxAge := h.deps.PendingMaxAge
	if raw := q.Get("maxAgeDays"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "maxAgeDays must be a positive integer",
			})
			return
		}
		maxAge = time.Duration(days) * 24 * time.Hour
	}

	pending, err := h.deps.Freshness.Pending(r.Context(), accounts, maxAge)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
		"count":   len(pending),
		"maxAge":  maxAge.String(),
	})
}

// ListAlertRules returns the loaded alert rules.
func (h *Handler) ListAlertRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.deps.Rules.LoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

func decodeResponses(w http.ResponseWriter, r *http.Request) (domain.ResponseSet, bool) {
	var req EvaluationRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return nil, false
	}

	responses, err := scoring.ParseResponses(req.Responses)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return responses, true
}

// writeError maps domain errors to status codes. A persistence failure keeps
// the computed result so the client can display it and retry.
func writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	var perr *domain.PersistenceError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": verr.Error(),
			"field": verr.Field,
		})
	case errors.As(err, &perr):
		body := map[string]any{
			"error": "storage unavailable",
			"retry": true,
		}
		if perr.Result != nil {
			body["error"] = "evaluation could not be saved"
			body["result"] = perr.Result
		}
		slog.Error("persistence failure", "op", perr.Op, "error", perr.Err)
		writeJSON(w, http.StatusServiceUnavailable, body)
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"error":"internal server error"}` + "\n")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
