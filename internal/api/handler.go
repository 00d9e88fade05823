package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/lendguard/internal/domain"
	"github.com/opensource-finance/lendguard/internal/repository"
)

// Evaluator scores one applicant on behalf of an operator.
type Evaluator interface {
	Evaluate(ctx context.Context, actor string, profile *domain.ApplicantProfile) (*domain.EvaluationResponse, error)
}

// RuleCache drops any cached active rule set after a rule mutation.
type RuleCache interface {
	Invalidate(ctx context.Context)
}

// ExpressionValidator rejects rule expressions that can never trigger.
type ExpressionValidator interface {
	Validate(expr string) error
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	names     domain.NameListStore
	rules     RuleCache
	validator ExpressionValidator
	evaluator Evaluator
	cache     domain.Cache
	bus       domain.EventBus
	version   string
}

// NewHandler creates a new API handler. Names defaults to the repository.
func NewHandler(deps Deps) *Handler {
	names := deps.Names
	if names == nil {
		names = deps.Repo
	}
	return &Handler{
		repo:      deps.Repo,
		names:     names,
		rules:     deps.Rules,
		validator: deps.Validator,
		evaluator: deps.Evaluator,
		cache:     deps.Cache,
		bus:       deps.Bus,
		version:   deps.Version,
	}
}

// Evaluate handles POST /evaluate requests.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	resp, err := h.evaluator.Evaluate(ctx, GetOperator(ctx), req.ToProfile())
	if resp != nil && resp.Metadata.TraceID == "" {
		resp.Metadata.TraceID = GetTraceID(ctx)
	}

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, resp)
	case err != nil:
		writeError(w, err)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// SubmitApplication handles POST /applications. The application is queued
// on the event bus and evaluated by the worker.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var req domain.EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	msg := domain.ApplicationMessage{
		Operator: GetOperator(ctx),
		TraceID:  GetTraceID(ctx),
		Request:  req,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicApplicationSubmitted, payload); err != nil {
		slog.Error("failed to queue application", "trace_id", msg.TraceID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to queue application",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"traceId": msg.TraceID,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}

	if h.repo != nil {
		check("repository", h.repo.Ping)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("bus", h.bus.Ping)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready reports whether the repository can serve traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
		return
	}
	if err := h.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// audit appends an operator action to the audit log and returns its ID.
// A failed write is logged and yields 0.
func (h *Handler) audit(ctx context.Context, operation string) int64 {
	id, err := h.repo.AppendLog(ctx, &domain.AuditLogEntry{
		Operator:  GetOperator(ctx),
		Operation: operation,
		IsDone:    true,
	})
	if err != nil {
		slog.Error("failed to write audit entry",
			"operation", operation,
			"operator", GetOperator(ctx),
			"error", err,
		)
		return 0
	}
	return id
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", repository.ErrInvalidInput, name)
	}
	return id, nil
}

// writeError maps store and service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, repository.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, repository.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, repository.ErrRuleInUse):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrRulesUnavailable):
		status, msg = http.StatusServiceUnavailable, domain.ErrRulesUnavailable.Error()
	default:
		slog.Error("request failed", "error", err)
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
