package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/opensource-finance/lendguard/internal/domain"
	"github.com/opensource-finance/lendguard/internal/repository"
)

// RuleRequest is the request body for creating or updating a rule.
// Omitted fields keep their current value on update.
type RuleRequest struct {
	Name       *string `json:"name"`
	Expression *string `json:"expression"`
	Priority   *string `json:"priority"`
	IsExternal *bool   `json:"isExternal"`
	Enabled    *bool   `json:"enabled"`
}

// apply merges the request into rule and validates the result.
func (req *RuleRequest) apply(rule *domain.Rule, v ExpressionValidator) error {
	if req.Name != nil {
		rule.Name = strings.TrimSpace(*req.Name)
	}
	if req.Expression != nil {
		rule.Expression = strings.TrimSpace(*req.Expression)
	}
	if req.Priority != nil {
		p, err := domain.ParsePriority(*req.Priority)
		if err != nil {
			return fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
		}
		rule.Priority = p
	}
	if req.IsExternal != nil {
		rule.IsExternal = *req.IsExternal
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if rule.Name == "" || rule.Expression == "" {
		return fmt.Errorf("%w: name and expression are required", repository.ErrInvalidInput)
	}
	if v != nil {
		if err := v.Validate(rule.Expression); err != nil {
			return fmt.Errorf("%w: invalid rule expression: %v", repository.ErrInvalidInput, err)
		}
	}
	return nil
}

// ListRules handles GET /rules. ?active=true lists the evaluation order;
// ?ruleId= and ?name= search.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		list []*domain.Rule
		err  error
	)
	switch {
	case q.Get("active") == "true":
		list, err = h.repo.ListActiveRules(ctx)
	case q.Get("ruleId") != "" || q.Get("name") != "":
		filter := domain.RuleFilter{NameContains: q.Get("name")}
		if s := q.Get("ruleId"); s != "" {
			filter.RuleID, err = strconv.ParseInt(s, 10, 64)
			if err != nil {
				writeError(w, fmt.Errorf("%w: ruleId must be an integer", repository.ErrInvalidInput))
				return
			}
		}
		list, err = h.repo.SearchRules(ctx, filter)
	default:
		list, err = h.repo.ListRules(ctx)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": list,
		"count": len(list),
	})
}

// GetRule handles GET /rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	rule, err := h.repo.GetRule(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /rules. The audit entry is written first and the
// rule records its ID.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	rule := &domain.Rule{
		Priority: domain.PriorityMedium,
		Enabled:  true,
		Creator:  GetOperator(ctx),
	}
	if err := req.apply(rule, h.validator); err != nil {
		writeError(w, err)
		return
	}

	rule.LogID = h.audit(ctx, "Create rule: "+rule.Name)
	if _, err := h.repo.AddRule(ctx, rule); err != nil {
		writeError(w, err)
		return
	}
	h.invalidateRules(r)

	slog.Info("rule created", "rule_id", rule.ID, "name", rule.Name, "operator", rule.Creator)
	writeJSON(w, http.StatusCreated, rule)
}

// UpdateRule handles PUT /rules/{id}.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	rule, err := h.repo.GetRule(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := req.apply(rule, h.validator); err != nil {
		writeError(w, err)
		return
	}

	h.audit(ctx, fmt.Sprintf("Update rule %d", id))
	if err := h.repo.UpdateRule(ctx, rule); err != nil {
		writeError(w, err)
		return
	}
	h.invalidateRules(r)

	slog.Info("rule updated", "rule_id", id, "operator", GetOperator(ctx))
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /rules/{id}. A rule that still has name list
// entries is refused with 409.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	h.audit(ctx, fmt.Sprintf("Delete rule %d", id))
	if err := h.repo.DeleteRule(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	h.invalidateRules(r)

	slog.Info("rule deleted", "rule_id", id, "operator", GetOperator(ctx))
	w.WriteHeader(http.StatusNoContent)
}

// RuleStats handles GET /rules/stats.
func (h *Handler) RuleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	byRule, err := h.repo.RuleHitCounts(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	byLine, err := h.repo.RuleHitCountsByBusinessLine(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"byRule":         byRule,
		"byBusinessLine": byLine,
	})
}

func (h *Handler) invalidateRules(r *http.Request) {
	if h.rules != nil {
		h.rules.Invalidate(r.Context())
	}
}
