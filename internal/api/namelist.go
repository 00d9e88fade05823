package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/opensource-finance/lendguard/internal/domain"
	"github.com/opensource-finance/lendguard/internal/repository"
)

// NameListRequest is the request body for a manual name list entry.
type NameListRequest struct {
	RuleID       int64               `json:"ruleId"`
	RiskLevel    int                 `json:"riskLevel"`
	ListType     domain.ListType     `json:"listType"`
	BusinessLine domain.BusinessLine `json:"businessLine"`
	RiskLabel    domain.RiskLabel    `json:"riskLabel"`
	RiskDomain   domain.RiskDomain   `json:"riskDomain"`
	Value        string              `json:"value"`
	ValueType    domain.ValueType    `json:"valueType"`
}

// ListNameList handles GET /namelist. Any of value, businessLine,
// riskDomain, riskLabel and valueType switches to a filtered search.
func (h *Handler) ListNameList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var nums [4]int
	for i, name := range []string{"businessLine", "riskDomain", "riskLabel", "valueType"} {
		n, err := intQuery(q, name)
		if err != nil {
			writeError(w, err)
			return
		}
		nums[i] = n
	}
	filter := domain.NameListFilter{
		ValueContains: strings.TrimSpace(q.Get("value")),
		BusinessLine:  domain.BusinessLine(nums[0]),
		RiskDomain:    domain.RiskDomain(nums[1]),
		RiskLabel:     domain.RiskLabel(nums[2]),
		ValueType:     domain.ValueType(nums[3]),
	}

	var (
		entries []*domain.NameListEntry
		err     error
	)
	if filter == (domain.NameListFilter{}) {
		entries, err = h.names.ListEntries(ctx)
	} else {
		entries, err = h.names.SearchEntries(ctx, filter)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// CheckHit handles GET /namelist/hit?value=...&valueType=...
// The value must match exactly.
func (h *Handler) CheckHit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	value := q.Get("value")
	if value == "" {
		writeError(w, fmt.Errorf("%w: value is required", repository.ErrInvalidInput))
		return
	}

	var vt *domain.ValueType
	if q.Get("valueType") != "" {
		n, err := intQuery(q, "valueType")
		if err != nil {
			writeError(w, err)
			return
		}
		t := domain.ValueType(n)
		vt = &t
	}

	hits, err := h.names.CheckHit(r.Context(), value, vt)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hit":     len(hits) > 0,
		"entries": hits,
	})
}

// AddNameListEntry handles POST /namelist.
func (h *Handler) AddNameListEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req NameListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	entry := &domain.NameListEntry{
		RuleID:       req.RuleID,
		RiskLevel:    req.RiskLevel,
		ListType:     req.ListType,
		BusinessLine: req.BusinessLine,
		RiskLabel:    req.RiskLabel,
		RiskDomain:   req.RiskDomain,
		Value:        strings.TrimSpace(req.Value),
		ValueType:    req.ValueType,
		Creator:      GetOperator(ctx),
	}

	entry.LogID = h.audit(ctx, "Add name list record: "+entry.Value)
	if _, err := h.names.AddEntry(ctx, entry); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("name list entry added", "id", entry.ID, "rule_id", entry.RuleID, "operator", entry.Creator)
	writeJSON(w, http.StatusCreated, entry)
}

// DeleteNameListEntry handles DELETE /namelist/{id}.
func (h *Handler) DeleteNameListEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	h.audit(ctx, fmt.Sprintf("Delete name list record %d", id))
	if err := h.names.DeleteEntry(ctx, id); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("name list entry deleted", "id", id, "operator", GetOperator(ctx))
	w.WriteHeader(http.StatusNoContent)
}

// intQuery parses an optional integer query parameter. Absent means 0.
func intQuery(q url.Values, name string) (int, error) {
	s := q.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", repository.ErrInvalidInput, name)
	}
	return n, nil
}
