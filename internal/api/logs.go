package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/opensource-finance/lendguard/internal/domain"
	"github.com/opensource-finance/lendguard/internal/repository"
)

// ListLogs handles GET /logs. ?keyword= and ?isDone= switch to a search.
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var filter domain.AuditFilter
	filter.Keyword = q.Get("keyword")
	if s := q.Get("isDone"); s != "" {
		done, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, fmt.Errorf("%w: isDone must be a boolean", repository.ErrInvalidInput))
			return
		}
		filter.IsDone = &done
	}

	var (
		logs []*domain.AuditLogEntry
		err  error
	)
	if filter.Keyword == "" && filter.IsDone == nil {
		logs, err = h.repo.ListLogs(ctx)
	} else {
		logs, err = h.repo.SearchLogs(ctx, filter)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

// PendingLogs handles GET /logs/pending.
func (h *Handler) PendingLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.repo.PendingWarnings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

// MarkLogDone handles POST /logs/{logId}/done.
func (h *Handler) MarkLogDone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := idParam(r, "logId")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.MarkDone(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	h.audit(ctx, fmt.Sprintf("Mark log %d as done", id))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logId":  id,
		"isDone": true,
	})
}

// DeleteLog handles DELETE /logs/{logId}.
func (h *Handler) DeleteLog(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "logId")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.DeleteLog(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
