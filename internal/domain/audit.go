package domain

import (
	"context"
	"time"
)

// AuditLogEntry is one record of the operator/action/outcome trail.
type AuditLogEntry struct {
	LogID         int64     `json:"logId"`
	Operator      string    `json:"operator"`
	Operation     string    `json:"operation"`
	ErrorInfo     string    `json:"errorInfo,omitempty"`
	ExceptionInfo string    `json:"exceptionInfo,omitempty"`
	IsWarning     bool      `json:"isWarning"`
	IsDone        bool      `json:"isDone"`
	WarningType   string    `json:"warningType"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AuditFilter narrows SearchLogs. Zero values are ignored.
type AuditFilter struct {
	Keyword string
	IsDone  *bool
}

// AuditLog is the append-only operator trail.
type AuditLog interface {
	// AppendLog inserts the entry and sets its LogID and CreatedAt.
	AppendLog(ctx context.Context, entry *AuditLogEntry) (int64, error)
	ListLogs(ctx context.Context) ([]*AuditLogEntry, error)

	// PendingWarnings returns entries not yet done that carry a warning,
	// an error or an exception.
	PendingWarnings(ctx context.Context) ([]*AuditLogEntry, error)
	SearchLogs(ctx context.Context, filter AuditFilter) ([]*AuditLogEntry, error)
	MarkDone(ctx context.Context, logID int64) error
	DeleteLog(ctx context.Context, logID int64) error
}
