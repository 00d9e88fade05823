package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/opensource-finance/lendguard/internal/domain"
)

const logColumns = `log_id, operator, operation, error_info, exception_info, is_warning, is_done, warning_type, created_at`

const logOrder = ` ORDER BY created_at DESC, log_id DESC`

func scanLog(s rowScanner) (*domain.AuditLogEntry, error) {
	var (
		e         domain.AuditLogEntry
		errorInfo sql.NullString
		exception sql.NullString
		isWarning int
		isDone    int
	)
	if err := s.Scan(
		&e.LogID, &e.Operator, &e.Operation, &errorInfo, &exception,
		&isWarning, &isDone, &e.WarningType, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.ErrorInfo = errorInfo.String
	e.ExceptionInfo = exception.String
	e.IsWarning = isWarning == 1
	e.IsDone = isDone == 1
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (r *SQLRepository) queryLogs(ctx context.Context, query string, args ...any) ([]*domain.AuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*domain.AuditLogEntry{}
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

// AppendLog inserts an audit entry and sets its LogID and CreatedAt.
func (r *SQLRepository) AppendLog(ctx context.Context, e *domain.AuditLogEntry) (int64, error) {
	if e == nil || strings.TrimSpace(e.Operation) == "" {
		return 0, fmt.Errorf("%w: operation is required", ErrInvalidInput)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}

	query := `
		INSERT INTO audit_log (
			operator, operation, error_info, exception_info, is_warning, is_done, warning_type, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING log_id
	`
	err := r.db.QueryRowContext(ctx, r.rebind(query),
		e.Operator, e.Operation, nullString(e.ErrorInfo), nullString(e.ExceptionInfo),
		boolInt(e.IsWarning), boolInt(e.IsDone), e.WarningType, e.CreatedAt.UTC(),
	).Scan(&e.LogID)
	if err != nil {
		return 0, err
	}
	return e.LogID, nil
}

// ListLogs returns every audit entry, newest first.
func (r *SQLRepository) ListLogs(ctx context.Context) ([]*domain.AuditLogEntry, error) {
	return r.queryLogs(ctx, `SELECT `+logColumns+` FROM audit_log`+logOrder)
}

// PendingWarnings returns entries that are not done and carry a warning,
// an error or an exception.
func (r *SQLRepository) PendingWarnings(ctx context.Context) ([]*domain.AuditLogEntry, error) {
	return r.queryLogs(ctx, `
		SELECT `+logColumns+`
		FROM audit_log
		WHERE is_done = 0
		  AND (is_warning = 1 OR COALESCE(error_info, '') <> '' OR COALESCE(exception_info, '') <> '')`+logOrder)
}

// SearchLogs filters by keyword across operator, operation, error and
// warning text, and by completion.
func (r *SQLRepository) SearchLogs(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLogEntry, error) {
	var w whereClause
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		p := likePattern(kw)
		w.add(`(LOWER(operator) LIKE LOWER(?) ESCAPE '\'
			OR LOWER(operation) LIKE LOWER(?) ESCAPE '\'
			OR LOWER(COALESCE(error_info, '')) LIKE LOWER(?) ESCAPE '\'
			OR LOWER(warning_type) LIKE LOWER(?) ESCAPE '\')`, p, p, p, p)
	}
	if filter.IsDone != nil {
		w.add("is_done = ?", boolInt(*filter.IsDone))
	}
	return r.queryLogs(ctx, `SELECT `+logColumns+` FROM audit_log`+w.String()+logOrder, w.args...)
}

// MarkDone flags an entry as handled.
func (r *SQLRepository) MarkDone(ctx context.Context, logID int64) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE audit_log SET is_done = 1 WHERE log_id = ?`), logID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// DeleteLog removes an entry. Rules and name list entries that recorded it
// keep existing with their reference cleared.
func (r *SQLRepository) DeleteLog(ctx context.Context, logID int64) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM audit_log WHERE log_id = ?`), logID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

var _ domain.Repository = (*SQLRepository)(nil)
