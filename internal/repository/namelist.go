package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/opensource-finance/lendguard/internal/domain"
)

// Entries are always read joined with their originating rule.
const entrySelect = `
	SELECT n.id, n.rule_id, n.log_id, n.risk_level, n.list_type, n.business_line,
	       n.risk_label, n.risk_domain, n.value, n.value_type, n.creator, n.created_at,
	       COALESCE(r.name, ''), COALESCE(r.expression, '')
	FROM name_list n
	LEFT JOIN rules r ON r.rule_id = n.rule_id`

const entryOrder = ` ORDER BY n.created_at DESC, n.id DESC`

func scanEntry(s rowScanner) (*domain.NameListEntry, error) {
	var (
		e     domain.NameListEntry
		logID sql.NullInt64
	)
	if err := s.Scan(
		&e.ID, &e.RuleID, &logID, &e.RiskLevel, &e.ListType, &e.BusinessLine,
		&e.RiskLabel, &e.RiskDomain, &e.Value, &e.ValueType, &e.Creator, &e.CreatedAt,
		&e.RuleName, &e.RuleExpression,
	); err != nil {
		return nil, err
	}
	e.LogID = logID.Int64
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (r *SQLRepository) queryEntries(ctx context.Context, query string, args ...any) ([]*domain.NameListEntry, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*domain.NameListEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListEntries returns every entry with its rule, newest first.
func (r *SQLRepository) ListEntries(ctx context.Context) ([]*domain.NameListEntry, error) {
	return r.queryEntries(ctx, entrySelect+entryOrder)
}

// SearchEntries filters entries for review screens. The value filter is a
// substring match.
func (r *SQLRepository) SearchEntries(ctx context.Context, filter domain.NameListFilter) ([]*domain.NameListEntry, error) {
	var w whereClause
	if v := strings.TrimSpace(filter.ValueContains); v != "" {
		w.add(`n.value LIKE ? ESCAPE '\'`, likePattern(v))
	}
	if filter.BusinessLine != 0 {
		w.add("n.business_line = ?", int(filter.BusinessLine))
	}
	if filter.RiskDomain != 0 {
		w.add("n.risk_domain = ?", int(filter.RiskDomain))
	}
	if filter.RiskLabel != 0 {
		w.add("n.risk_label = ?", int(filter.RiskLabel))
	}
	if filter.ValueType != 0 {
		w.add("n.value_type = ?", int(filter.ValueType))
	}
	return r.queryEntries(ctx, entrySelect+w.String()+entryOrder, w.args...)
}

// GetEntry returns one entry.
func (r *SQLRepository) GetEntry(ctx context.Context, id int64) (*domain.NameListEntry, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(entrySelect+` WHERE n.id = ?`), id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// CheckHit returns entries whose value equals value exactly, restricted to
// valueType when it is non-nil.
func (r *SQLRepository) CheckHit(ctx context.Context, value string, valueType *domain.ValueType) ([]*domain.NameListEntry, error) {
	var w whereClause
	w.add("n.value = ?", value)
	if valueType != nil {
		w.add("n.value_type = ?", int(*valueType))
	}
	return r.queryEntries(ctx, entrySelect+w.String()+entryOrder, w.args...)
}

func validateEntry(e *domain.NameListEntry) error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: entry is required", ErrInvalidInput)
	case e.RuleID <= 0:
		return fmt.Errorf("%w: ruleId is required", ErrInvalidInput)
	case e.RiskLevel < 1 || e.RiskLevel > domain.MaxRiskLevel:
		return fmt.Errorf("%w: risk level must be 1..%d", ErrInvalidInput, domain.MaxRiskLevel)
	case !e.ListType.Valid():
		return fmt.Errorf("%w: unknown list type %d", ErrInvalidInput, e.ListType)
	case !e.BusinessLine.Valid():
		return fmt.Errorf("%w: unknown business line %d", ErrInvalidInput, e.BusinessLine)
	case !e.RiskLabel.Valid():
		return fmt.Errorf("%w: unknown risk label %d", ErrInvalidInput, e.RiskLabel)
	case !e.RiskDomain.Valid():
		return fmt.Errorf("%w: unknown risk domain %d", ErrInvalidInput, e.RiskDomain)
	case !e.ValueType.Valid():
		return fmt.Errorf("%w: unknown value type %d", ErrInvalidInput, e.ValueType)
	case strings.TrimSpace(e.Value) == "":
		return fmt.Errorf("%w: value is required", ErrInvalidInput)
	}
	return nil
}

// AddEntry inserts an entry and sets its ID and CreatedAt. The referenced
// rule must exist.
func (r *SQLRepository) AddEntry(ctx context.Context, e *domain.NameListEntry) (int64, error) {
	if err := validateEntry(e); err != nil {
		return 0, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}

	query := `
		INSERT INTO name_list (
			rule_id, log_id, risk_level, list_type, business_line, risk_label,
			risk_domain, value, value_type, creator, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, r.rebind(query),
		e.RuleID, nullID(e.LogID), e.RiskLevel, int(e.ListType), int(e.BusinessLine),
		int(e.RiskLabel), int(e.RiskDomain), e.Value, int(e.ValueType), e.Creator,
		e.CreatedAt.UTC(),
	).Scan(&e.ID)
	if err != nil {
		if r.isForeignKeyViolation(err) {
			return 0, fmt.Errorf("%w: rule %d or log %d does not exist", ErrInvalidInput, e.RuleID, e.LogID)
		}
		return 0, err
	}
	return e.ID, nil
}

// DeleteEntry removes an entry.
func (r *SQLRepository) DeleteEntry(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM name_list WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}
