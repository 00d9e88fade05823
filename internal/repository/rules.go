package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/opensource-finance/lendguard/internal/domain"
)

const ruleColumns = `rule_id, log_id, name, expression, is_external, priority, enabled, creator, created_at`

// priorityRank orders priorities numerically so that high > medium > low
// regardless of their text.
const priorityRank = `CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END`

func scanRule(s rowScanner) (*domain.Rule, error) {
	var (
		rule       domain.Rule
		logID      sql.NullInt64
		isExternal int
		enabled    int
		priority   string
	)
	if err := s.Scan(
		&rule.ID, &logID, &rule.Name, &rule.Expression,
		&isExternal, &priority, &enabled, &rule.Creator, &rule.CreatedAt,
	); err != nil {
		return nil, err
	}
	rule.LogID = logID.Int64
	rule.IsExternal = isExternal == 1
	rule.Enabled = enabled == 1
	rule.Priority = domain.Priority(priority)
	rule.CreatedAt = rule.CreatedAt.UTC()
	return &rule, nil
}

func (r *SQLRepository) queryRules(ctx context.Context, query string, args ...any) ([]*domain.Rule, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []*domain.Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListRules returns every rule, newest first.
func (r *SQLRepository) ListRules(ctx context.Context) ([]*domain.Rule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY created_at DESC, rule_id DESC`)
}

// ListActiveRules returns enabled rules in evaluation order.
// It never writes.
func (r *SQLRepository) ListActiveRules(ctx context.Context) ([]*domain.Rule, error) {
	return r.queryRules(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE enabled = 1
		ORDER BY `+priorityRank+` DESC, created_at DESC, rule_id DESC
	`)
}

// GetRule returns one rule.
func (r *SQLRepository) GetRule(ctx context.Context, ruleID int64) (*domain.Rule, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+ruleColumns+` FROM rules WHERE rule_id = ?`), ruleID)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// SearchRules filters rules by ID and name substring, newest first.
func (r *SQLRepository) SearchRules(ctx context.Context, filter domain.RuleFilter) ([]*domain.Rule, error) {
	var w whereClause
	if filter.RuleID > 0 {
		w.add("rule_id = ?", filter.RuleID)
	}
	if name := strings.TrimSpace(filter.NameContains); name != "" {
		w.add(`LOWER(name) LIKE LOWER(?) ESCAPE '\'`, likePattern(name))
	}
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules`+w.String()+` ORDER BY created_at DESC, rule_id DESC`, w.args...)
}

func validateRule(rule *domain.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is required", ErrInvalidInput)
	}
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: rule name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(rule.Expression) == "" {
		return fmt.Errorf("%w: rule expression is required", ErrInvalidInput)
	}
	if rule.Priority.Rank() == 0 {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, rule.Priority)
	}
	return nil
}

// AddRule inserts a rule and sets its ID and CreatedAt.
func (r *SQLRepository) AddRule(ctx context.Context, rule *domain.Rule) (int64, error) {
	if err := validateRule(rule); err != nil {
		return 0, err
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = r.now()
	}
	return r.insertRule(ctx, r.db, rule)
}

// execQuerier is satisfied by *sql.DB and *sql.Tx.
type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLRepository) insertRule(ctx context.Context, q execQuerier, rule *domain.Rule) (int64, error) {
	query := `
		INSERT INTO rules (log_id, name, expression, is_external, priority, enabled, creator, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING rule_id
	`
	err := q.QueryRowContext(ctx, r.rebind(query),
		nullID(rule.LogID), rule.Name, strings.TrimSpace(rule.Expression),
		boolInt(rule.IsExternal), string(rule.Priority), boolInt(rule.Enabled),
		rule.Creator, rule.CreatedAt.UTC(),
	).Scan(&rule.ID)
	if err != nil {
		if r.isForeignKeyViolation(err) {
			return 0, fmt.Errorf("%w: unknown audit log %d", ErrInvalidInput, rule.LogID)
		}
		return 0, err
	}
	return rule.ID, nil
}

// UpdateRule replaces the mutable fields of a rule.
func (r *SQLRepository) UpdateRule(ctx context.Context, rule *domain.Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	query := `
		UPDATE rules
		SET name = ?, expression = ?, is_external = ?, priority = ?, enabled = ?
		WHERE rule_id = ?
	`
	res, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.Name, strings.TrimSpace(rule.Expression), boolInt(rule.IsExternal),
		string(rule.Priority), boolInt(rule.Enabled), rule.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// DeleteRule removes a rule that no name list entry references.
func (r *SQLRepository) DeleteRule(ctx context.Context, ruleID int64) error {
	var refs int
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM name_list WHERE rule_id = ?`), ruleID).Scan(&refs)
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: %d entries", ErrRuleInUse, refs)
	}

	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM rules WHERE rule_id = ?`), ruleID)
	if err != nil {
		if r.isForeignKeyViolation(err) {
			return ErrRuleInUse
		}
		return err
	}
	return checkAffected(res)
}

// EnsureDefaultRules inserts each default whose expression is not stored
// yet. Running it again inserts nothing.
func (r *SQLRepository) EnsureDefaultRules(ctx context.Context, defaults []*domain.Rule) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	for _, def := range defaults {
		if err := validateRule(def); err != nil {
			return 0, err
		}

		var exists int
		err := tx.QueryRowContext(ctx,
			r.rebind(`SELECT COUNT(*) FROM rules WHERE expression = ?`),
			strings.TrimSpace(def.Expression),
		).Scan(&exists)
		if err != nil {
			return 0, err
		}
		if exists > 0 {
			continue
		}

		rule := def.Clone()
		if rule.CreatedAt.IsZero() {
			rule.CreatedAt = r.now()
		}
		if _, err := r.insertRule(ctx, tx, rule); err != nil {
			return 0, fmt.Errorf("seed rule %q: %w", def.Expression, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// RuleHitCounts counts name list entries per originating rule.
func (r *SQLRepository) RuleHitCounts(ctx context.Context) ([]domain.RuleHitCount, error) {
	query := `
		SELECT r.rule_id, r.name, COUNT(n.id) AS hits
		FROM rules r
		JOIN name_list n ON n.rule_id = r.rule_id
		GROUP BY r.rule_id, r.name
		ORDER BY hits DESC, r.rule_id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []domain.RuleHitCount{}
	for rows.Next() {
		var c domain.RuleHitCount
		if err := rows.Scan(&c.RuleID, &c.RuleName, &c.HitCount); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// RuleHitCountsByBusinessLine counts name list entries per business line
// and rule.
func (r *SQLRepository) RuleHitCountsByBusinessLine(ctx context.Context) ([]domain.BusinessLineHitCount, error) {
	query := `
		SELECT n.business_line, r.rule_id, r.name, COUNT(n.id) AS hits
		FROM rules r
		JOIN name_list n ON n.rule_id = r.rule_id
		GROUP BY n.business_line, r.rule_id, r.name
		ORDER BY n.business_line, hits DESC, r.rule_id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []domain.BusinessLineHitCount{}
	for rows.Next() {
		var c domain.BusinessLineHitCount
		if err := rows.Scan(&c.BusinessLine, &c.RuleID, &c.RuleName, &c.HitCount); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
