package domain

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Priority is the evaluation tier of a rule.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities numerically. Unknown priorities rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ParsePriority accepts a case-insensitive priority name.
// An empty string yields PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// Rule is a stored threshold predicate over applicant attributes.
type Rule struct {
	ID         int64     `json:"ruleId"`
	LogID      int64     `json:"logId,omitempty"`
	Name       string    `json:"name"`
	Expression string    `json:"expression"`
	Priority   Priority  `json:"priority"`
	IsExternal bool      `json:"isExternal"`
	Enabled    bool      `json:"enabled"`
	Creator    string    `json:"creator"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Clone returns a copy that shares no memory with r.
func (r *Rule) Clone() *Rule {
	c := *r
	return &c
}

// CompareRules is the canonical evaluation order: priority descending,
// then creation time descending, then rule ID descending.
func CompareRules(a, b *Rule) int {
	if c := cmp.Compare(b.Priority.Rank(), a.Priority.Rank()); c != 0 {
		return c
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

// SortRules sorts rules in place into evaluation order.
func SortRules(rules []*Rule) {
	slices.SortStableFunc(rules, CompareRules)
}

// RuleFilter narrows SearchRules. Zero values are ignored.
type RuleFilter struct {
	RuleID       int64
	NameContains string
}

// RuleHitCount is the number of name list entries produced by one rule.
type RuleHitCount struct {
	RuleID   int64  `json:"ruleId"`
	RuleName string `json:"ruleName"`
	HitCount int64  `json:"hitCount"`
}

// BusinessLineHitCount breaks RuleHitCount down by business line.
type BusinessLineHitCount struct {
	BusinessLine BusinessLine `json:"businessLine"`
	RuleID       int64        `json:"ruleId"`
	RuleName     string       `json:"ruleName"`
	HitCount     int64        `json:"hitCount"`
}

// RuleStore persists rule definitions.
//
// ListActiveRules is a pure read. Seeding the default battery is a separate,
// idempotent step (EnsureDefaultRules) run once at startup.
type RuleStore interface {
	ListRules(ctx context.Context) ([]*Rule, error)
	ListActiveRules(ctx context.Context) ([]*Rule, error)
	GetRule(ctx context.Context, ruleID int64) (*Rule, error)
	SearchRules(ctx context.Context, filter RuleFilter) ([]*Rule, error)

	// AddRule inserts the rule and sets its ID and CreatedAt.
	AddRule(ctx context.Context, rule *Rule) (int64, error)
	UpdateRule(ctx context.Context, rule *Rule) error
	DeleteRule(ctx context.Context, ruleID int64) error

	// EnsureDefaultRules inserts every default whose expression is not yet
	// stored and returns how many were inserted.
	EnsureDefaultRules(ctx context.Context, defaults []*Rule) (int, error)

	RuleHitCounts(ctx context.Context) ([]RuleHitCount, error)
	RuleHitCountsByBusinessLine(ctx context.Context) ([]BusinessLineHitCount, error)
}
