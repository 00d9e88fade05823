// Package rules parses rule expressions into predicate trees and scores
// applicant profiles against a snapshot of active rules.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/lendguard/internal/domain"
)

// RuleSource supplies the active rule set.
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]*domain.Rule, error)
}

// Engine aggregates rule penalties into a score and an approval decision.
type Engine struct {
	evaluator         *Evaluator
	baseScore         int
	approvalThreshold int
}

// Option configures an Engine.
type Option func(*Engine)

// WithBaseScore sets the score before penalties.
func WithBaseScore(score int) Option {
	return func(e *Engine) { e.baseScore = score }
}

// WithApprovalThreshold sets the minimum approved score.
func WithApprovalThreshold(threshold int) Option {
	return func(e *Engine) { e.approvalThreshold = threshold }
}

// NewEngine creates a scoring engine.
func NewEngine(evaluator *Evaluator, opts ...Option) (*Engine, error) {
	if evaluator == nil {
		var err error
		if evaluator, err = NewEvaluator(); err != nil {
			return nil, err
		}
	}
	e := &Engine{
		evaluator:         evaluator,
		baseScore:         domain.DefaultBaseScore,
		approvalThreshold: domain.DefaultApprovalThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluator returns the condition evaluator used by the engine.
func (e *Engine) Evaluator() *Evaluator {
	return e.evaluator
}

// ApprovalThreshold returns the configured approval threshold.
func (e *Engine) ApprovalThreshold() int {
	return e.approvalThreshold
}

// Snapshot reads the active rules once and returns private copies in
// evaluation order. Later mutations of the store do not affect the snapshot.
func (e *Engine) Snapshot(ctx context.Context, src RuleSource) ([]*domain.Rule, error) {
	active, err := src.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot active rules: %w", err)
	}

	snapshot := make([]*domain.Rule, 0, len(active))
	for _, r := range active {
		if r != nil {
			snapshot = append(snapshot, r.Clone())
		}
	}
	domain.SortRules(snapshot)

	// Warm the expression cache outside the scoring loop.
	for _, r := range snapshot {
		e.evaluator.Compile(r.Expression)
	}
	return snapshot, nil
}

// Score evaluates profile against rules. Rules are visited in evaluation
// order regardless of the order given. The score is not floored.
func (e *Engine) Score(profile *domain.ApplicantProfile, rules []*domain.Rule) *domain.EvaluationResult {
	ordered := make([]*domain.Rule, 0, len(rules))
	for _, r := range rules {
		if r != nil {
			ordered = append(ordered, r)
		}
	}
	domain.SortRules(ordered)

	result := &domain.EvaluationResult{
		ID:             uuid.New().String(),
		Score:          e.baseScore,
		TriggeredRules: []domain.TriggeredRule{},
		RulesEvaluated: len(ordered),
		EvaluatedAt:    time.Now().UTC(),
	}

	for _, rule := range ordered {
		triggered, penalty := e.evaluator.Evaluate(rule, profile)
		slog.Debug("rule checked", "rule_id", rule.ID, "expression", rule.Expression, "triggered", triggered)
		if !triggered {
			continue
		}
		result.Score -= penalty
		result.TriggeredRules = append(result.TriggeredRules, domain.TriggeredRule{
			RuleID:     rule.ID,
			RuleName:   rule.Name,
			Expression: rule.Expression,
			Penalty:    penalty,
		})
		slog.Debug("rule triggered", "rule_id", rule.ID, "penalty", penalty, "score", result.Score)
	}

	result.Approved = result.Score >= e.approvalThreshold
	slog.Debug("evaluation scored",
		"evaluation_id", result.ID,
		"score", result.Score,
		"approved", result.Approved,
		"triggered", len(result.TriggeredRules),
	)
	return result
}
