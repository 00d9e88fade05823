package domain

import (
	"time"
)

// Scoring defaults.
const (
	DefaultBaseScore            = 100
	DefaultApprovalThreshold    = 60
	DefaultMaterialityThreshold = 30
)

// TriggeredRule records one rule that fired during an evaluation.
type TriggeredRule struct {
	RuleID     int64  `json:"ruleId"`
	RuleName   string `json:"ruleName"`
	Expression string `json:"ruleExpression"`
	Penalty    int    `json:"penalty"`
}

// EvaluationResult is the outcome of scoring one applicant against one rule
// snapshot. Score is the base score minus every triggered penalty and is not
// floored, so it may be negative.
type EvaluationResult struct {
	ID             string          `json:"evaluationId"`
	Score          int             `json:"score"`
	Approved       bool            `json:"approved"`
	TriggeredRules []TriggeredRule `json:"ruleResults"`
	RulesEvaluated int             `json:"rulesEvaluated"`
	EvaluatedAt    time.Time       `json:"evaluatedAt"`
}

// PenaltyTotal sums the penalties of all triggered rules.
func (r *EvaluationResult) PenaltyTotal() int {
	total := 0
	for _, t := range r.TriggeredRules {
		total += t.Penalty
	}
	return total
}

// RefusalResult is returned when an evaluation is refused before any rule
// is read.
func RefusalResult() *EvaluationResult {
	return &EvaluationResult{
		Score:          0,
		Approved:       false,
		TriggeredRules: []TriggeredRule{},
		EvaluatedAt:    time.Now().UTC(),
	}
}

// ConsequenceSummary describes what an evaluation persisted. Failed writes
// are not reported here.
type ConsequenceSummary struct {
	AuditLogID  int64   `json:"auditLogId,omitempty"`
	Blacklisted []int64 `json:"blacklistedRuleIds,omitempty"`
}

// EvaluationResponse is the API response for an evaluation.
type EvaluationResponse struct {
	EvaluationID string              `json:"evaluationId,omitempty"`
	Approved     bool                `json:"approved"`
	Score        int                 `json:"score"`
	RuleResults  []TriggeredRule     `json:"ruleResults"`
	Reason       string              `json:"reason,omitempty"`
	PriorHits    []*NameListEntry    `json:"priorHits,omitempty"`
	Consequences *ConsequenceSummary `json:"consequences,omitempty"`
	Metadata     EvaluationMetadata  `json:"metadata"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID        string `json:"traceId,omitempty"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	TotalMs        int64  `json:"totalMs"`
	EngineVersion  string `json:"engineVersion,omitempty"`
}

// DecisionEvent is published on the event bus after every evaluation.
type DecisionEvent struct {
	EvaluationID   string          `json:"evaluationId"`
	ApplicantID    string          `json:"applicantId"`
	ApplicantName  string          `json:"applicantName"`
	Operator       string          `json:"operator"`
	Approved       bool            `json:"approved"`
	Score          int             `json:"score"`
	TriggeredRules []TriggeredRule `json:"ruleResults"`
	Timestamp      time.Time       `json:"timestamp"`
}

// ApplicationMessage is the bus payload for an asynchronous evaluation.
type ApplicationMessage struct {
	Operator string            `json:"operator"`
	TraceID  string            `json:"traceId,omitempty"`
	Request  EvaluationRequest `json:"request"`
}
