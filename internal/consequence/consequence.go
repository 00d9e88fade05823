// Package consequence persists the side effects of an evaluation: one audit
// entry per call and, on rejection, blacklist entries for material rules.
package consequence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opensource-finance/lendguard/internal/domain"
)

// Audit text written for evaluations.
const (
	OperationPrefix     = "Loan evaluation - applicant: "
	RejectedErrorInfo   = "loan rejected"
	RejectedWarningType = "risk score too low"
)

var errNoIdentification = errors.New("applicant identification is empty")

// FailureObserver is notified of every persistence failure.
type FailureObserver interface {
	PersistenceFailure(operation string)
}

// SubmissionFailure records one blacklist entry that could not be written.
type SubmissionFailure struct {
	RuleID int64
	Err    error
}

// Outcome describes what Apply persisted. Failures never abort Apply.
type Outcome struct {
	AuditLogID int64
	AuditErr   error
	Submitted  []*domain.NameListEntry
	Failures   []SubmissionFailure
}

// Summary converts the outcome for API responses. Only successful writes
// are listed; failures stay in logs and metrics.
func (o *Outcome) Summary() *domain.ConsequenceSummary {
	s := &domain.ConsequenceSummary{AuditLogID: o.AuditLogID}
	for _, e := range o.Submitted {
		s.Blacklisted = append(s.Blacklisted, e.RuleID)
	}
	return s
}

// Dispatcher applies evaluation consequences on a best-effort basis.
// Each write commits on its own; there is no rollback.
type Dispatcher struct {
	audit    domain.AuditLog
	names    domain.NameListStore
	observer FailureObserver

	// MaterialityThreshold is the minimum penalty that produces an entry.
	MaterialityThreshold int

	// RiskLevel is written on every derived entry.
	RiskLevel int

	// Timeout bounds each persistence call.
	Timeout time.Duration
}

// NewDispatcher creates a dispatcher with the standard policy.
func NewDispatcher(audit domain.AuditLog, names domain.NameListStore) *Dispatcher {
	return &Dispatcher{
		audit:                audit,
		names:                names,
		MaterialityThreshold: domain.DefaultMaterialityThreshold,
		RiskLevel:            domain.MaxRiskLevel,
		Timeout:              3 * time.Second,
	}
}

// WithObserver sets the persistence failure observer.
func (d *Dispatcher) WithObserver(o FailureObserver) *Dispatcher {
	d.observer = o
	return d
}

// Apply writes the audit entry for result and, when the applicant was
// rejected, one blacklist entry per triggered rule whose penalty meets the
// materiality threshold.
func (d *Dispatcher) Apply(ctx context.Context, profile *domain.ApplicantProfile, result *domain.EvaluationResult, actor string) *Outcome {
	out := &Outcome{}

	entry := AuditEntry(profile, result, actor)
	id, err := d.appendLog(ctx, entry)
	if err != nil {
		out.AuditErr = err
		d.failed("audit")
		slog.Error("failed to write evaluation audit entry",
			"operator", actor,
			"evaluation_id", result.ID,
			"error", err,
		)
	} else {
		out.AuditLogID = id
	}

	if result.Approved {
		return out
	}

	for _, candidate := range d.Entries(profile, result, actor, out.AuditLogID) {
		if candidate.Value == "" {
			out.Failures = append(out.Failures, SubmissionFailure{RuleID: candidate.RuleID, Err: errNoIdentification})
			d.failed("namelist")
			slog.Warn("blacklist entry skipped", "rule_id", candidate.RuleID, "error", errNoIdentification)
			continue
		}

		if _, err := d.addEntry(ctx, candidate); err != nil {
			out.Failures = append(out.Failures, SubmissionFailure{RuleID: candidate.RuleID, Err: err})
			d.failed("namelist")
			slog.Error("failed to submit blacklist entry",
				"rule_id", candidate.RuleID,
				"evaluation_id", result.ID,
				"error", err,
			)
			continue
		}
		out.Submitted = append(out.Submitted, candidate)
	}

	slog.Info("evaluation consequences applied",
		"evaluation_id", result.ID,
		"audit_log_id", out.AuditLogID,
		"blacklisted", len(out.Submitted),
		"failures", len(out.Failures),
	)
	return out
}

// AuditEntry builds the audit record for one evaluation.
func AuditEntry(profile *domain.ApplicantProfile, result *domain.EvaluationResult, actor string) *domain.AuditLogEntry {
	entry := &domain.AuditLogEntry{
		Operator:  actor,
		Operation: OperationPrefix + profile.Name,
		IsDone:    true,
	}
	if !result.Approved {
		entry.ErrorInfo = RejectedErrorInfo
		entry.IsWarning = true
		entry.WarningType = RejectedWarningType
	}
	return entry
}

// Entries derives the blacklist entries for a rejected result. It returns
// nothing for an approved result.
func (d *Dispatcher) Entries(profile *domain.ApplicantProfile, result *domain.EvaluationResult, actor string, logID int64) []*domain.NameListEntry {
	if result.Approved {
		return nil
	}

	var entries []*domain.NameListEntry
	for _, tr := range result.TriggeredRules {
		if tr.Penalty < d.MaterialityThreshold {
			continue
		}
		entries = append(entries, &domain.NameListEntry{
			RuleID:       tr.RuleID,
			LogID:        logID,
			RiskLevel:    d.RiskLevel,
			ListType:     domain.ListTypeBlacklist,
			BusinessLine: profile.LoanPurpose.BusinessLine(),
			RiskLabel:    domain.RiskLabelCredit,
			RiskDomain:   domain.RiskDomainPersonal,
			Value:        profile.Identification,
			ValueType:    domain.ValueTypeIDNumber,
			Creator:      actor,
		})
	}
	return entries
}

func (d *Dispatcher) appendLog(ctx context.Context, entry *domain.AuditLogEntry) (int64, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return d.audit.AppendLog(ctx, entry)
}

func (d *Dispatcher) addEntry(ctx context.Context, entry *domain.NameListEntry) (int64, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return d.names.AddEntry(ctx, entry)
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.Timeout)
}

func (d *Dispatcher) failed(op string) {
	if d.observer != nil {
		d.observer.PersistenceFailure(op)
	}
}
