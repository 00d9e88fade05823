// Package metrics holds the Prometheus collectors for Lendguard.
package metrics

import (
	"strconv"
	"time"

	"github.com/opensource-finance/lendguard/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lendguard"

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	Evaluations         *prometheus.CounterVec
	EvaluationDuration  prometheus.Histogram
	Scores              prometheus.Histogram
	RuleTriggers        *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	NameListHits        prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Loan evaluations by outcome (approved, rejected, refused, unavailable).",
		}, []string{"outcome"}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of one evaluation including consequences.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		Scores: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_score",
			Help:      "Distribution of final applicant scores.",
			Buckets:   []float64{-100, 0, 20, 40, 50, 60, 70, 80, 90, 100},
		}),
		RuleTriggers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_triggers_total",
			Help:      "Times each rule triggered.",
		}, []string{"rule_id"}),
		PersistenceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Best-effort writes that failed, by operation.",
		}, []string{"operation"}),
		NameListHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "namelist_prior_hits_total",
			Help:      "Applicants whose identification was already on the name list.",
		}),
	}
}

// ObserveEvaluation records a completed evaluation.
func (m *Metrics) ObserveEvaluation(result *domain.EvaluationResult, elapsed time.Duration) {
	if m == nil || result == nil {
		return
	}
	outcome := "rejected"
	if result.Approved {
		outcome = "approved"
	}
	m.Evaluations.WithLabelValues(outcome).Inc()
	m.EvaluationDuration.Observe(elapsed.Seconds())
	m.Scores.Observe(float64(result.Score))
	for _, tr := range result.TriggeredRules {
		m.RuleTriggers.WithLabelValues(strconv.FormatInt(tr.RuleID, 10)).Inc()
	}
}

// Refused counts an evaluation that never reached scoring.
func (m *Metrics) Refused(reason string) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(reason).Inc()
}

// PriorHit counts an applicant found on the name list.
func (m *Metrics) PriorHit() {
	if m == nil {
		return
	}
	m.NameListHits.Inc()
}

// PersistenceFailure counts a failed best-effort write.
func (m *Metrics) PersistenceFailure(operation string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(operation).Inc()
}
