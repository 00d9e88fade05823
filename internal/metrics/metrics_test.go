package metrics

import (
	"testing"
	"time"

	"github.com/opensource-finance/lendguard/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveEvaluation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveEvaluation(&domain.EvaluationResult{
		Score:    50,
		Approved: false,
		TriggeredRules: []domain.TriggeredRule{
			{RuleID: 1, Penalty: 40},
			{RuleID: 2, Penalty: 10},
		},
	}, 3*time.Millisecond)
	m.ObserveEvaluation(&domain.EvaluationResult{Score: 100, Approved: true}, time.Millisecond)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"rejected", m.Evaluations.WithLabelValues("rejected"), 1},
		{"approved", m.Evaluations.WithLabelValues("approved"), 1},
		{"rule 1", m.RuleTriggers.WithLabelValues("1"), 1},
		{"rule 2", m.RuleTriggers.WithLabelValues("2"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(m.Scores); n != 1 {
		t.Errorf("expected one score histogram, got %d", n)
	}
}

func TestFailureCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.PersistenceFailure("audit")
	m.PersistenceFailure("namelist")
	m.PersistenceFailure("namelist")
	m.Refused("refused")
	m.PriorHit()

	if got := testutil.ToFloat64(m.PersistenceFailures.WithLabelValues("namelist")); got != 2 {
		t.Errorf("namelist failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PersistenceFailures.WithLabelValues("audit")); got != 1 {
		t.Errorf("audit failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Evaluations.WithLabelValues("refused")); got != 1 {
		t.Errorf("refused = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.NameListHits); got != 1 {
		t.Errorf("prior hits = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveEvaluation(&domain.EvaluationResult{}, time.Second)
	m.Refused("refused")
	m.PriorHit()
	m.PersistenceFailure("audit")
}
