package decision

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/lendguard/internal/bus"
	"github.com/opensource-finance/lendguard/internal/cache"
	"github.com/opensource-finance/lendguard/internal/consequence"
	"github.com/opensource-finance/lendguard/internal/domain"
	"github.com/opensource-finance/lendguard/internal/metrics"
	"github.com/opensource-finance/lendguard/internal/repository"
	"github.com/opensource-finance/lendguard/internal/rules"
	"github.com/opensource-finance/lendguard/internal/screening"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fixture struct {
	repo    *repository.SQLRepository
	names   *screening.Screener
	bus     *bus.ChannelBus
	metrics *metrics.Metrics
	svc     *Service
}

func newFixture(t *testing.T, exprs ...string) *fixture {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "decision-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	for _, expr := range exprs {
		_, err := repo.AddRule(context.Background(), &domain.Rule{
			Name:       expr,
			Expression: expr,
			Priority:   domain.PriorityHigh,
			Enabled:    true,
			Creator:    "test",
		})
		if err != nil {
			t.Fatalf("AddRule(%q): %v", expr, err)
		}
	}

	engine, err := rules.NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	m := metrics.New(prometheus.NewRegistry())
	names := screening.New(repo, cache.NewLRUCache(100), time.Minute)
	dispatcher := consequence.NewDispatcher(repo, names).WithObserver(m)

	return &fixture{
		repo:    repo,
		names:   names,
		bus:     eventBus,
		metrics: m,
		svc: NewService(engine, repo, dispatcher,
			WithEventBus(eventBus),
			WithMetrics(m),
			WithScreening(names),
		),
	}
}

func (f *fixture) capture(t *testing.T, topic string) <-chan *domain.Message {
	t.Helper()
	ch := make(chan *domain.Message, 10)
	_, err := f.bus.Subscribe(context.Background(), topic, func(ctx context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe %s: %v", topic, err)
	}
	return ch
}

func applicant(creditScore string) *domain.ApplicantProfile {
	return &domain.ApplicantProfile{
		Name:           "Zhang San",
		Identification: "110101199001011234",
		LoanPurpose:    domain.LoanPurposeConsumer,
		CreditScore:    domain.FieldValue(creditScore),
		OverdueCount:   "0",
		MaxOverdueDays: "0",
		DebtRatio:      "0.2",
		LoanAmount:     "10000",
	}
}

func TestEvaluateRefusesWithoutOperator(t *testing.T) {
	f := newFixture(t, "credit_score < 550")
	ctx := context.Background()

	for _, actor := range []string{"", "   "} {
		resp, err := f.svc.Evaluate(ctx, actor, applicant("500"))
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if resp == nil || resp.Score != 0 || resp.Approved || len(resp.RuleResults) != 0 {
			t.Errorf("expected fixed refusal, got %+v", resp)
		}
		if resp.Reason != RefusalReason {
			t.Errorf("expected reason %q, got %q", RefusalReason, resp.Reason)
		}
	}

	logs, _ := f.repo.ListLogs(ctx)
	if len(logs) != 0 {
		t.Errorf("refusal must not write audit entries, got %d", len(logs))
	}
	if got := testutil.ToFloat64(f.metrics.Evaluations.WithLabelValues("refused")); got != 2 {
		t.Errorf("refused count = %v, want 2", got)
	}
}

func TestEvaluateRejection(t *testing.T) {
	f := newFixture(t, "credit_score < 550")
	ctx := context.Background()
	decisions := f.capture(t, domain.TopicDecision)
	rejections := f.capture(t, domain.TopicRejected)

	resp, err := f.svc.Evaluate(ctx, "alice", applicant("500"))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if resp.Score != 50 || resp.Approved {
		t.Errorf("expected score 50 rejected, got %d approved=%v", resp.Score, resp.Approved)
	}
	if len(resp.RuleResults) != 1 || resp.RuleResults[0].Penalty != 50 {
		t.Fatalf("unexpected rule results: %+v", resp.RuleResults)
	}
	if resp.Metadata.RulesEvaluated != 1 || resp.Metadata.EngineVersion != EngineVersion {
		t.Errorf("unexpected metadata: %+v", resp.Metadata)
	}

	logs, _ := f.repo.ListLogs(ctx)
	if len(logs) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(logs))
	}
	if !logs[0].IsWarning || logs[0].Operator != "alice" {
		t.Errorf("unexpected audit entry: %+v", logs[0])
	}
	if resp.Consequences.AuditLogID != logs[0].LogID {
		t.Errorf("response audit id %d, stored %d", resp.Consequences.AuditLogID, logs[0].LogID)
	}

	entries, _ := f.repo.ListEntries(ctx)
	if len(entries) != 1 {
		t.Fatalf("expected 1 blacklist entry, got %d", len(entries))
	}
	if entries[0].RuleID != resp.RuleResults[0].RuleID || entries[0].LogID != logs[0].LogID {
		t.Errorf("entry not linked to rule and audit: %+v", entries[0])
	}

	for name, ch := range map[string]<-chan *domain.Message{"decision": decisions, "rejected": rejections} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Errorf("expected %s event", name)
		}
	}
}

func TestEvaluateApproval(t *testing.T) {
	f := newFixture(t, "credit_score < 550")
	ctx := context.Background()
	decisions := f.capture(t, domain.TopicDecision)
	rejections := f.capture(t, domain.TopicRejected)

	resp, err := f.svc.Evaluate(ctx, "alice", applicant("720"))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if resp.Score != 100 || !resp.Approved {
		t.Errorf("expected score 100 approved, got %d approved=%v", resp.Score, resp.Approved)
	}

	logs, _ := f.repo.ListLogs(ctx)
	if len(logs) != 1 || logs[0].IsWarning {
		t.Errorf("expected one non-warning audit entry, got %+v", logs)
	}
	if entries, _ := f.repo.ListEntries(ctx); len(entries) != 0 {
		t.Errorf("approval must not blacklist, got %d entries", len(entries))
	}

	select {
	case <-decisions:
	case <-time.After(time.Second):
		t.Error("expected decision event")
	}
	select {
	case <-rejections:
		t.Error("approval must not publish a rejection")
	case <-time.After(50 * time.Millisecond):
	}

	if got := testutil.ToFloat64(f.metrics.Evaluations.WithLabelValues("approved")); got != 1 {
		t.Errorf("approved count = %v, want 1", got)
	}
}

func TestEvaluatePriorHitsDoNotChangeScore(t *testing.T) {
	f := newFixture(t, "credit_score < 550")
	ctx := context.Background()

	first, err := f.svc.Evaluate(ctx, "alice", applicant("500"))
	if err != nil {
		t.Fatal(err)
	}
	if len(first.PriorHits) != 0 {
		t.Fatalf("first evaluation should have no prior hits, got %d", len(first.PriorHits))
	}

	second, err := f.svc.Evaluate(ctx, "alice", applicant("500"))
	if err != nil {
		t.Fatal(err)
	}
	if len(second.PriorHits) != 1 {
		t.Errorf("expected 1 prior hit, got %d", len(second.PriorHits))
	}
	if second.Score != first.Score {
		t.Errorf("screening changed the score: %d vs %d", second.Score, first.Score)
	}
}

type failingSource struct{}

func (failingSource) ListActiveRules(context.Context) ([]*domain.Rule, error) {
	return nil, errors.New("connection refused")
}

func TestEvaluateRulesUnavailable(t *testing.T) {
	f := newFixture(t)
	engine, _ := rules.NewEngine(nil)
	svc := NewService(engine, failingSource{}, consequence.NewDispatcher(f.repo, f.names), WithMetrics(f.metrics))

	resp, err := svc.Evaluate(context.Background(), "alice", applicant("500"))
	if !errors.Is(err, domain.ErrRulesUnavailable) {
		t.Fatalf("expected ErrRulesUnavailable, got %v", err)
	}
	if resp != nil {
		t.Errorf("expected no response, got %+v", resp)
	}
	if logs, _ := f.repo.ListLogs(context.Background()); len(logs) != 0 {
		t.Errorf("expected no audit entries, got %d", len(logs))
	}
}

func TestEvaluatePublishFailureIsBestEffort(t *testing.T) {
	f := newFixture(t, "credit_score < 550")
	_ = f.bus.Close()

	resp, err := f.svc.Evaluate(context.Background(), "alice", applicant("500"))
	if err != nil {
		t.Fatalf("publish failure must not fail the evaluation: %v", err)
	}
	if resp.Score != 50 {
		t.Errorf("expected score 50, got %d", resp.Score)
	}
	if got := testutil.ToFloat64(f.metrics.PersistenceFailures.WithLabelValues("publish")); got != 2 {
		t.Errorf("publish failures = %v, want 2", got)
	}
}

// blockingSource waits for its context like a hung database.
type blockingSource struct{}

func (blockingSource) ListActiveRules(ctx context.Context) ([]*domain.Rule, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEvaluateRuleReadIsBounded(t *testing.T) {
	f := newFixture(t)
	engine, _ := rules.NewEngine(nil)
	svc := NewService(engine, blockingSource{}, consequence.NewDispatcher(f.repo, f.names),
		WithTimeout(50*time.Millisecond),
	)

	start := time.Now()
	_, err := svc.Evaluate(context.Background(), "alice", applicant("500"))
	if !errors.Is(err, domain.ErrRulesUnavailable) {
		t.Fatalf("expected ErrRulesUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("rule read not bounded: took %v", elapsed)
	}
}

func TestEvaluateHidesPersistenceFailures(t *testing.T) {
	f := newFixture(t, "credit_score < 550")

	profile := applicant("500")
	profile.Identification = ""

	resp, err := f.svc.Evaluate(context.Background(), "alice", profile)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if resp.Approved || resp.Score != 50 {
		t.Errorf("expected rejected score 50, got approved=%v score=%d", resp.Approved, resp.Score)
	}
	if len(resp.Consequences.Blacklisted) != 0 {
		t.Errorf("expected no blacklisted rules, got %v", resp.Consequences.Blacklisted)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	for _, leak := range []string{"failures", "identification", "rule 1"} {
		if strings.Contains(string(body), leak) {
			t.Errorf("response exposes %q: %s", leak, body)
		}
	}

	if got := testutil.ToFloat64(f.metrics.PersistenceFailures.WithLabelValues("namelist")); got != 1 {
		t.Errorf("namelist failures = %v, want 1", got)
	}
}
