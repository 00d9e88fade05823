package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/lendguard/internal/bus"
	"github.com/opensource-finance/lendguard/internal/domain"
)

type fakeEvaluator struct {
	mu       sync.Mutex
	calls    []string
	profiles []*domain.ApplicantProfile
	release  chan struct{}
	active   atomic.Int32
	peak     atomic.Int32
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, actor string, p *domain.ApplicantProfile) (*domain.EvaluationResponse, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	f.calls = append(f.calls, actor)
	f.profiles = append(f.profiles, p)
	f.mu.Unlock()

	if actor == "" {
		return &domain.EvaluationResponse{Reason: "no acting operator"}, domain.ErrUnauthorized
	}
	return &domain.EvaluationResponse{EvaluationID: "eval-1", Score: 100, Approved: true}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func submit(t *testing.T, b domain.EventBus, app domain.ApplicationMessage) {
	t.Helper()
	payload, err := json.Marshal(app)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(context.Background(), domain.TopicApplicationSubmitted, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, &fakeEvaluator{})
		if err := w.Start(Config{Concurrency: 1}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 || stats.Topics[0] != domain.TopicApplicationSubmitted {
			t.Errorf("unexpected stats: %+v", stats)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if err := w.Stop(); err != nil {
			t.Errorf("second Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessApplication", func(t *testing.T) {
		eval := &fakeEvaluator{}
		w := NewWorker(eventBus, eval)
		_ = w.Start(Config{})
		defer w.Stop()

		submit(t, eventBus, domain.ApplicationMessage{
			Operator: "alice",
			TraceID:  "trace-001",
			Request: domain.EvaluationRequest{
				Name:        " Li Si ",
				ID:          "110101199001011234",
				LoanPurpose: "car",
				CreditScore: "720",
			},
		})

		waitFor(t, func() bool { return w.GetStats().Processed == 1 })

		eval.mu.Lock()
		defer eval.mu.Unlock()
		if eval.calls[0] != "alice" {
			t.Errorf("expected operator 'alice', got '%s'", eval.calls[0])
		}
		p := eval.profiles[0]
		if p.Name != "Li Si" || p.LoanPurpose != domain.LoanPurposeAuto {
			t.Errorf("unexpected profile: %+v", p)
		}
	})

	t.Run("FailuresCounted", func(t *testing.T) {
		w := NewWorker(eventBus, &fakeEvaluator{})
		_ = w.Start(Config{})
		defer w.Stop()

		submit(t, eventBus, domain.ApplicationMessage{Request: domain.EvaluationRequest{Name: "anon"}})
		_ = eventBus.Publish(context.Background(), domain.TopicApplicationSubmitted, []byte("{not json"))

		waitFor(t, func() bool { return w.GetStats().Failed == 2 })
		if w.GetStats().Processed != 0 {
			t.Errorf("expected nothing processed, got %d", w.GetStats().Processed)
		}
	})
}

func TestWorkerConcurrencyBound(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	eval := &fakeEvaluator{release: make(chan struct{})}
	w := NewWorker(eventBus, eval)
	_ = w.Start(Config{Concurrency: 2})

	for i := 0; i < 5; i++ {
		submit(t, eventBus, domain.ApplicationMessage{Operator: "alice"})
	}

	waitFor(t, func() bool { return eval.active.Load() == 2 })
	time.Sleep(20 * time.Millisecond)
	if eval.active.Load() != 2 {
		t.Errorf("expected 2 in flight, got %d", eval.active.Load())
	}

	close(eval.release)
	waitFor(t, func() bool { return w.GetStats().Processed == 5 })
	if eval.peak.Load() > 2 {
		t.Errorf("concurrency exceeded bound: peak %d", eval.peak.Load())
	}
	_ = w.Stop()
}

func TestStopWaitsForInFlight(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	eval := &fakeEvaluator{release: make(chan struct{})}
	w := NewWorker(eventBus, eval)
	_ = w.Start(Config{Concurrency: 1})

	submit(t, eventBus, domain.ApplicationMessage{Operator: "alice"})
	waitFor(t, func() bool { return eval.active.Load() == 1 })

	stopped := make(chan struct{})
	go func() {
		_ = w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight evaluation finished")
	case <-time.After(30 * time.Millisecond):
	}

	close(eval.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	if w.GetStats().Processed != 1 {
		t.Errorf("expected 1 processed, got %d", w.GetStats().Processed)
	}
}
