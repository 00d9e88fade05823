// Package worker evaluates loan applications submitted through the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/lendguard/internal/domain"
)

var errStopped = errors.New("worker stopped")

// Evaluator scores one applicant on behalf of an operator.
type Evaluator interface {
	Evaluate(ctx context.Context, actor string, profile *domain.ApplicantProfile) (*domain.EvaluationResponse, error)
}

// Worker consumes TopicApplicationSubmitted and runs each application
// through the Evaluator. The Evaluator publishes the decision.
type Worker struct {
	bus       domain.EventBus
	evaluator Evaluator

	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	stopping chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// Concurrency is the number of applications evaluated in parallel.
	Concurrency int

	// Timeout bounds one evaluation.
	Timeout time.Duration
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, evaluator Evaluator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		evaluator: evaluator,
		ctx:       ctx,
		cancel:    cancel,
		stopping:  make(chan struct{}),
	}
}

// Start subscribes to submitted applications.
func (w *Worker) Start(cfg Config) error {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	w.sem = make(chan struct{}, cfg.Concurrency)

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicApplicationSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return w.dispatch(msg, cfg.Timeout)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicApplicationSubmitted, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicApplicationSubmitted,
		"concurrency", cfg.Concurrency,
	)
	return nil
}

// dispatch blocks until a slot is free, then evaluates in the background.
func (w *Worker) dispatch(msg *domain.Message, timeout time.Duration) error {
	select {
	case w.sem <- struct{}{}:
	case <-w.stopping:
		return errStopped
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		<-w.sem
		return errStopped
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()

		ctx, cancel := context.WithTimeout(w.ctx, timeout)
		defer cancel()

		if err := w.processApplication(ctx, msg); err != nil {
			w.failed.Add(1)
			return
		}
		w.processed.Add(1)
	}()
	return nil
}

// processApplication evaluates one submitted application.
func (w *Worker) processApplication(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var app domain.ApplicationMessage
	if err := json.Unmarshal(msg.Payload, &app); err != nil {
		slog.Error("failed to parse application message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	traceID := app.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	resp, err := w.evaluator.Evaluate(ctx, app.Operator, app.Request.ToProfile())
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, domain.ErrUnauthorized) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "application evaluation failed",
			"message_id", msg.ID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	slog.Info("application processed",
		"evaluation_id", resp.EvaluationID,
		"trace_id", traceID,
		"operator", app.Operator,
		"approved", resp.Approved,
		"score", resp.Score,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and waits for in-flight evaluations.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopping)
	w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()
	w.cancel()

	slog.Info("worker stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
