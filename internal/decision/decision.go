// Package decision runs one loan evaluation end to end: operator check,
// rule snapshot, name list screening, scoring, consequences and the
// decision event.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/lendguard/internal/consequence"
	"github.com/opensource-finance/lendguard/internal/domain"
	"github.com/opensource-finance/lendguard/internal/metrics"
	"github.com/opensource-finance/lendguard/internal/rules"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EngineVersion is reported in evaluation metadata.
const EngineVersion = "lendguard-1.0"

// RefusalReason is the reason given when no operator is identified.
const RefusalReason = "no acting operator"

// HitChecker is the exact-match name list lookup used for screening.
type HitChecker interface {
	CheckHit(ctx context.Context, value string, valueType *domain.ValueType) ([]*domain.NameListEntry, error)
}

// Service evaluates applicants.
type Service struct {
	engine     *rules.Engine
	rules      rules.RuleSource
	names      HitChecker
	dispatcher *consequence.Dispatcher
	bus        domain.EventBus
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	timeout    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithEventBus publishes decision events on bus.
func WithEventBus(bus domain.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithMetrics records evaluation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithScreening reports prior name list hits for the applicant.
func WithScreening(names HitChecker) Option {
	return func(s *Service) { s.names = names }
}

// WithTimeout bounds the rule snapshot read and the screening lookup.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// NewService wires a Service. engine, src and dispatcher are required.
func NewService(engine *rules.Engine, src rules.RuleSource, dispatcher *consequence.Dispatcher, opts ...Option) *Service {
	s := &Service{
		engine:     engine,
		rules:      src,
		dispatcher: dispatcher,
		tracer:     otel.Tracer("lendguard-decision"),
		timeout:    3 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate scores profile on behalf of actor.
//
// A blank actor yields the fixed refusal response and domain.ErrUnauthorized
// without reading any rule. A failure to read the rule set yields
// domain.ErrRulesUnavailable. Persistence and publication failures after
// scoring are logged and counted. The caller never sees them.
func (s *Service) Evaluate(ctx context.Context, actor string, profile *domain.ApplicantProfile) (*domain.EvaluationResponse, error) {
	start := time.Now()
	actor = strings.TrimSpace(actor)

	ctx, span := s.tracer.Start(ctx, "decision.Evaluate",
		trace.WithAttributes(attribute.String("operator", actor)),
	)
	defer span.End()

	if actor == "" {
		s.metrics.Refused("refused")
		span.SetStatus(codes.Error, RefusalReason)
		slog.Warn("evaluation refused", "reason", RefusalReason)
		return refusal(span), domain.ErrUnauthorized
	}
	if profile == nil {
		profile = &domain.ApplicantProfile{}
	}

	snapshot, err := s.snapshot(ctx)
	if err != nil {
		s.metrics.Refused("unavailable")
		span.RecordError(err)
		span.SetStatus(codes.Error, "rule set unavailable")
		slog.Error("evaluation aborted", "operator", actor, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrRulesUnavailable, err)
	}

	priorHits := s.screen(ctx, profile)

	result := s.engine.Score(profile, snapshot)
	outcome := s.dispatcher.Apply(ctx, profile, result, actor)
	s.publish(ctx, actor, profile, result)

	elapsed := time.Since(start)
	s.metrics.ObserveEvaluation(result, elapsed)

	span.SetAttributes(
		attribute.String("evaluation.id", result.ID),
		attribute.Int("evaluation.score", result.Score),
		attribute.Bool("evaluation.approved", result.Approved),
		attribute.Int("evaluation.triggered", len(result.TriggeredRules)),
		attribute.Int("evaluation.prior_hits", len(priorHits)),
	)

	slog.Info("evaluation completed",
		"evaluation_id", result.ID,
		"operator", actor,
		"score", result.Score,
		"approved", result.Approved,
		"triggered", len(result.TriggeredRules),
		"duration_ms", elapsed.Milliseconds(),
	)

	return &domain.EvaluationResponse{
		EvaluationID: result.ID,
		Approved:     result.Approved,
		Score:        result.Score,
		RuleResults:  result.TriggeredRules,
		PriorHits:    priorHits,
		Consequences: outcome.Summary(),
		Metadata: domain.EvaluationMetadata{
			TraceID:        traceID(span),
			RulesEvaluated: result.RulesEvaluated,
			TotalMs:        elapsed.Milliseconds(),
			EngineVersion:  EngineVersion,
		},
	}, nil
}

func refusal(span trace.Span) *domain.EvaluationResponse {
	r := domain.RefusalResult()
	return &domain.EvaluationResponse{
		Approved:    r.Approved,
		Score:       r.Score,
		RuleResults: r.TriggeredRules,
		Reason:      RefusalReason,
		Metadata: domain.EvaluationMetadata{
			TraceID:       traceID(span),
			EngineVersion: EngineVersion,
		},
	}
}

func (s *Service) snapshot(ctx context.Context) ([]*domain.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.engine.Snapshot(ctx, s.rules)
}

// screen looks the applicant up on the name list. It never affects the score.
func (s *Service) screen(ctx context.Context, profile *domain.ApplicantProfile) []*domain.NameListEntry {
	if s.names == nil || profile.Identification == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vt := domain.ValueTypeIDNumber
	hits, err := s.names.CheckHit(ctx, profile.Identification, &vt)
	if err != nil {
		slog.Warn("name list screening failed", "error", err)
		return nil
	}
	if len(hits) > 0 {
		s.metrics.PriorHit()
		slog.Info("applicant already on name list", "hits", len(hits))
	}
	return hits
}

func (s *Service) publish(ctx context.Context, actor string, profile *domain.ApplicantProfile, result *domain.EvaluationResult) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.DecisionEvent{
		EvaluationID:   result.ID,
		ApplicantID:    profile.Identification,
		ApplicantName:  profile.Name,
		Operator:       actor,
		Approved:       result.Approved,
		Score:          result.Score,
		TriggeredRules: result.TriggeredRules,
		Timestamp:      result.EvaluatedAt,
	})
	if err != nil {
		slog.Error("failed to encode decision event", "evaluation_id", result.ID, "error", err)
		return
	}

	topics := []string{domain.TopicDecision}
	if !result.Approved {
		topics = append(topics, domain.TopicRejected)
	}
	for _, topic := range topics {
		if err := s.bus.Publish(ctx, topic, payload); err != nil {
			s.metrics.PersistenceFailure("publish")
			slog.Error("failed to publish decision",
				"topic", topic,
				"evaluation_id", result.ID,
				"error", err,
			)
		}
	}
}

func traceID(span trace.Span) string {
	if id := span.SpanContext().TraceID(); id.IsValid() {
		return id.String()
	}
	return ""
}
