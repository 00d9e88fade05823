// Lendguard - Rule-driven risk decisions for loan applications.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/lendguard/internal/api"
	"github.com/opensource-finance/lendguard/internal/auth"
	"github.com/opensource-finance/lendguard/internal/bus"
	"github.com/opensource-finance/lendguard/internal/cache"
	"github.com/opensource-finance/lendguard/internal/consequence"
	"github.com/opensource-finance/lendguard/internal/decision"
	"github.com/opensource-finance/lendguard/internal/domain"
	"github.com/opensource-finance/lendguard/internal/metrics"
	"github.com/opensource-finance/lendguard/internal/repository"
	"github.com/opensource-finance/lendguard/internal/rules"
	"github.com/opensource-finance/lendguard/internal/screening"
	"github.com/opensource-finance/lendguard/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// ruleCacheTTL bounds how stale the active rule set can be on another
// instance after a rule mutation.
const ruleCacheTTL = 30 * time.Second

func main() {
	issueFor := flag.String("issue-token", "", "print an operator token for the given operator and exit")
	flag.Parse()

	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("LENDGUARD_TIER") == string(domain.TierPro) {
		cfg = domain.ProConfig()
	}
	if err := domain.LoadFromEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging)

	tokens := auth.NewOperatorTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if *issueFor != "" {
		token, err := tokens.Issue(*issueFor)
		if err != nil {
			slog.Error("failed to issue token", "operator", *issueFor, "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	slog.Info("starting lendguard",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"operator_tokens", tokens.Enabled(),
	)

	if err := run(cfg, tokens); err != nil {
		slog.Error("lendguard stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("lendguard shutdown complete")
}

func run(cfg *domain.Config, tokens *auth.OperatorTokens) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Rule Engine
	evaluator, err := rules.NewEvaluator()
	if err != nil {
		return fmt.Errorf("initialize rule evaluator: %w", err)
	}
	engine, err := rules.NewEngine(evaluator,
		rules.WithBaseScore(cfg.Scoring.BaseScore),
		rules.WithApprovalThreshold(cfg.Scoring.ApprovalThreshold),
	)
	if err != nil {
		return fmt.Errorf("initialize rule engine: %w", err)
	}

	if cfg.Scoring.SeedDefaultRules {
		seeded, err := repo.EnsureDefaultRules(ctx, rules.DefaultRules())
		if err != nil {
			return fmt.Errorf("seed default rules: %w", err)
		}
		slog.Info("default rules ensured", "inserted", seeded)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Decision service
	source := rules.NewCachedSource(repo, cacheImpl, ruleCacheTTL)
	names := screening.New(repo, cacheImpl, cfg.Cache.HitTTL)

	dispatcher := consequence.NewDispatcher(repo, names).WithObserver(m)
	dispatcher.MaterialityThreshold = cfg.Scoring.MaterialityThreshold
	dispatcher.RiskLevel = cfg.Scoring.BlacklistRiskLevel
	dispatcher.Timeout = cfg.Repository.QueryTimeout

	svc := decision.NewService(engine, source, dispatcher,
		decision.WithEventBus(busImpl),
		decision.WithMetrics(m),
		decision.WithScreening(names),
		decision.WithTimeout(cfg.Repository.QueryTimeout),
	)
	slog.Info("decision service initialized",
		"base_score", cfg.Scoring.BaseScore,
		"approval_threshold", engine.ApprovalThreshold(),
		"materiality_threshold", dispatcher.MaterialityThreshold,
	)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, svc)
		if err := asyncWorker.Start(worker.Config{}); err != nil {
			return fmt.Errorf("start async worker: %w", err)
		}
		slog.Info("async worker started")
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:      repo,
		Names:     names,
		Rules:     source,
		Validator: evaluator,
		Evaluator: svc,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Tokens:    tokens,
		Gatherer:  registry,
		Version:   Version,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		// Stop async worker first
		if asyncWorker != nil {
			if err := asyncWorker.Stop(); err != nil {
				slog.Error("failed to stop async worker", "error", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("lendguard is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	return g.Wait()
}

func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  LENDGUARD - loan application risk decisions")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /evaluate             - Evaluate an applicant")
	fmt.Println("    POST   /applications         - Queue an applicant for async evaluation")
	fmt.Println("    GET    /rules                - List rules")
	fmt.Println("    POST   /rules                - Create a rule")
	fmt.Println("    GET    /rules/stats          - Blacklist hits per rule")
	fmt.Println("    GET    /namelist/hit         - Check a value against the name list")
	fmt.Println("    GET    /logs/pending         - Unhandled warnings")
	fmt.Println("    GET    /health               - Health check")
	fmt.Println("    GET    /metrics              - Prometheus metrics")
	fmt.Println()
}
