// Package api exposes Lendguard over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/lendguard/internal/auth"
	"github.com/opensource-finance/lendguard/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// Deps are the components the API serves.
type Deps struct {
	Repo      domain.Repository
	Names     domain.NameListStore
	Rules     RuleCache
	Validator ExpressionValidator
	Evaluator Evaluator
	Cache     domain.Cache
	Bus       domain.EventBus
	Tokens    *auth.OperatorTokens
	Gatherer  prometheus.Gatherer
	Version   string
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)                  // CORS for browser clients
	router.Use(RecoverMiddleware)               // Recover from panics
	router.Use(TracingMiddleware)               // OpenTelemetry tracing
	router.Use(OperatorMiddleware(deps.Tokens)) // Operator identity
	router.Use(LoggingMiddleware)               // Request logging
	router.Use(middleware.RealIP)               // Extract real IP
	router.Use(middleware.Compress(5))          // Gzip compression

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// The evaluation endpoint answers a missing operator with the refusal body.
	router.Post("/evaluate", handler.Evaluate)

	router.Group(func(r chi.Router) {
		r.Use(RequireOperator)

		r.Post("/applications", handler.SubmitApplication)

		r.Get("/rules", handler.ListRules)
		r.Get("/rules/stats", handler.RuleStats)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Put("/rules/{id}", handler.UpdateRule)
		r.Delete("/rules/{id}", handler.DeleteRule)

		r.Get("/namelist", handler.ListNameList)
		r.Get("/namelist/hit", handler.CheckHit)
		r.Post("/namelist", handler.AddNameListEntry)
		r.Delete("/namelist/{id}", handler.DeleteNameListEntry)

		r.Get("/logs", handler.ListLogs)
		r.Get("/logs/pending", handler.PendingLogs)
		r.Post("/logs/{logId}/done", handler.MarkLogDone)
		r.Delete("/logs/{logId}", handler.DeleteLog)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
