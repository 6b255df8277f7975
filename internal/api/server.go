package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/explain"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/signature"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, store domain.Store, coord *cache.Coordinator, bus domain.EventBus, orchestrator *rules.Orchestrator, exprs *rules.ExpressionEngine, signatures *signature.Service, explainer *explain.Service, version string) *Server {
	handler := NewHandler(store, coord, bus, orchestrator, exprs, signatures, explainer, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health and metrics endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	// API routes (tenant required)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Transaction evaluation
		r.Post("/evaluate", handler.Evaluate)
		r.Post("/transactions", handler.IngestTransaction)
		r.Get("/transactions/{id}", handler.GetTransaction)

		// Evaluation retrieval and explanation
		r.Get("/evaluations/{id}", handler.GetEvaluation)
		r.Get("/evaluations/{id}/explain", handler.ExplainEvaluation)

		// Rule version management
		r.Post("/rules", handler.CreateRuleVersion)
		r.Get("/rules/{templateId}/versions", handler.ListRuleVersions)
		r.Get("/rules/versions/{id}", handler.GetRuleVersion)
		r.Post("/rules/versions/{id}/deactivate", handler.DeactivateRuleVersion)
		r.Get("/rules/versions/{id}/explain", handler.ExplainRule)

		// Compliance lists
		r.Post("/lists", handler.CreateList)
		r.Get("/lists", handler.ListLists)
		r.Get("/lists/{code}", handler.GetList)
		r.Delete("/lists/{code}", handler.DeleteList)
		r.Post("/lists/{code}/entries", handler.AddListEntry)
		r.Delete("/lists/{code}/entries/{value}", handler.RemoveListEntry)

		// Alerts
		r.Get("/alerts/{id}", handler.GetAlert)
		r.Post("/alerts/{id}/status", handler.UpdateAlertStatus)

		// Signature authorization
		r.Post("/signatures/rules", handler.CreateSignatureRule)
		r.Get("/signatures/rules/{id}", handler.GetSignatureRule)
		r.Get("/signatures/rules/{id}/combinations", handler.GetCombinations)
		r.Post("/signatures/groups", handler.CreateSignerGroup)
		r.Post("/signatures/signers", handler.CreateSigner)
		r.Post("/signatures/requests", handler.CreateSignatureRequest)
		r.Get("/signatures/requests/{id}", handler.GetSignatureRequest)
		r.Post("/signatures/requests/{id}/signatures", handler.AddSignature)
		r.Post("/signatures/{id}/sign", handler.SignSignature)
		r.Post("/signatures/{id}/reject", handler.RejectSignature)
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
