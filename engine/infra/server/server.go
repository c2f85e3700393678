// Package server exposes the agent core over HTTP: the chat endpoint, ticket
// and handoff lookups, guardrail diagnostics and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paylane/concierge/engine/guardrail"
	"github.com/paylane/concierge/engine/handoff"
	"github.com/paylane/concierge/engine/orchestrator"
	"github.com/paylane/concierge/engine/support"
	"github.com/paylane/concierge/pkg/config"
	"github.com/paylane/concierge/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Dependencies bundles the wired core services the server fronts.
type Dependencies struct {
	Config       *config.Config
	Log          logger.Logger
	Orchestrator *orchestrator.Service
	Guardrails   *guardrail.Service
	Support      *support.Service
	Handoff      *handoff.Service
}

// Server owns the HTTP surface and its metrics registry.
type Server struct {
	deps     Dependencies
	registry *prometheus.Registry
	engine   *gin.Engine
	http     *http.Server
}

func NewServer(deps Dependencies) *Server {
	if deps.Log == nil {
		deps.Log = logger.NewLogger(logger.DefaultConfig())
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(deps.Guardrails.Metrics())
	registry.MustRegister(deps.Support.Metrics())
	registry.MustRegister(deps.Handoff.Metrics())

	server := &Server{deps: deps, registry: registry}
	server.engine = server.buildRouter()
	return server
}

// Engine returns the configured router; tests drive it directly.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(CorrelationIDMiddleware(s.deps.Config.Server.CorrelationIDHeader))
	engine.Use(LoggerMiddleware(s.deps.Log))

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	engine.POST("/chat", s.handleChat)
	engine.GET("/tickets/:id", s.handleTicket)
	engine.GET("/users/:id/tickets", s.handleUserTickets)
	engine.GET("/handoffs/:token", s.handleHandoff)
	engine.GET("/guardrails/diagnostics", s.handleDiagnostics)
	return engine
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.deps.Config.Server.Host, s.deps.Config.Server.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Log.Info("HTTP server listening", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.deps.Log.Info("HTTP server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return <-errCh
}
