package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"sentra-hq/bastion/pkg/config"
	"sentra-hq/bastion/pkg/waf/engine"
)

// Server is the admin HTTP server. It exposes metrics, health, and
// policy endpoints; it does not sit in the request path.
type Server struct {
	config       *config.ServerConfig
	engine       *engine.Engine
	metrics      http.Handler
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a new admin server. metricsHandler may be nil when
// metrics are disabled; the /metrics route is then omitted.
func NewServer(cfg *config.ServerConfig, eng *engine.Engine, metricsHandler http.Handler) *Server {
	return &Server{
		config:       cfg,
		engine:       eng,
		metrics:      metricsHandler,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until the context is
// cancelled, Shutdown is called, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting admin server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		slog.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("admin server stopped")
	})

	return shutdownErr
}

// setupRoutes configures HTTP routes.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/policy", s.handlePolicy)
	mux.HandleFunc("/policy/reload", s.handleReload)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	if s.engine.ActivePolicy() == nil {
		status = http.StatusServiceUnavailable
		body["status"] = "no active policy"
	}
	writeJSON(w, status, body)
}

// handlePolicy reports the active policy version and rule counts.
func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	policy := s.engine.ActivePolicy()
	if policy == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no active policy"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":           policy.Version,
		"mode":              policy.Settings.Mode,
		"match_rules":       len(policy.MatchRules),
		"rate_limit_rules":  len(policy.RateRules),
		"managed_rule_sets": len(policy.ManagedSets),
	})
}

// handleReload triggers a reload from the engine's policy source. The
// previous policy stays active when the reload fails.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.engine.Reload(r.Context()); err != nil {
		slog.Error("policy reload failed", "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	policy := s.engine.ActivePolicy()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "reloaded",
		"version": policy.Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
