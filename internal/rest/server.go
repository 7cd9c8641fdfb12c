// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

// Package rest implements the Formloom HTTP API. Authentication is
// passkey-only: accounts are created with a signup call, credentials
// are added through WebAuthn ceremonies, and sessions are carried by
// short-lived access tokens with rotating refresh tokens.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/formloom/formloom/pkg/gateway"
	"github.com/formloom/formloom/pkg/logger"
	"github.com/formloom/formloom/pkg/metrics"
	"github.com/formloom/formloom/pkg/passkey"
	"github.com/formloom/formloom/pkg/ratelimit"
	"github.com/formloom/formloom/pkg/token"
	"github.com/formloom/formloom/pkg/user"
)

// Server represents the Formloom REST API server.
type Server struct {
	server         *http.Server
	handlers       *AuthHandlers
	gateway        *gateway.Gateway
	limiter        *ratelimit.Limiter
	logger         logger.Logger
	addr           string
	version        string
	allowedOrigins []string
	metricsPath    string
	healthPath     string
}

// Config holds the REST server configuration.
type Config struct {
	// Addr is the host:port to listen on (default: localhost:8443)
	Addr string

	// Passkeys runs the WebAuthn ceremonies (required)
	Passkeys *passkey.Service

	// Tokens issues and verifies token pairs (required)
	Tokens *token.Service

	// Gateway authenticates bearer tokens (required)
	Gateway *gateway.Gateway

	// Users is the account persistence layer (required)
	Users user.Store

	// Limiter throttles the unauthenticated auth endpoints (optional)
	Limiter *ratelimit.Limiter

	// Logger is the logging adapter (optional)
	Logger logger.Logger

	// Version is the API version string
	Version string

	// AllowedOrigins lists origins permitted by the CORS layer
	AllowedOrigins []string

	// MetricsPath exposes Prometheus metrics when non-empty
	MetricsPath string

	// HealthPath exposes the health check when non-empty
	HealthPath string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Passkeys == nil {
		return nil, fmt.Errorf("passkey service is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}

	// Set defaults
	if cfg.Addr == "" {
		cfg.Addr = "localhost:8443"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogAdapter(&logger.SlogConfig{
			Level: logger.LevelInfo,
		})
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.New(nil)
	}

	server := &Server{
		handlers:       NewAuthHandlers(cfg.Passkeys, cfg.Tokens, cfg.Users, log),
		gateway:        cfg.Gateway,
		limiter:        limiter,
		logger:         log,
		addr:           cfg.Addr,
		version:        cfg.Version,
		allowedOrigins: cfg.AllowedOrigins,
		metricsPath:    cfg.MetricsPath,
		healthPath:     cfg.HealthPath,
	}

	router := server.setupRouter()

	server.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server, nil
}

// writeAuthError renders gateway failures with the shared error mapping.
func writeAuthError(w http.ResponseWriter, _ *http.Request, err error) {
	handleError(w, err)
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(s.RecoveryMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(s.CORSMiddleware())

	if s.healthPath != "" {
		r.Get(s.healthPath, s.HealthHandler)
		r.Head(s.healthPath, s.HealthHandler)
	}
	if s.metricsPath != "" {
		r.Handle(s.metricsPath, promhttp.Handler())
	}

	requireAuth := s.gateway.Middleware(writeAuthError)
	optionalAuth := s.gateway.OptionalMiddleware()
	requireAdmin := s.gateway.RequireRole(writeAuthError, user.RoleAdmin)

	r.Route("/api/v1/auth", func(r chi.Router) {
		// Ceremony and token endpoints are unauthenticated and
		// throttled per client IP
		r.Group(func(r chi.Router) {
			r.Use(ratelimit.Middleware(s.limiter))

			r.Post("/register", s.handlers.SignupHandler)
			r.Post("/passkey/login/options", s.handlers.LoginOptionsHandler)
			r.Post("/passkey/login/verify", s.handlers.LoginVerifyHandler)
			r.Post("/refresh", s.handlers.RefreshHandler)

			// Passkey registration resolves the account from the
			// session when one is presented, so an authenticated user
			// can add a second passkey
			r.Group(func(r chi.Router) {
				r.Use(optionalAuth)
				r.Post("/passkey/register/options", s.handlers.RegisterOptionsHandler)
				r.Post("/passkey/register/verify", s.handlers.RegisterVerifyHandler)
			})
		})

		// Session endpoints
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Post("/logout", s.handlers.LogoutHandler)
			r.Get("/me", s.handlers.MeHandler)
			r.Get("/credentials", s.handlers.ListCredentialsHandler)
			r.Delete("/credentials/{id}", s.handlers.DeleteCredentialHandler)
		})
	})

	// Admin endpoints
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(requireAdmin)

		r.Get("/users", s.handlers.ListUsersHandler)
		r.Put("/users/{id}", s.handlers.UpdateUserHandler)
	})

	return r
}

// HealthHandler reports server liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Version: s.version}, http.StatusOK)
}

// Handler returns the configured router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the REST API server.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", logger.String("addr", s.addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", logger.Error(err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.addr
}
