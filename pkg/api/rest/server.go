package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/api"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/api/rest/middleware"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/config"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
)

// Config holds the REST server configuration
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSEnabled  bool
	CORSOrigins  []string
	Auth         middleware.AuthConfig
	RateLimit    middleware.RateLimitConfig
}

// ConfigFrom derives the REST configuration from the service configuration.
// Health and metrics stay reachable without a token.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.HTTPPort,
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
		Auth: middleware.AuthConfig{
			Enabled:     cfg.Auth.Enabled,
			JWTSecret:   cfg.Auth.JWTSecret,
			PublicPaths: []string{"/v1/health", "/metrics"},
		},
		RateLimit: middleware.RateLimitConfig{
			Enabled:        cfg.RateLimit.Enabled,
			RequestsPerSec: cfg.RateLimit.RequestsPerSec,
			Burst:          cfg.RateLimit.Burst,
			PerUser:        cfg.Auth.Enabled,
		},
	}
}

// Server represents the REST API server
type Server struct {
	config     Config
	handler    *Handler
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewServer creates a REST server answering from backend. logger and
// metrics may be nil; /metrics is only served with metrics.
func NewServer(config Config, backend api.Backend, logger *observability.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 15 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 15 * time.Second
	}

	server := &Server{
		config:  config,
		handler: NewHandler(backend),
		mux:     http.NewServeMux(),
		logger:  logger,
		metrics: metrics,
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.withMiddleware(server.mux),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/v1/health", s.handler.HealthCheck)
	s.mux.HandleFunc("/v1/stats", s.handler.GetStats)
	s.mux.HandleFunc("/v1/score", s.handler.Score)

	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}
}

// Handler returns the routed handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withMiddleware wraps the handler with all middleware
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last one wraps first)

	// Authentication (innermost, runs last)
	handler = middleware.AuthMiddleware(s.config.Auth)(handler)

	// Rate limiting
	rateLimiter := middleware.NewRateLimiter(s.config.RateLimit)
	handler = middleware.RateLimitMiddleware(rateLimiter)(handler)

	// CORS
	if s.config.CORSEnabled {
		handler = corsMiddleware(s.config.CORSOrigins)(handler)
	}

	// Request ids and access logging (outermost)
	handler = middleware.AccessLogMiddleware(observability.NewAccessLogger(s.logger), s.metrics)(handler)

	return handler
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", map[string]interface{}{"address": s.httpServer.Addr})

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
				allowed = true
				origin = "*"
			} else {
				for _, allowedOrigin := range allowedOrigins {
					if allowedOrigin == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
