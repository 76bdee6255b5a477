package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/al-bashkir/simplifyhealth/internal/app"
	"github.com/al-bashkir/simplifyhealth/internal/config"
	"github.com/al-bashkir/simplifyhealth/internal/metrics"
	"github.com/al-bashkir/simplifyhealth/internal/session"
)

// Server is the HTTP API over the session and catalog
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	mux        *http.ServeMux
	deps       *app.Dependencies
	info       session.Info
	collector  *metrics.Collector
	gatherer   prometheus.Gatherer
	version    string

	limiter     *IPRateLimiter
	authLimiter *IPRateLimiter

	done     chan struct{} // closed by Shutdown to end event streams
	doneOnce sync.Once
}

// Option configures optional Server features.
type Option func(*Server)

// WithMetrics records response codes into collector and serves gatherer
// at /metrics.
func WithMetrics(collector *metrics.Collector, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.collector = collector
		s.gatherer = gatherer
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, deps *app.Dependencies, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps == nil {
		return nil, errors.New("dependencies are required")
	}

	s := &Server{
		cfg:         cfg,
		mux:         http.NewServeMux(),
		deps:        deps,
		info:        deps.SessionInfo(),
		version:     "dev",
		limiter:     NewIPRateLimiter(rate.Limit(cfg.Limits.Rate), cfg.Limits.Burst),
		authLimiter: NewIPRateLimiter(rate.Limit(cfg.Limits.AuthRate), cfg.Limits.AuthBurst),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Register routes
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/session", s.handleSession)
	s.mux.HandleFunc("GET /api/session/events", s.handleSessionEvents)
	s.mux.Handle("POST /api/session/signin", s.authLimiter.Middleware(http.HandlerFunc(s.handleSignIn)))
	s.mux.Handle("POST /api/session/signup", s.authLimiter.Middleware(http.HandlerFunc(s.handleSignUp)))
	s.mux.Handle("POST /api/session/password-reset", s.authLimiter.Middleware(http.HandlerFunc(s.handlePasswordReset)))
	s.mux.HandleFunc("POST /api/session/signout", s.handleSignOut)
	s.mux.HandleFunc("GET /api/catalog", s.requireSignedIn(s.handleCatalog))
	s.mux.HandleFunc("GET /api/catalog/{slug}", s.requireSignedIn(s.handleCategory))
	s.mux.HandleFunc("GET /api/contact", s.requireSignedIn(s.handleContact))
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", metrics.Handler(s.gatherer))
	}

	// Wrap with middleware
	handler := loggingMiddleware(s.mux)
	handler = recoveryMiddleware(handler)
	handler = s.limiter.Middleware(handler)
	if s.collector != nil {
		handler = statusMiddleware(s.collector, handler)
	}
	handler = securityHeadersMiddleware(handler)

	// Create HTTP server. The event stream lifts its own write deadline.
	s.httpServer = &http.Server{
		Addr:         cfg.Listen.HTTP,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Configure TLS if enabled
	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			},
		}
		s.httpServer.TLSConfig = tlsConfig
	}

	return s, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	slog.Info("starting HTTP server",
		"addr", s.cfg.Listen.HTTP,
		"tls", s.cfg.TLS.Enabled,
	)

	if s.cfg.TLS.Enabled {
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server")
	s.doneOnce.Do(func() { close(s.done) })
	s.limiter.Stop()
	s.authLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}
