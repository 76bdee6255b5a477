// Package daemon wires the identity backend, the session and the HTTP and
// control-socket front ends into one process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/al-bashkir/simplifyhealth/internal/app"
	"github.com/al-bashkir/simplifyhealth/internal/catalog"
	"github.com/al-bashkir/simplifyhealth/internal/config"
	"github.com/al-bashkir/simplifyhealth/internal/credstore"
	"github.com/al-bashkir/simplifyhealth/internal/httpserver"
	"github.com/al-bashkir/simplifyhealth/internal/identity"
	"github.com/al-bashkir/simplifyhealth/internal/identity/firebase"
	"github.com/al-bashkir/simplifyhealth/internal/identity/memory"
	"github.com/al-bashkir/simplifyhealth/internal/identity/oidc"
	"github.com/al-bashkir/simplifyhealth/internal/ipc"
	"github.com/al-bashkir/simplifyhealth/internal/metrics"
	"github.com/al-bashkir/simplifyhealth/internal/session"
)

// startupTimeout bounds provider discovery and session restore.
const startupTimeout = 30 * time.Second

// Daemon represents the main daemon process that coordinates all components.
type Daemon struct {
	cfg        *config.Config
	provider   identity.Provider
	sessionMgr *session.Manager
	deps       *app.Dependencies
	httpServer *httpserver.Server
	ipcServer  *ipc.Server
}

// New creates a new daemon with all components initialized.
func New(cfg *config.Config, version string) (*Daemon, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	provider, err := newProvider(ctx, &cfg.Identity)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity provider: %w", err)
	}

	slog.Info("identity provider initialized", "backend", cfg.Identity.Backend)

	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// Restores a persisted sign-in through the provider.
	sessionMgr := session.NewManager(ctx, provider, session.WithRecorder(collector))

	slog.Info("session manager initialized",
		"state", sessionMgr.Current().String(),
	)

	deps := app.New(sessionMgr, cat)

	httpServer, err := httpserver.NewServer(cfg, deps,
		httpserver.WithMetrics(collector, reg),
		httpserver.WithVersion(version),
	)
	if err != nil {
		sessionMgr.Close()
		return nil, fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	slog.Info("HTTP server initialized",
		"listen", cfg.Listen.HTTP,
		"tls", cfg.TLS.Enabled,
	)

	ipcServer := ipc.NewServer(cfg.Listen.Socket, ipc.NewSessionHandler(deps))

	slog.Info("IPC server initialized",
		"socket", cfg.Listen.Socket,
	)

	return &Daemon{
		cfg:        cfg,
		provider:   provider,
		sessionMgr: sessionMgr,
		deps:       deps,
		httpServer: httpServer,
		ipcServer:  ipcServer,
	}, nil
}

// newProvider builds the configured identity backend.
func newProvider(ctx context.Context, cfg *config.IdentityConfig) (identity.Provider, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		p := memory.New(memory.WithLatency(cfg.Memory.Latency))
		for _, u := range cfg.Memory.Users {
			if _, err := p.AddUser(u.Email, u.Password); err != nil {
				return nil, fmt.Errorf("failed to seed memory user: %w", err)
			}
		}
		return p, nil

	case config.BackendFirebase:
		return firebase.New(firebase.Config{
			APIKey:  cfg.Firebase.APIKey,
			BaseURL: cfg.Firebase.BaseURL,
			Timeout: cfg.Firebase.Timeout,
		}, credstore.NewFile(cfg.CredentialFile))

	case config.BackendOIDC:
		p, err := oidc.NewProvider(ctx, &cfg.OIDC, credstore.NewFile(cfg.CredentialFile))
		if err != nil {
			return nil, err
		}
		slog.Info("OIDC provider initialized",
			"issuer", cfg.OIDC.Issuer,
			"client_id", cfg.OIDC.ClientID,
		)
		return p, nil

	default:
		return nil, fmt.Errorf("unknown identity backend %q", cfg.Backend)
	}
}

// Run starts all daemon components and blocks until ctx is done, a shutdown
// signal is received, or the HTTP server fails.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting simplifyhealth daemon")

	// Start IPC server synchronously to catch startup errors
	if err := d.ipcServer.Start(ctx); err != nil {
		d.sessionMgr.Close()
		return fmt.Errorf("failed to start IPC server: %w", err)
	}

	// Start HTTP server in a goroutine (it blocks on ListenAndServe)
	httpErrCh := make(chan error, 1)
	go func() {
		if err := d.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- err
		}
		close(httpErrCh)
	}()

	// Wait for shutdown signal or startup error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("shutdown requested", "reason", ctx.Err())
	case err, ok := <-httpErrCh:
		if ok && err != nil {
			slog.Error("HTTP server failed", "error", err)
			runErr = fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	d.shutdown()
	return runErr
}

// shutdown stops the front ends first so no request reaches a closed session.
func (d *Daemon) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop IPC server
	if err := d.ipcServer.Stop(); err != nil {
		slog.Error("error stopping IPC server", "error", err)
	}

	// Stop HTTP server
	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("error stopping HTTP server", "error", err)
	}

	// Complete every state feed
	d.sessionMgr.Close()

	slog.Info("daemon shutdown complete")
}
