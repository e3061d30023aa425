// Package runtime wires configuration, credential verification, the request
// pipeline and the HTTP listener into a runnable App.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tjfontaine/roots-api/internal/api"
	"github.com/tjfontaine/roots-api/internal/apierr"
	"github.com/tjfontaine/roots-api/internal/auth"
	"github.com/tjfontaine/roots-api/internal/config"
	"github.com/tjfontaine/roots-api/internal/server"
)

// App is the assembled service. It can be embedded in a larger program or
// run standalone from cmd/server.
type App struct {
	// Dependencies (injected via options)
	cfg      *config.Config
	logger   *slog.Logger
	verifier auth.Verifier
	routes   http.Handler
	mapper   apierr.Mapper
	addr     string

	server     *server.Server
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
}

// New creates an App with the given options. Without WithConfig the
// configuration is loaded from config.yaml and the environment. The verifier
// and route set default to the ones selected by the configuration.
func New(opts ...Option) (*App, error) {
	app := &App{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if app.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		app.cfg = cfg
	}
	if err := app.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if app.verifier == nil {
		v, err := auth.New(app.cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("create verifier: %w", err)
		}
		app.verifier = v
	}
	if app.routes == nil {
		app.routes = api.NewServer(app.logger)
	}
	if app.addr == "" {
		app.addr = fmt.Sprintf(":%d", app.cfg.Server.Port)
	}

	srv, err := server.New(*app.cfg, app.logger, app.verifier, app.routes, app.mapper)
	if err != nil {
		return nil, fmt.Errorf("assemble pipeline: %w", err)
	}
	app.server = srv

	app.logger.Debug("pipeline assembled",
		slog.Any("stages", srv.StageNames()),
		slog.String("prefix", "/"+app.cfg.Server.EndpointPrefix),
		slog.String("auth_mode", app.cfg.Auth.Mode),
	)

	return app, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start binds the listener and serves in the background.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.httpServer != nil {
		return errors.New("app already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.addr, err)
	}

	hs := &http.Server{
		Handler:           a.server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.listener = ln
	a.httpServer = hs

	go func() {
		a.logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight requests
// until ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.httpServer == nil {
		return nil
	}

	a.logger.Info("shutting down")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}
