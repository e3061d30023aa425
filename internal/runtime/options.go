package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/roots-api/internal/apierr"
	"github.com/tjfontaine/roots-api/internal/auth"
	"github.com/tjfontaine/roots-api/internal/config"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) error {
		if cfg == nil {
			return errors.New("config must not be nil")
		}
		a.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from path plus environment overrides.
func WithConfigFile(path string) Option {
	return func(a *App) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
		a.cfg = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithVerifier replaces the verifier selected by auth.mode.
func WithVerifier(v auth.Verifier) Option {
	return func(a *App) error {
		a.verifier = v
		return nil
	}
}

// WithRoutes mounts h under the endpoint prefix instead of the built-in
// route set.
func WithRoutes(h http.Handler) Option {
	return func(a *App) error {
		a.routes = h
		return nil
	}
}

// WithErrorMapper sets the catch-all mapper for unclassified errors.
func WithErrorMapper(m apierr.Mapper) Option {
	return func(a *App) error {
		a.mapper = m
		return nil
	}
}

// WithAddr overrides the listen address derived from server.port.
func WithAddr(addr string) Option {
	return func(a *App) error {
		a.addr = addr
		return nil
	}
}
