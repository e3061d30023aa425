package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/roots-api/internal/apierr"
	"github.com/tjfontaine/roots-api/internal/auth"
	"github.com/tjfontaine/roots-api/internal/config"
	"github.com/tjfontaine/roots-api/internal/pipeline"
)

// ErrNotFound is raised for paths no route matches.
var ErrNotFound = apierr.NewStatus(http.StatusNotFound, "Not Found")

// ErrMethodNotAllowed is raised for a known path with an unsupported method.
var ErrMethodNotAllowed = apierr.NewStatus(http.StatusMethodNotAllowed, "Method Not Allowed")

type Server struct {
	Router   *chi.Mux
	Port     int
	logger   *slog.Logger
	pipeline *pipeline.Pipeline
}

// New assembles the service: health checks first, then the request pipeline
// (trust-proxy, security headers, body parser, cookie parser, CORS admission,
// header declaration, authentication) in front of routes mounted under
// /<endpoint_prefix>. A nil mapper selects apierr.DefaultMapper.
func New(cfg config.Config, logger *slog.Logger, verifier auth.Verifier, routes http.Handler, mapper apierr.Mapper) (*Server, error) {
	if verifier == nil {
		return nil, errors.New("server: verifier is required")
	}
	if routes == nil {
		return nil, errors.New("server: routes are required")
	}

	responder := NewErrorResponder(logger, mapper)
	p := pipeline.New(responder.Respond, Stages(cfg, verifier)...)

	api := chi.NewRouter()
	api.NotFound(pipeline.Endpoint(func(http.ResponseWriter, *http.Request) error {
		return ErrNotFound
	}).ServeHTTP)
	api.MethodNotAllowed(pipeline.Endpoint(func(http.ResponseWriter, *http.Request) error {
		return ErrMethodNotAllowed
	}).ServeHTTP)
	api.Mount("/"+strings.Trim(cfg.Server.EndpointPrefix, "/"), routes)

	handler := p.Then(pipeline.Delegate(api))

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(cfg.Server.RequestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, cfg.Telemetry.ServiceName)
	})

	mountHealth(r)
	r.MethodNotAllowed(handler.ServeHTTP)
	r.Mount("/", handler)

	return &Server{
		Router:   r,
		Port:     cfg.Server.Port,
		logger:   logger,
		pipeline: p,
	}, nil
}

// Stages returns the pipeline stages in execution order.
func Stages(cfg config.Config, verifier auth.Verifier) []pipeline.Stage {
	return []pipeline.Stage{
		pipeline.Middleware("trust-proxy", middleware.RealIP),
		SecurityHeaders(),
		BodyParser(cfg.Server.BodyLimit),
		CookieParser(),
		CORS(NewWhitelist(cfg.CORS.Whitelist...)),
		DeclareAllowedHeaders(),
		AuthGate(verifier, cfg.Auth.CookieName, cfg.Auth.PublicPaths),
	}
}

// StageNames lists the assembled pipeline in execution order.
func (s *Server) StageNames() []string {
	return s.pipeline.Names()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}
