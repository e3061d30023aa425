// Package api is the route set mounted under the configured endpoint prefix.
// Handlers report failures by returning errors, which the request pipeline
// classifies and answers.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/roots-api/internal/apierr"
	"github.com/tjfontaine/roots-api/internal/auth"
	"github.com/tjfontaine/roots-api/internal/pipeline"
)

type Server struct {
	router      *chi.Mux
	startTime   time.Time
	logger      *slog.Logger
	preferences *PreferenceStore
}

func NewServer(logger *slog.Logger) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		startTime:   time.Now(),
		logger:      logger,
		preferences: NewPreferenceStore(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.NotFound(pipeline.Endpoint(func(http.ResponseWriter, *http.Request) error {
		return apierr.NewStatus(http.StatusNotFound, "Not Found")
	}).ServeHTTP)
	s.router.MethodNotAllowed(pipeline.Endpoint(func(http.ResponseWriter, *http.Request) error {
		return apierr.NewStatus(http.StatusMethodNotAllowed, "Method Not Allowed")
	}).ServeHTTP)

	s.router.Method(http.MethodGet, "/me", pipeline.Endpoint(s.handleMe))
	s.router.Method(http.MethodGet, "/me/preferences", pipeline.Endpoint(s.handleGetPreferences))
	s.router.Method(http.MethodPut, "/me/preferences", pipeline.Endpoint(s.handlePutPreferences))
	s.router.Method(http.MethodGet, "/stats", pipeline.Endpoint(s.handleStats))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type MeResponse struct {
	Subject   string     `json:"subject"`
	Issuer    string     `json:"issuer,omitempty"`
	Scopes    []string   `json:"scopes,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) error {
	p, err := principal(r)
	if err != nil {
		return err
	}

	resp := MeResponse{
		Subject: p.Subject,
		Issuer:  p.Issuer,
		Scopes:  p.Scopes,
	}
	if !p.ExpiresAt.IsZero() {
		exp := p.ExpiresAt
		resp.ExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) error {
	p, err := principal(r)
	if err != nil {
		return err
	}

	prefs, ok := s.preferences.Get(p.Subject)
	if !ok {
		return apierr.NewStatus(http.StatusNotFound, "no preferences stored")
	}
	writeJSON(w, http.StatusOK, prefs)
	return nil
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) error {
	p, err := principal(r)
	if err != nil {
		return err
	}

	prefs, err := DecodePreferences(r)
	if err != nil {
		return err
	}

	s.preferences.Put(p.Subject, prefs)
	s.logger.InfoContext(r.Context(), "preferences updated",
		slog.String("subject", p.Subject),
		slog.String("theme", prefs.Theme),
	)
	writeJSON(w, http.StatusOK, prefs)
	return nil
}

type StatsResponse struct {
	Uptime       string      `json:"uptime"`
	GoVersion    string      `json:"go_version"`
	NumGoroutine int         `json:"num_goroutine"`
	Memory       MemoryStats `json:"memory"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeJSON(w, http.StatusOK, StatsResponse{
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
	})
	return nil
}

// principal returns the identity the authentication gate attached. Its
// absence means the route was mounted without the gate.
func principal(r *http.Request) (*auth.Principal, error) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		return nil, apierr.Unauthorized("No authorization token was found")
	}
	return p, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
