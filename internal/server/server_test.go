package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/roots-api/internal/apierr"
	"github.com/tjfontaine/roots-api/internal/auth"
	"github.com/tjfontaine/roots-api/internal/config"
	"github.com/tjfontaine/roots-api/internal/pipeline"
)

const validToken = "good-token"

// stubVerifier accepts validToken, reports "expired" as expired and rejects
// everything else.
type stubVerifier struct {
	calls atomic.Int32
}

func (v *stubVerifier) Verify(_ context.Context, token string) (*auth.Principal, error) {
	v.calls.Add(1)
	switch token {
	case validToken:
		return &auth.Principal{Subject: "user-1"}, nil
	case "expired":
		return nil, fmt.Errorf("%w: exp claim in the past", auth.ErrTokenExpired)
	default:
		return nil, auth.ErrInvalidToken
	}
}

type testServer struct {
	*Server
	verifier  *stubVerifier
	routeHits atomic.Int32
	logs      *bytes.Buffer
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{
			EndpointPrefix: "api",
			RequestTimeout: 5 * time.Second,
			BodyLimit:      1024,
		},
		CORS:      config.CORSConfig{Whitelist: config.DefaultWhitelist},
		Auth:      config.AuthConfig{CookieName: "token", PublicPaths: []string{"/api/public"}},
		Telemetry: config.TelemetryConfig{ServiceName: "roots-api-test"},
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{verifier: &stubVerifier{}, logs: &bytes.Buffer{}}
	logger := slog.New(slog.NewJSONHandler(ts.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	routes := chi.NewRouter()
	routes.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ts.routeHits.Add(1)
			next.ServeHTTP(w, r)
		})
	})
	routes.Get("/hello", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"subject": auth.PrincipalFromContext(r.Context()).Subject})
	})
	routes.Get("/public", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	routes.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Body(r.Context()))
	})
	routes.Post("/schema", pipeline.Endpoint(func(w http.ResponseWriter, r *http.Request) error {
		return apierr.Schema(errors.New("/name: expected string, but got number"))
	}).ServeHTTP)
	routes.Post("/validate", pipeline.Endpoint(func(w http.ResponseWriter, r *http.Request) error {
		return apierr.Validation(
			apierr.Violation{Field: "email", Constraints: []apierr.Constraint{
				{Name: "required", Message: "email should not be empty"},
				{Name: "email", Message: "email must be an email"},
			}},
			apierr.Violation{Field: "name", Constraints: []apierr.Constraint{
				{Name: "required", Message: "name should not be empty"},
				{Name: "min", Message: "name must be longer than or equal to 2 characters"},
			}},
		)
	}).ServeHTTP)
	routes.Get("/boom", pipeline.Endpoint(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("database password is hunter2")
	}).ServeHTTP)
	routes.Get("/teapot", pipeline.Endpoint(func(w http.ResponseWriter, r *http.Request) error {
		return apierr.NewStatus(http.StatusTeapot, "short and stout")
	}).ServeHTTP)

	srv, err := New(testConfig(), logger, ts.verifier, routes, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts.Server = srv
	return ts
}

func (ts *testServer) do(method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func authed(extra map[string]string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + validToken}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

// =============================================================================
// Assembly Tests
// =============================================================================

func TestServer_StageOrder(t *testing.T) {
	ts := newTestServer(t)

	want := []string{
		"trust-proxy",
		"security-headers",
		"body-parser",
		"cookie-parser",
		"cors",
		"allowed-headers",
		"auth",
	}
	if got := ts.StageNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("StageNames() = %v, want %v", got, want)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	if _, err := New(testConfig(), logger, nil, chi.NewRouter(), nil); err == nil {
		t.Error("expected error for nil verifier")
	}
	if _, err := New(testConfig(), logger, &stubVerifier{}, nil, nil); err == nil {
		t.Error("expected error for nil routes")
	}
}

// =============================================================================
// Health Check Tests
// =============================================================================

func TestServer_HealthCheck(t *testing.T) {
	ts := newTestServer(t)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		t.Run(method, func(t *testing.T) {
			rec := ts.do(method, "/status", "", map[string]string{"Origin": "http://evil.example"})

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rec.Body.String())
			}
		})
	}

	if n := ts.verifier.calls.Load(); n != 0 {
		t.Errorf("verifier called %d times, want 0", n)
	}
}

// =============================================================================
// CORS Tests
// =============================================================================

func TestServer_NoOriginAllowed(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/hello", "", authed(nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["subject"]; got != "user-1" {
		t.Errorf("subject = %v, want user-1", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q, want true", got)
	}
}

func TestServer_WhitelistedOrigin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/hello", "", authed(map[string]string{"Origin": "http://localhost"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost" {
		t.Errorf("Access-Control-Allow-Origin = %q, want http://localhost", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q, want true", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Origin, X-Requested-With, Content-Type, Accept" {
		t.Errorf("Access-Control-Allow-Headers = %q", got)
	}
}

func TestServer_RejectedOriginStopsBeforeAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/hello", "", authed(map[string]string{"Origin": "http://evil.example"}))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "Not allowed by CORS" {
		t.Errorf("message = %v, want %q", body["message"], "Not allowed by CORS")
	}
	if body["statusCode"] != float64(http.StatusForbidden) {
		t.Errorf("statusCode = %v, want 403", body["statusCode"])
	}
	if n := ts.verifier.calls.Load(); n != 0 {
		t.Errorf("verifier called %d times, want 0", n)
	}
	if n := ts.routeHits.Load(); n != 0 {
		t.Errorf("routes reached %d times, want 0", n)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
	}
}

func TestServer_EmptyOriginRejected(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	req.Header["Origin"] = []string{""}
	req.Header.Set("Authorization", "Bearer "+validToken)
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestServer_PreflightSkipsAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodOptions, "/api/hello", "", map[string]string{
		"Origin":                        "http://bhd1roots.com",
		"Access-Control-Request-Method": http.MethodGet,
	})

	if rec.Code < 200 || rec.Code >= 300 {
		t.Errorf("status = %d, want 2xx", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://bhd1roots.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want http://bhd1roots.com", got)
	}
	if n := ts.verifier.calls.Load(); n != 0 {
		t.Errorf("verifier called %d times, want 0", n)
	}
}

// =============================================================================
// Authentication Tests
// =============================================================================

func TestServer_Authentication(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		wantCode int
		wantErr  string
	}{
		{name: "no credential", wantCode: http.StatusUnauthorized, wantErr: "No authorization token was found"},
		{name: "expired", headers: map[string]string{"Authorization": "Bearer expired"}, wantCode: http.StatusUnauthorized, wantErr: "token expired"},
		{name: "invalid", headers: map[string]string{"Authorization": "Bearer forged"}, wantCode: http.StatusUnauthorized, wantErr: "invalid token"},
		{name: "non-bearer scheme", headers: map[string]string{"Authorization": "Basic " + validToken}, wantCode: http.StatusUnauthorized, wantErr: "No authorization token was found"},
		{name: "bearer", headers: authed(nil), wantCode: http.StatusOK},
		{name: "cookie", headers: map[string]string{"Cookie": "token=" + validToken}, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(http.MethodGet, "/api/hello", "", tt.headers)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr == "" {
				return
			}
			want := `{"error":"` + tt.wantErr + `"}`
			if got := strings.TrimSpace(rec.Body.String()); got != want {
				t.Errorf("body = %s, want %s", got, want)
			}
			if n := ts.routeHits.Load(); n != 0 {
				t.Errorf("routes reached %d times, want 0", n)
			}
		})
	}
}

func TestServer_UnauthorizedIsNotLogged(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/hello", "", map[string]string{"Authorization": "Bearer expired"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	logs := ts.logs.String()
	if strings.Contains(logs, `"error"`) {
		t.Errorf("logs carry an error field: %s", logs)
	}
	if strings.Contains(logs, `"level":"WARN"`) || strings.Contains(logs, `"level":"ERROR"`) {
		t.Errorf("unexpected warn/error log: %s", logs)
	}
}

func TestServer_PublicPath(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/public", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if n := ts.verifier.calls.Load(); n != 0 {
		t.Errorf("verifier called %d times, want 0", n)
	}
}

// =============================================================================
// Error Classification Tests
// =============================================================================

func TestServer_SchemaErrorBody(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/schema", `{"name":1}`, authed(map[string]string{"Content-Type": "application/json"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Invalid data"}` {
		t.Errorf("body = %s, want {\"error\":\"Invalid data\"}", got)
	}
	if !strings.Contains(ts.logs.String(), "expected string") {
		t.Error("expected schema detail in server logs")
	}
}

func TestServer_ValidationFlattening(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/validate", `{}`, authed(map[string]string{"Content-Type": "application/json"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var body struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"email should not be empty",
		"email must be an email",
		"name should not be empty",
		"name must be longer than or equal to 2 characters",
	}
	if !reflect.DeepEqual(body.Errors, want) {
		t.Errorf("errors = %v, want %v", body.Errors, want)
	}
}

func TestServer_CatchAll(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		wantCode    int
		wantMessage string
	}{
		{name: "unexpected error", path: "/api/boom", wantCode: 500, wantMessage: "Internal Server Error"},
		{name: "status error", path: "/api/teapot", wantCode: 418, wantMessage: "short and stout"},
		{name: "unmatched route", path: "/api/missing", wantCode: 404, wantMessage: "Not Found"},
		{name: "outside prefix", path: "/elsewhere", wantCode: 404, wantMessage: "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(http.MethodGet, tt.path, "", authed(nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			body := decodeBody(t, rec)
			if body["status"] != "error" {
				t.Errorf("status field = %v, want error", body["status"])
			}
			if body["message"] != tt.wantMessage {
				t.Errorf("message = %v, want %q", body["message"], tt.wantMessage)
			}
			if strings.Contains(rec.Body.String(), "hunter2") {
				t.Error("internal error text leaked to client")
			}
		})
	}
}

func TestServer_UnmatchedRouteRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/missing", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// =============================================================================
// Stage Integration Tests
// =============================================================================

func TestServer_SecurityHeaders(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/hello", "", authed(nil))

	want := map[string]string{
		"X-Content-Type-Options":     "nosniff",
		"X-Frame-Options":            "SAMEORIGIN",
		"Referrer-Policy":            "no-referrer",
		"Strict-Transport-Security":  "max-age=15552000; includeSubDomains",
		"X-Xss-Protection":           "0",
		"Cross-Origin-Opener-Policy": "same-origin",
		"X-Dns-Prefetch-Control":     "off",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("expected Content-Security-Policy header")
	}
}

func TestServer_SecurityHeadersOnErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/hello", "", nil)
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on 401 response")
	}
}

func TestServer_BodyRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/echo", `{"a":[1,2]}`, authed(map[string]string{"Content-Type": "application/json"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"a":[1,2]}` {
		t.Errorf("body = %s", got)
	}
}

func TestServer_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t)

	big := `{"pad":"` + strings.Repeat("x", 2048) + `"}`
	rec := ts.do(http.MethodPost, "/api/echo", big, authed(map[string]string{"Content-Type": "application/json"}))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestServer_RequestIDHeader(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/status", "", nil)
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID header")
	}
}
