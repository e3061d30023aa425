// Package auth verifies request credentials for the authentication gate.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tjfontaine/roots-api/internal/config"
)

var (
	// ErrTokenExpired is returned when a credential was valid but has expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken is returned for every other rejected credential.
	ErrInvalidToken = errors.New("invalid token")
)

// Principal is the verified identity behind a request.
type Principal struct {
	Subject   string
	Issuer    string
	Scopes    []string
	ExpiresAt time.Time
	Metadata  map[string]string
}

// Verifier checks a raw credential and returns who it belongs to. Rejections
// must wrap ErrTokenExpired or ErrInvalidToken.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// New builds the verifier selected by cfg.Mode.
func New(cfg config.AuthConfig) (Verifier, error) {
	switch cfg.Mode {
	case config.AuthModeJWT:
		v, err := NewJWTVerifier(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)
		if err != nil {
			return nil, err
		}
		return v, nil
	case config.AuthModeAPIKey:
		keys := make([]APIKey, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys = append(keys, APIKey{KeyHash: k.KeyHash, Description: k.Description})
		}
		v, err := NewAPIKeyVerifier(keys)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

// principalKey identifies the verified principal in a request context.
type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext retrieves the principal stored by the authentication gate.
// Returns nil if the request was not authenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalKey{}).(*Principal); ok {
		return p
	}
	return nil
}

// BearerToken extracts the credential from a "Bearer <token>" Authorization
// header. It returns an empty string when the header is absent or uses another
// scheme.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// HashAPIKey creates a SHA-256 hash of an API key for storage.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
