package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
)

// APIKey is a stored key hash.
type APIKey struct {
	KeyHash     string
	Description string
}

// APIKeyVerifier accepts opaque keys whose SHA-256 hash is configured.
type APIKeyVerifier struct {
	keys map[string]APIKey // keyhash -> key
}

// NewAPIKeyVerifier creates a verifier for the given key hashes.
func NewAPIKeyVerifier(keys []APIKey) (*APIKeyVerifier, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one API key is required")
	}

	v := &APIKeyVerifier{keys: make(map[string]APIKey, len(keys))}
	for _, k := range keys {
		// HashAPIKey emits lowercase hex; accept hashes pasted in any case.
		k.KeyHash = strings.ToLower(strings.TrimSpace(k.KeyHash))
		if k.KeyHash == "" {
			return nil, errors.New("API key hash cannot be empty")
		}
		v.keys[k.KeyHash] = k
	}
	return v, nil
}

// Verify hashes token and looks it up among the configured keys.
func (v *APIKeyVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	keyHash := HashAPIKey(token)

	key, ok := v.keys[keyHash]
	if !ok {
		return nil, ErrInvalidToken
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(keyHash), []byte(key.KeyHash)) != 1 {
		return nil, ErrInvalidToken
	}

	subject := key.Description
	if subject == "" {
		subject = "apikey:" + keyHash[:12]
	}

	return &Principal{
		Subject:  subject,
		Metadata: map[string]string{"key_hash": keyHash},
	}, nil
}
