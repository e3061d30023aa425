package api

import (
	"errors"
	"net/http"
	"sync"

	"github.com/tjfontaine/roots-api/internal/apierr"
	"github.com/tjfontaine/roots-api/internal/server"
	"github.com/tjfontaine/roots-api/internal/validate"
)

var errNoDocument = errors.New("request carried no JSON document")

// Preferences are the per-user display settings.
type Preferences struct {
	Theme    string `json:"theme" validate:"required,oneof=light dark system"`
	Language string `json:"language" validate:"required,min=2,max=8"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
}

var preferencesSchema = validate.MustCompileSchema("preferences.json", `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"theme": {"type": "string"},
		"language": {"type": "string"},
		"email": {"type": "string"}
	},
	"required": ["theme", "language"],
	"additionalProperties": false
}`)

// DecodePreferences reads the document the body parser attached to the
// request, checks its shape against the preferences schema and then the field
// rules of Preferences. Requests without a parsed JSON document fail the
// schema check.
func DecodePreferences(r *http.Request) (Preferences, error) {
	var prefs Preferences

	doc := server.Body(r.Context())
	if doc == nil {
		return prefs, apierr.Schema(errNoDocument)
	}

	if err := validate.Decode(doc, preferencesSchema, &prefs); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

// PreferenceStore keeps preferences in memory, keyed by subject.
type PreferenceStore struct {
	mu    sync.RWMutex
	prefs map[string]Preferences
}

func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{prefs: make(map[string]Preferences)}
}

func (s *PreferenceStore) Get(subject string) (Preferences, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[subject]
	return p, ok
}

func (s *PreferenceStore) Put(subject string, p Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[subject] = p
}
