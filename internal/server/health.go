package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthPath answers liveness probes.
const HealthPath = "/status"

// mountHealth registers GET and HEAD HealthPath ahead of the pipeline. Both
// answer 200 with an empty body.
func mountHealth(r chi.Router) {
	ok := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	r.Get(HealthPath, ok)
	r.Head(HealthPath, ok)
}
