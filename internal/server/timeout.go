package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds each request context by timeout. Handlers observe
// the deadline cooperatively; the pipeline runner stops between stages once
// it passes. A non-positive timeout disables the bound.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
