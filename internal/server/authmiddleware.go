package server

import (
	"errors"
	"net/http"

	"github.com/tjfontaine/roots-api/internal/apierr"
	"github.com/tjfontaine/roots-api/internal/auth"
	"github.com/tjfontaine/roots-api/internal/pipeline"
)

// Client-facing authentication failure messages.
const (
	MsgNoToken      = "No authorization token was found"
	MsgTokenExpired = "token expired"
	MsgInvalidToken = "invalid token"
)

// AuthGate requires a verified credential on every request except those
// whose path is listed in publicPaths. The credential is read from a Bearer
// Authorization header first, then from the cookieName cookie. On success the
// principal is stored in the request context.
func AuthGate(verifier auth.Verifier, cookieName string, publicPaths []string) pipeline.Stage {
	public := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = struct{}{}
	}

	return pipeline.Stage{
		Name: "auth",
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return func(w http.ResponseWriter, r *http.Request) error {
				if _, ok := public[r.URL.Path]; ok {
					return next(w, r)
				}

				token := auth.BearerToken(r)
				if token == "" && cookieName != "" {
					token, _ = Cookie(r.Context(), cookieName)
				}
				if token == "" {
					return apierr.Unauthorized(MsgNoToken)
				}

				principal, err := verifier.Verify(r.Context(), token)
				if err != nil {
					if errors.Is(err, auth.ErrTokenExpired) {
						return apierr.Unauthorized(MsgTokenExpired)
					}
					return apierr.Unauthorized(MsgInvalidToken)
				}

				AddLogField(r.Context(), "subject", principal.Subject)
				return next(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
			}
		},
	}
}
