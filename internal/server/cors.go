package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/tjfontaine/roots-api/internal/apierr"
	"github.com/tjfontaine/roots-api/internal/pipeline"
)

// ErrNotAllowedByCORS rejects requests whose Origin is not whitelisted.
var ErrNotAllowedByCORS = apierr.NewStatus(http.StatusForbidden, "Not allowed by CORS")

// AllowedHeaders are the request headers browsers may send cross-origin.
var AllowedHeaders = []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}

var allowedMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPut,
	http.MethodPatch,
	http.MethodPost,
	http.MethodDelete,
}

// Whitelist is an immutable set of exact origins.
type Whitelist struct {
	origins []string
	set     map[string]struct{}
}

// NewWhitelist builds a whitelist. Duplicates are dropped; order is kept.
func NewWhitelist(origins ...string) *Whitelist {
	wl := &Whitelist{set: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if _, dup := wl.set[o]; dup {
			continue
		}
		wl.set[o] = struct{}{}
		wl.origins = append(wl.origins, o)
	}
	return wl
}

// Allows reports whether origin is an exact member.
func (wl *Whitelist) Allows(origin string) bool {
	_, ok := wl.set[origin]
	return ok
}

// Origins returns a copy of the members in configuration order.
func (wl *Whitelist) Origins() []string {
	out := make([]string, len(wl.origins))
	copy(out, wl.origins)
	return out
}

// CORS admits requests without an Origin header and requests from a
// whitelisted origin; everything else fails with ErrNotAllowedByCORS before
// any later stage runs. Admitted cross-origin requests are annotated by
// go-chi/cors, which also answers preflight requests itself.
func CORS(wl *Whitelist) pipeline.Stage {
	c := cors.New(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return wl.Allows(origin)
		},
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   AllowedHeaders,
		AllowCredentials: true,
	})

	return pipeline.Stage{
		Name: "cors",
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return func(w http.ResponseWriter, r *http.Request) error {
				if origins, present := r.Header["Origin"]; present {
					if len(origins) == 0 || !wl.Allows(origins[0]) {
						return ErrNotAllowedByCORS
					}
				}

				var err error
				c.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					err = next(w, r)
				})).ServeHTTP(w, r)
				return err
			}
		},
	}
}

// DeclareAllowedHeaders advertises AllowedHeaders and credential support on
// every admitted request.
func DeclareAllowedHeaders() pipeline.Stage {
	value := strings.Join(AllowedHeaders, ", ")
	return pipeline.Stage{
		Name: "allowed-headers",
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return func(w http.ResponseWriter, r *http.Request) error {
				w.Header().Set("Access-Control-Allow-Headers", value)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				return next(w, r)
			}
		},
	}
}
