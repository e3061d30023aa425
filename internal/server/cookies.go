package server

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tjfontaine/roots-api/internal/pipeline"
)

type cookiesKey struct{}

// CookieParser exposes request cookies as a name to value map. When a name
// repeats, the first occurrence wins. Values are percent-decoded; a value
// that fails to decode is kept as sent.
func CookieParser() pipeline.Stage {
	return pipeline.Stage{
		Name: "cookie-parser",
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return func(w http.ResponseWriter, r *http.Request) error {
				jar := make(map[string]string)
				for _, c := range r.Cookies() {
					if _, seen := jar[c.Name]; seen {
						continue
					}
					value, err := url.PathUnescape(c.Value)
					if err != nil {
						value = c.Value
					}
					jar[c.Name] = value
				}

				ctx := context.WithValue(r.Context(), cookiesKey{}, jar)
				return next(w, r.WithContext(ctx))
			}
		},
	}
}

// Cookies returns the cookies parsed by CookieParser. The map must not be
// modified.
func Cookies(ctx context.Context) map[string]string {
	jar, _ := ctx.Value(cookiesKey{}).(map[string]string)
	return jar
}

// Cookie returns a single parsed cookie value.
func Cookie(ctx context.Context, name string) (string, bool) {
	v, ok := Cookies(ctx)[name]
	return v, ok
}
