package server

import (
	"net/http"

	"github.com/unrolled/secure"

	"github.com/tjfontaine/roots-api/internal/apierr"
	"github.com/tjfontaine/roots-api/internal/pipeline"
)

const contentSecurityPolicy = "default-src 'self';base-uri 'self';font-src 'self' https: data:;" +
	"form-action 'self';frame-ancestors 'self';img-src 'self' data:;object-src 'none';" +
	"script-src 'self';script-src-attr 'none';style-src 'self' https: 'unsafe-inline';" +
	"upgrade-insecure-requests"

// staticSecurityHeaders are set on every response in addition to the ones
// produced by unrolled/secure.
var staticSecurityHeaders = map[string]string{
	"Cross-Origin-Opener-Policy":        "same-origin",
	"Cross-Origin-Resource-Policy":      "same-origin",
	"Origin-Agent-Cluster":              "?1",
	"X-DNS-Prefetch-Control":            "off",
	"X-Download-Options":                "noopen",
	"X-Permitted-Cross-Domain-Policies": "none",
}

// SecurityHeaders applies the standard set of defensive response headers.
func SecurityHeaders() pipeline.Stage {
	s := secure.New(secure.Options{
		STSSeconds:              15552000,
		STSIncludeSubdomains:    true,
		ForceSTSHeader:          true,
		CustomFrameOptionsValue: "SAMEORIGIN",
		ContentTypeNosniff:      true,
		CustomBrowserXssValue:   "0",
		ReferrerPolicy:          "no-referrer",
		ContentSecurityPolicy:   contentSecurityPolicy,
	})

	return pipeline.Stage{
		Name: "security-headers",
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return func(w http.ResponseWriter, r *http.Request) error {
				if err := s.Process(w, r); err != nil {
					return apierr.WrapStatus(http.StatusBadRequest, "Bad Request", err)
				}

				h := w.Header()
				for k, v := range staticSecurityHeaders {
					h.Set(k, v)
				}
				h.Del("X-Powered-By")

				return next(w, r)
			}
		},
	}
}
