package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/tjfontaine/roots-api/internal/apierr"
	"github.com/tjfontaine/roots-api/internal/pipeline"
)

type bodyKey struct{}

// BodyParser decodes JSON request bodies of at most limit bytes. Only
// objects and arrays are accepted. The raw document is stored in the request
// context (see Body) and r.Body is rewound for downstream readers. Requests
// with any other content type pass through untouched.
func BodyParser(limit int64) pipeline.Stage {
	return pipeline.Stage{
		Name: "body-parser",
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return func(w http.ResponseWriter, r *http.Request) error {
				if r.Body == nil || r.Body == http.NoBody || !isJSON(r.Header.Get("Content-Type")) {
					return next(w, r)
				}

				raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
				r.Body.Close()
				if err != nil {
					var tooLarge *http.MaxBytesError
					if errors.As(err, &tooLarge) {
						return apierr.WrapStatus(http.StatusRequestEntityTooLarge, "request entity too large", err)
					}
					return apierr.WrapStatus(http.StatusBadRequest, "could not read request body", err)
				}

				doc, err := parseStrict(raw)
				if err != nil {
					return err
				}

				r.Body = io.NopCloser(bytes.NewReader(raw))
				ctx := context.WithValue(r.Context(), bodyKey{}, doc)
				return next(w, r.WithContext(ctx))
			}
		},
	}
}

// Body returns the JSON document parsed by BodyParser, or nil when the
// request carried none.
func Body(ctx context.Context) json.RawMessage {
	doc, _ := ctx.Value(bodyKey{}).(json.RawMessage)
	return doc
}

// parseStrict accepts an empty body as {} and otherwise requires a single
// JSON object or array.
func parseStrict(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("{}"), nil
	}

	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, apierr.NewStatus(http.StatusBadRequest, "request body must be a JSON object or array")
	}
	if !json.Valid(trimmed) {
		return nil, apierr.NewStatus(http.StatusBadRequest, "request body is not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}

// isJSON matches application/json and structured +json media types.
func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" ||
		(strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json"))
}
