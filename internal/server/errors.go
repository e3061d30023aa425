package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/roots-api/internal/apierr"
)

// msgInvalidData is the only body sent for schema failures.
const msgInvalidData = "Invalid data"

type messageBody struct {
	Error string `json:"error"`
}

type errorsBody struct {
	Errors []string `json:"errors"`
}

// ErrorResponder is the tail of the pipeline: it classifies the error that
// ended a traversal and writes exactly one JSON response for it.
type ErrorResponder struct {
	logger *slog.Logger
	mapper apierr.Mapper
}

// NewErrorResponder creates a responder. A nil mapper selects
// apierr.DefaultMapper.
func NewErrorResponder(logger *slog.Logger, mapper apierr.Mapper) *ErrorResponder {
	if mapper == nil {
		mapper = apierr.DefaultMapper
	}
	return &ErrorResponder{logger: logger, mapper: mapper}
}

// Respond writes the response for err. Schema errors, validation errors and
// authentication failures are answered directly; everything else goes to the
// mapper.
func (er *ErrorResponder) Respond(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	if errors.Is(err, context.Canceled) {
		er.logger.DebugContext(ctx, "request abandoned",
			slog.String("request_id", GetRequestID(ctx)),
			slog.String("error", err.Error()),
		)
		return
	}

	switch apierr.KindOf(err) {
	case apierr.KindSchema:
		er.logger.WarnContext(ctx, "schema validation failed",
			slog.String("request_id", GetRequestID(ctx)),
			slog.String("error", err.Error()),
		)
		AddError(ctx, err)
		writeJSON(w, http.StatusBadRequest, messageBody{Error: msgInvalidData})

	case apierr.KindValidation:
		msgs := apierr.As(err).Messages()
		er.logger.WarnContext(ctx, "request validation failed",
			slog.String("request_id", GetRequestID(ctx)),
			slog.Any("errors", msgs),
		)
		AddError(ctx, err)
		writeJSON(w, http.StatusBadRequest, errorsBody{Errors: msgs})

	case apierr.KindUnauthorized:
		writeJSON(w, http.StatusUnauthorized, messageBody{Error: apierr.As(err).Message})

	case apierr.KindUnclassified:
		status, body := er.mapper.Map(err)
		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		er.logger.Log(ctx, level, "request failed",
			slog.String("request_id", GetRequestID(ctx)),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		AddError(ctx, err)
		writeJSON(w, status, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
