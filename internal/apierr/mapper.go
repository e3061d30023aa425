package apierr

import (
	"context"
	"errors"
	"net/http"
)

// Mapper translates an unclassified error into a status code and a JSON body.
type Mapper interface {
	Map(err error) (status int, body any)
}

// MapperFunc adapts a function to Mapper.
type MapperFunc func(err error) (int, any)

// Map calls f(err).
func (f MapperFunc) Map(err error) (int, any) {
	return f(err)
}

// Body is the envelope DefaultMapper writes.
type Body struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// DefaultMapper uses the status and message of a StatusError when one is
// wrapped in err. Anything else becomes a 500 whose message never includes
// the error text.
var DefaultMapper Mapper = MapperFunc(defaultMap)

func defaultMap(err error) (int, any) {
	status := http.StatusInternalServerError
	message := http.StatusText(status)

	var se *StatusError
	switch {
	case errors.As(err, &se):
		status = se.HTTPStatusCode()
		message = se.Message
		if message == "" {
			message = http.StatusText(status)
		}
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		message = "request timed out"
	}

	return status, Body{
		Status:     "error",
		StatusCode: status,
		Message:    message,
	}
}
