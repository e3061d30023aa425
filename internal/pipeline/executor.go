package pipeline

import (
	"context"
	"net/http"
)

// Handler serves a request and reports failure by returning an error instead
// of writing an error response.
type Handler func(w http.ResponseWriter, r *http.Request) error

// Stage is one named step of the pipeline. Wrap receives the remainder of the
// pipeline and returns the handler for this step.
type Stage struct {
	Name string
	Wrap func(next Handler) Handler
}

// ErrorHandler receives the error that terminated a traversal.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Pipeline is an immutable ordered list of stages with an error tail.
type Pipeline struct {
	stages  []Stage
	onError ErrorHandler
}

// New creates a pipeline. The stage list is copied, so later changes to the
// caller's slice have no effect.
func New(onError ErrorHandler, stages ...Stage) *Pipeline {
	copied := make([]Stage, len(stages))
	copy(copied, stages)

	return &Pipeline{
		stages:  copied,
		onError: onError,
	}
}

// Names returns the stage names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Then returns an http.Handler that runs every stage in order and finally
// calls final. The first error returned anywhere in the chain is passed to
// the pipeline's error handler.
func (p *Pipeline) Then(final Handler) http.Handler {
	h := guard(final)
	for i := len(p.stages) - 1; i >= 0; i-- {
		h = guard(p.stages[i].Wrap(h))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil && p.onError != nil {
			p.onError(w, r, err)
		}
	})
}

// guard stops the traversal once the request context is done.
func guard(next Handler) Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := r.Context().Err(); err != nil {
			return err
		}
		return next(w, r)
	}
}

// Middleware adapts a conventional net/http middleware into a stage. Errors
// raised further down the pipeline cross the middleware unchanged. If the
// middleware answers the request itself the traversal ends without error.
func Middleware(name string, mw func(http.Handler) http.Handler) Stage {
	return Stage{
		Name: name,
		Wrap: func(next Handler) Handler {
			return func(w http.ResponseWriter, r *http.Request) error {
				var err error
				mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					err = next(w, r)
				})).ServeHTTP(w, r)
				return err
			}
		},
	}
}

// slotKey identifies the request-scoped error slot.
type slotKey struct{}

type slot struct {
	err error
}

// Delegate turns a plain http.Handler, typically a router, into the final
// Handler of a pipeline. Errors raised by Endpoint handlers or Raise inside it
// are returned to the pipeline.
func Delegate(next http.Handler) Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		s := &slot{}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), slotKey{}, s)))
		return s.err
	}
}

// Endpoint adapts an error-returning handler for registration on a router
// that sits behind Delegate. Outside a pipeline a returned error is answered
// with a bare 500.
func Endpoint(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		if !Raise(r, err) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})
}

// Raise hands err back to the enclosing pipeline from a plain http.Handler.
// It reports whether a pipeline was listening. The first raised error wins.
func Raise(r *http.Request, err error) bool {
	s, ok := r.Context().Value(slotKey{}).(*slot)
	if !ok {
		return false
	}
	if s.err == nil {
		s.err = err
	}
	return true
}
