package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

// recordingStage appends its name to calls and then continues the pipeline.
func recordingStage(name string, calls *[]string) Stage {
	return Stage{
		Name: name,
		Wrap: func(next Handler) Handler {
			return func(w http.ResponseWriter, r *http.Request) error {
				*calls = append(*calls, name)
				return next(w, r)
			}
		},
	}
}

// failingStage returns err without calling the rest of the pipeline.
func failingStage(name string, err error, calls *[]string) Stage {
	return Stage{
		Name: name,
		Wrap: func(next Handler) Handler {
			return func(w http.ResponseWriter, r *http.Request) error {
				*calls = append(*calls, name)
				return err
			}
		},
	}
}

type capturedError struct {
	err   error
	calls int
}

func (c *capturedError) handle(w http.ResponseWriter, r *http.Request, err error) {
	c.err = err
	c.calls++
	w.WriteHeader(http.StatusTeapot)
}

// =============================================================================
// Pipeline Tests
// =============================================================================

func TestPipeline_RunsStagesInOrder(t *testing.T) {
	var calls []string
	captured := &capturedError{}

	p := New(captured.handle,
		recordingStage("first", &calls),
		recordingStage("second", &calls),
		recordingStage("third", &calls),
	)

	h := p.Then(func(w http.ResponseWriter, r *http.Request) error {
		calls = append(calls, "final")
		w.WriteHeader(http.StatusNoContent)
		return nil
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"first", "second", "third", "final"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if captured.calls != 0 {
		t.Errorf("error handler called %d times, want 0", captured.calls)
	}
}

func TestPipeline_ErrorStopsTraversal(t *testing.T) {
	var calls []string
	captured := &capturedError{}
	boom := errors.New("boom")

	p := New(captured.handle,
		recordingStage("first", &calls),
		failingStage("second", boom, &calls),
		recordingStage("third", &calls),
	)

	h := p.Then(func(w http.ResponseWriter, r *http.Request) error {
		t.Error("final handler should not run")
		return nil
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if want := []string{"first", "second"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	if !errors.Is(captured.err, boom) {
		t.Errorf("captured error = %v, want %v", captured.err, boom)
	}
	if captured.calls != 1 {
		t.Errorf("error handler called %d times, want 1", captured.calls)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestPipeline_StageListIsCopied(t *testing.T) {
	var calls []string
	stages := []Stage{recordingStage("a", &calls), recordingStage("b", &calls)}

	p := New(nil, stages...)
	stages[0] = recordingStage("mutated", &calls)

	if want := []string{"a", "b"}; !reflect.DeepEqual(p.Names(), want) {
		t.Errorf("Names() = %v, want %v", p.Names(), want)
	}
}

func TestPipeline_CancelledContextAbandonsTraversal(t *testing.T) {
	var calls []string
	captured := &capturedError{}

	p := New(captured.handle, recordingStage("first", &calls))
	h := p.Then(func(w http.ResponseWriter, r *http.Request) error {
		t.Error("final handler should not run")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
	if !errors.Is(captured.err, context.Canceled) {
		t.Errorf("captured error = %v, want context.Canceled", captured.err)
	}
}

// =============================================================================
// Middleware Adapter Tests
// =============================================================================

func TestMiddleware_PassesErrorsThrough(t *testing.T) {
	captured := &capturedError{}
	boom := errors.New("boom")

	headerMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Adapted", "yes")
			next.ServeHTTP(w, r)
		})
	}

	p := New(captured.handle, Middleware("adapted", headerMW))
	h := p.Then(func(w http.ResponseWriter, r *http.Request) error {
		return boom
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-Adapted") != "yes" {
		t.Error("expected adapted middleware to run")
	}
	if !errors.Is(captured.err, boom) {
		t.Errorf("captured error = %v, want %v", captured.err, boom)
	}
}

func TestMiddleware_ShortCircuit(t *testing.T) {
	captured := &capturedError{}

	answering := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		})
	}

	p := New(captured.handle, Middleware("answering", answering))
	h := p.Then(func(w http.ResponseWriter, r *http.Request) error {
		t.Error("final handler should not run")
		return nil
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if captured.calls != 0 {
		t.Error("error handler should not run when middleware answers")
	}
}

func TestMiddleware_SeesReplacedRequest(t *testing.T) {
	type key struct{}

	withValue := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), key{}, "v")))
		})
	}

	p := New(nil, Middleware("ctx", withValue))
	var got any
	h := p.Then(func(w http.ResponseWriter, r *http.Request) error {
		got = r.Context().Value(key{})
		return nil
	})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got != "v" {
		t.Errorf("context value = %v, want %q", got, "v")
	}
}

// =============================================================================
// Delegate / Endpoint Tests
// =============================================================================

func TestDelegate_SurfacesEndpointErrors(t *testing.T) {
	captured := &capturedError{}
	boom := errors.New("route failed")

	mux := http.NewServeMux()
	mux.Handle("/fail", Endpoint(func(w http.ResponseWriter, r *http.Request) error {
		return boom
	}))
	mux.Handle("/ok", Endpoint(func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusOK)
		return nil
	}))

	h := New(captured.handle).Then(Delegate(mux))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	if !errors.Is(captured.err, boom) {
		t.Errorf("captured error = %v, want %v", captured.err, boom)
	}

	captured = &capturedError{}
	h = New(captured.handle).Then(Delegate(mux))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if captured.calls != 0 {
		t.Errorf("unexpected error: %v", captured.err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestEndpoint_OutsidePipeline(t *testing.T) {
	h := Endpoint(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("boom")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestRaise_FirstErrorWins(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Raise(r, first)
		Raise(r, second)
	})

	err := Delegate(handler)(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !errors.Is(err, first) {
		t.Errorf("err = %v, want %v", err, first)
	}
}

func TestRaise_NoPipeline(t *testing.T) {
	if Raise(httptest.NewRequest(http.MethodGet, "/", nil), errors.New("x")) {
		t.Error("Raise() = true outside a pipeline, want false")
	}
}
