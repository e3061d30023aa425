// Package pipeline provides the request pipeline runner.
//
// A pipeline is an ordered list of stages assembled once at startup and never
// mutated afterwards. Each stage wraps the remainder of the pipeline and, for a
// given request, either answers it, passes it on, or fails it by returning an
// error. Errors are never written by the stage that raised them: the runner
// hands every error to a single error handler at the tail of the pipeline.
//
// # Stages
//
// Stages come in two flavours:
//
//   - native stages, written against Handler, which return errors directly
//   - adapted stages, created by Middleware from a conventional
//     func(http.Handler) http.Handler, so third-party middleware can sit in the
//     list without learning about errors
//
// # Route delegation
//
// The last element of a pipeline is usually a router. Delegate turns any
// http.Handler into the final Handler, and Endpoint lets individual routes
// registered on that router return errors which then reach the pipeline's
// error handler:
//
//	router := chi.NewRouter()
//	router.Method(http.MethodGet, "/me", pipeline.Endpoint(handleMe))
//
//	p := pipeline.New(responder.Respond, stages...)
//	http.Handle("/", p.Then(pipeline.Delegate(router)))
//
// # Cancellation
//
// The runner checks the request context before entering each stage. Once the
// context is done the traversal stops and the context error is handed to the
// error handler.
package pipeline
