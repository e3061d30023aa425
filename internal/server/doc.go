/*
Package server assembles the HTTP front of roots-api.

# Overview

The server is a chi router with two layers. Ambient middleware wraps every
request; the request pipeline (see package pipeline) runs in front of the
route set mounted under /<endpoint_prefix>. Health checks sit between the two
so they never meet CORS, authentication or body parsing.

# Ambient Middleware

## Request ID (requestid.go)

RequestIDMiddleware reuses a well-formed inbound X-Request-ID or generates a
UUID, and adds it to:
  - The request context (accessible via GetRequestID)
  - The X-Request-ID response header

## Logging (logging.go)

LoggingMiddleware provides structured request logging using slog:
  - Logs request start at debug level (method, path, remote_addr)
  - Logs request completion (status, duration)
  - Supports custom log fields via AddLogField/AddError

## Timeout (timeout.go)

TimeoutMiddleware bounds each request context by server.request_timeout.

Recoverer and OpenTelemetry instrumentation follow.

# Pipeline Stages

In execution order:
 1. trust-proxy: client address from X-Forwarded-For / X-Real-IP
 2. security-headers (security.go): HSTS, frame options, CSP and friends
 3. body-parser (bodyparser.go): JSON objects and arrays, size-limited
 4. cookie-parser (cookies.go): first occurrence of each name wins
 5. cors (cors.go): absent or whitelisted Origin only
 6. allowed-headers (cors.go): Access-Control-Allow-Headers on every request
 7. auth (authmiddleware.go): Bearer token or cookie, checked by auth.Verifier

# Errors

Stages and routes return errors; ErrorResponder (errors.go) answers them:
  - apierr.KindSchema: 400 {"error":"Invalid data"}
  - apierr.KindValidation: 400 {"errors":[...]}
  - apierr.KindUnauthorized: 401 {"error":"<message>"}, not logged
  - anything else: logged, then mapped by an apierr.Mapper

# Context Keys

  - RequestIDKey: string UUID for the request
  - Body: parsed JSON document
  - Cookies: parsed cookie map
  - auth.PrincipalFromContext: verified identity
*/
package server
