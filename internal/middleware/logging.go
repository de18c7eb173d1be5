// Package middleware contains the HTTP middleware of the ranch API.
//
// WHAT IS MIDDLEWARE?
// A middleware is a function that takes a handler and returns a new one
// that runs extra code around it. The router applies the chain to every
// request, so logging, request IDs and panic recovery live in one place
// instead of in each handler.
//
// The shape is always the same:
//
//	func MyMiddleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // Runs BEFORE the handler (read the request, start a timer)
//	        next.ServeHTTP(w, r)
//	        // Runs AFTER the handler (inspect what was written)
//	    })
//	}
//
// Anything a middleware wants to know about the response (status code,
// size) it has to capture itself by wrapping the ResponseWriter.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// responseWriter records the status code and body size of a response.
// Go's http.ResponseWriter does not expose either after the fact.
//
// EMBEDDING:
// The embedded http.ResponseWriter supplies Header() unchanged; only
// WriteHeader and Write are redefined here, and they still delegate to
// the embedded writer after recording what passed through.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach Flush and SetWriteDeadline on
// the underlying writer, which the event stream needs.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logger logs each completed request: method, path, status, duration,
// bytes and the chi request ID.
//
// LOG LEVELS:
//
//	5xx → Error   (something on our side broke)
//	4xx → Warn    (bad input, expired session, unknown horse)
//	else → Info
//
// Paths in quiet (health checks, metric scrapes) are polled every few
// seconds and would drown the log, so they are skipped unless they fail.
func Logger(logger *slog.Logger, quiet ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK, // if WriteHeader is never called
			}

			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400:
				level = slog.LevelWarn
			case skip[r.URL.Path]:
				return
			}

			logger.LogAttrs(r.Context(), level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
				slog.String("requestID", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
