package middleware

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const (
	LoggerKey ContextKey = "logger"
)

// statusRecorder captures the status code written to a response. It also
// forwards Hijack so the websocket upgrade keeps working behind the
// middleware chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func (sr *statusRecorder) Flush() {
	if flusher, ok := sr.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// SlogLogger stores a request-scoped slog.Logger in the context and logs a
// completion line with status and duration.
func SlogLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		logger := slog.With(
			"requestId", chimiddleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
		)

		ctx := context.WithValue(r.Context(), LoggerKey, logger)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(ctx))

		logger.Info("request completed",
			"status", rec.status,
			"durationMs", time.Since(start).Milliseconds(),
		)
	})
}

// GetLogger returns the request-scoped logger, or the default logger when
// called outside the middleware chain.
func GetLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// LoggerWithIdentity returns a logger enriched with the caller's identity
func LoggerWithIdentity(ctx context.Context) *slog.Logger {
	logger := GetLogger(ctx)

	identity := GetIdentity(ctx)
	if identity == nil {
		return logger
	}
	if identity.UserID != nil {
		logger = logger.With("userId", identity.UserID.String())
	} else if identity.AnonymousID != nil {
		logger = logger.With("anonymousId", identity.AnonymousID.String())
	}
	return logger
}
