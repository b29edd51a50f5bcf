package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harborlab/mediastore/pkg/mediastore"
)

// Context keys for middleware
type contextKey string

const (
	RequestIDKey   contextKey = "request_id"
	RequesterIDKey contextKey = "requester_id"
)

// RequestIDFromContext returns the request's correlation ID, or "" when the
// middleware did not run.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// RequesterIDFromContext returns the authenticated user's ID. The zero UUID
// means the auth middleware did not run.
func RequesterIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(RequesterIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// RequestID attaches a correlation ID to each request, honoring one supplied
// by the client.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs one line per request with method, path, status and
// duration.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			logger.InfoContext(r.Context(), "request completed",
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"bytes", rw.written,
				"duration", time.Since(start),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Authenticate resolves the bearer token through the verifier and stores the
// requester's ID in the context. An invalid token is the caller's fault
// (401); a verifier that cannot answer is an outage (503), so clients can
// tell the two apart.
func Authenticate(verifier mediastore.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			userID, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, mediastore.ErrVerifierUnavailable) {
					slog.ErrorContext(r.Context(), "token verifier unreachable",
						"request_id", RequestIDFromContext(r.Context()), "error", err)
				}
				writeServiceError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), RequesterIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
