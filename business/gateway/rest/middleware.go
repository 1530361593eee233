package rest

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/credscope/ledgerlink/internal/apperror"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap exposes the underlying writer so http.ResponseController can
// reach optional interfaces like http.Hijacker. The websocket upgrade on
// the stream endpoint depends on this.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info(r.Context(), "gateway: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start).String(),
		)
	})
}

func (s *Server) traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.StartSpanFromContext(r.Context(), r.Method+" "+r.URL.Path)
		span.SetAttribute(attribute.String("http.method", r.Method))
		span.SetAttribute(attribute.String("http.target", r.URL.Path))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			appErr := apperror.New(apperror.CodeRateLimitExceeded,
				apperror.WithContext(r.URL.Path),
				apperror.WithStatusCode(http.StatusTooManyRequests),
			)
			writeJSON(w, appErr.StatusCode, appErr.ToResponse())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withDeadline bounds a JSON handler with the configured request timeout.
// The stream endpoint is intentionally not wrapped.
func (s *Server) withDeadline(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		h(w, r.WithContext(ctx))
	}
}
