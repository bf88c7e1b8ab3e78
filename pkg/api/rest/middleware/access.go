package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

const requestIDKey contextKey = "request_id"

// RequestID returns the id assigned to the request, if any
func RequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

// AccessLogMiddleware assigns every request an id (kept from the
// X-Request-ID header when present), then logs and measures it. metrics may
// be nil.
func AccessLogMiddleware(logger *observability.AccessLogger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			status := http.StatusText(wrapped.statusCode)
			if metrics != nil {
				metrics.RecordRequest(r.Method+" "+r.URL.Path, status, duration)
				if wrapped.statusCode >= 500 {
					metrics.RecordError(r.Method+" "+r.URL.Path, status)
				}
			}
			logger.LogAccess(r.Method, r.URL.Path, status, duration, map[string]interface{}{
				"request_id":  id,
				"status_code": wrapped.statusCode,
			})
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
