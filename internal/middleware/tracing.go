package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

// TraceIDKey holds the request's trace ID in its context
const TraceIDKey contextKey = "trace_id"

// TraceIDHeader carries the trace ID on requests and responses
const TraceIDHeader = "X-Request-ID"

// Tracing assigns every request a trace ID, reusing a well-formed incoming
// X-Request-ID, and echoes it on the response
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceIDHeader)
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.New().String()
		}
		w.Header().Set(TraceIDHeader, traceID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), TraceIDKey, traceID)))
	})
}

// TraceID returns the trace ID stored by Tracing, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}
