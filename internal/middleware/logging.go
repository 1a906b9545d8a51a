package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// RequestRecorder receives one call per finished request
type RequestRecorder interface {
	RecordHTTPRequest(method, route, status string, duration time.Duration)
}

// Logging returns a middleware that logs HTTP requests and, when recorder
// is non-nil, records them under their route template
func Logging(logger *logrus.Logger, recorder RequestRecorder) mux.MiddlewareFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create response writer wrapper to capture status code
			wrapped := &responseWriterWrapper{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			route := routeTemplate(r)
			if recorder != nil {
				recorder.RecordHTTPRequest(r.Method, route, strconv.Itoa(wrapped.statusCode), duration)
			}

			logger.WithFields(logrus.Fields{
				"trace_id":  TraceID(r.Context()),
				"method":    r.Method,
				"path":      r.URL.Path,
				"route":     route,
				"status":    wrapped.statusCode,
				"duration":  duration,
				"remote_ip": r.RemoteAddr,
			}).Info("HTTP request")
		})
	}
}

// routeTemplate returns the matched mux route template, keeping metric
// labels bounded
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
