package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracing_GeneratesID(t *testing.T) {
	var seen string
	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(TraceIDHeader))
}

func TestTracing_ReusesIncomingID(t *testing.T) {
	id := uuid.New().String()
	var seen string
	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(TraceIDHeader, id)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, id, seen)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(TraceIDHeader, "not-a-uuid\nInjected: yes")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid\nInjected: yes", seen)
	assert.Equal(t, seen, rec.Header().Get(TraceIDHeader))
}

func TestTracing_LoggedByLogging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	handler := Tracing(Logging(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, rec.Header().Get(TraceIDHeader), hook.LastEntry().Data["trace_id"])
}

func TestTraceID_Missing(t *testing.T) {
	assert.Empty(t, TraceID(httptest.NewRequest("GET", "/", nil).Context()))
}
