package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/storekit/internal/config"
	"github.com/storekit/storekit/internal/metrics"
	"github.com/storekit/storekit/internal/storage"
	"github.com/storekit/storekit/internal/storage/delegate"
	"github.com/storekit/storekit/internal/storage/extend"
	"github.com/storekit/storekit/internal/storage/localstore"
	"github.com/storekit/storekit/internal/storage/noop"
)

func setupTestServer(t *testing.T) (*httptest.Server, *delegate.Store[any]) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	facade := delegate.New[any](nil, logger)
	facade.SetStore(localstore.New[any](localstore.NewMemoryArea(), localstore.Options[any]{Logger: logger}))
	facade.SetStoreFor("void", noop.New[any]())
	facade.SetStoreFor("readonly", extend.Extend[any](localstore.New[any](localstore.NewMemoryArea(), localstore.Options[any]{Logger: logger}), extend.Trait[any]{
		IsWritable: func(context.Context, storage.Module[any], storage.Key) (bool, error) {
			return false, nil
		},
		SetItem: func(context.Context, storage.Module[any], storage.Key, any, ...storage.SetOption) error {
			return storage.ErrReadOnly
		},
	}))

	cfg := &config.Config{Server: config.ServerConfig{Listen: ":0", MetricsPath: "/metrics"}}
	srv := New(cfg, facade, metrics.NewManager(""), logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, facade
}

func do(t *testing.T, method, url, body string) (*http.Response, APIResponse) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out APIResponse
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp, out
}

func TestItemRoutes(t *testing.T) {
	ts, facade := setupTestServer(t)
	ctx := context.Background()

	resp, _ := do(t, http.MethodPut, ts.URL+"/items/users/0000000000000007", `{"name":"ada"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	v, ok, err := facade.GetItem(ctx, storage.Key{"users", 7})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"name": "ada"}, v)

	resp, body := do(t, http.MethodGet, ts.URL+"/items/users/0000000000000007", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.Equal(t, map[string]any{"name": "ada"}, body.Data)

	resp, _ = do(t, http.MethodHead, ts.URL+"/items/users/0000000000000007", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, ts.URL+"/items/users/0000000000000007", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, http.MethodGet, ts.URL+"/items/users/0000000000000007", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, body.Success)

	resp, _ = do(t, http.MethodHead, ts.URL+"/items/users/0000000000000007", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetItemValidation(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, _ := do(t, http.MethodPut, ts.URL+"/items/a", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, ts.URL+"/items/a?expireIn=soon", `1`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, ts.URL+"/items/a?expireIn=1h", `1`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := do(t, http.MethodPut, ts.URL+"/items/readonly/x", `1`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.NotEmpty(t, body.Error)

	resp, _ = do(t, http.MethodPut, ts.URL+"/items/void/x", `1`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, ts.URL+"/items/void/x", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListAndClear(t *testing.T) {
	ts, facade := setupTestServer(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, facade.SetItem(ctx, storage.Key{"list", i}, float64(i)))
	}

	resp, body := do(t, http.MethodGet, ts.URL+"/list/list?reverse=true&pageSize=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := body.Data.([]any)
	require.Len(t, entries, 3)
	first := entries[0].(map[string]any)
	assert.Equal(t, []any{"list", 3.0}, first["key"])
	assert.Equal(t, 3.0, first["value"])

	resp, _ = do(t, http.MethodGet, ts.URL+"/list/list?pageSize=zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, ts.URL+"/items/list?recursive=true", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, http.MethodGet, ts.URL+"/list", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body.Data)
}

func TestCopyMoveRoutes(t *testing.T) {
	ts, facade := setupTestServer(t)
	ctx := context.Background()
	require.NoError(t, facade.SetItem(ctx, storage.Key{"src", "a"}, "a"))

	resp, _ := do(t, http.MethodPost, ts.URL+"/copy", `{"from":["src"],"to":["dst"]}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	v, _, err := facade.GetItem(ctx, storage.Key{"dst", "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	resp, _ = do(t, http.MethodPost, ts.URL+"/move", `{"from":["dst"],"to":["moved", 1]}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	v, _, err = facade.GetItem(ctx, storage.Key{"moved", 1, "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	resp, _ = do(t, http.MethodPost, ts.URL+"/copy", `{"from":["src"],"to":["src","inner"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/copy", `{"from":[""],"to":["x"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWritableHealthAndMetrics(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/writable/some/key", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"writable": true}, body.Data)

	_, body = do(t, http.MethodGet, ts.URL+"/writable/readonly", "")
	assert.Equal(t, map[string]any{"writable": false}, body.Data)

	_, body = do(t, http.MethodGet, ts.URL+"/writable/void/x", "")
	assert.Equal(t, map[string]any{"writable": false}, body.Data)

	resp, body = do(t, http.MethodGet, ts.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	health := body.Data.(map[string]any)
	assert.Equal(t, "healthy", health["status"])
	assert.True(t, strings.HasPrefix(health["url"].(string), "localstore://"))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `storekit_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(storage.ErrInvalidKey))
	assert.Equal(t, http.StatusBadRequest, statusFor(storage.ErrOverlappingKeys))
	assert.Equal(t, http.StatusForbidden, statusFor(storage.ErrReadOnly))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(storage.ErrNotConfigured))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
