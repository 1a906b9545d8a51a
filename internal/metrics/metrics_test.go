package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/storekit/internal/storage"
	"github.com/storekit/storekit/internal/storage/localstore"
	"github.com/storekit/storekit/internal/storage/storagetest"
)

func memStore() storage.Module[any] {
	return localstore.New[any](localstore.NewMemoryArea(), localstore.Options[any]{})
}

func TestInstrumentKeepsContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Module[any] {
		return Instrument(NewManager("test"), "mem", memStore())
	}, storagetest.Options{Ordered: true})
}

func TestInstrumentCountsOperations(t *testing.T) {
	ctx := context.Background()
	m := NewManager("")
	s := Instrument(m, "mem", memStore())

	require.NoError(t, s.SetItem(ctx, storage.Key{"a"}, "1"))
	require.NoError(t, s.SetItem(ctx, storage.Key{"a", "b"}, "2"))
	_, _, err := s.GetItem(ctx, storage.Key{"a"})
	require.NoError(t, err)
	err = s.SetItem(ctx, storage.Key{""}, "bad")
	require.Error(t, err)

	entries, err := storage.Collect(s.ListItems(ctx, storage.Key{}))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	ops := m.storageOperationsTotal
	assert.Equal(t, 2.0, testutil.ToFloat64(ops.WithLabelValues("mem", "set", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("mem", "set", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("mem", "get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("mem", "list", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.storageListedItemsTotal.WithLabelValues("mem")))

	require.NoError(t, s.CopyItems(ctx, storage.Key{"a"}, storage.Key{"c"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("mem", "copy", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(ops.WithLabelValues("mem", "set", "success")),
		"copy runs on the wrapped module")
}

func TestHandler(t *testing.T) {
	m := NewManager("")
	m.RecordHTTPRequest("GET", "/items/{key}", "200", 5*time.Millisecond)
	m.RecordStorageOperation("mem", "get", nil, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `storekit_http_requests_total{method="GET",route="/items/{key}",status="200"} 1`)
	assert.Contains(t, string(body), `storekit_storage_operations_total{module="mem",operation="get",status="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
