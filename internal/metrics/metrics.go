package metrics

import (
	"context"
	"iter"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storekit/storekit/internal/storage"
	"github.com/storekit/storekit/internal/storage/extend"
)

// Manager owns a Prometheus registry with the storage and HTTP metrics
type Manager struct {
	registry *prometheus.Registry

	storageOperationsTotal   *prometheus.CounterVec
	storageOperationDuration *prometheus.HistogramVec
	storageListedItemsTotal  *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a manager. namespace defaults to "storekit".
func NewManager(namespace string) *Manager {
	if namespace == "" {
		namespace = "storekit"
	}

	m := &Manager{registry: prometheus.NewRegistry()}

	m.storageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"module", "operation", "status"},
	)

	m.storageOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"module", "operation"},
	)

	m.storageListedItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "listed_items_total",
			Help:      "Total number of items yielded by listings",
		},
		[]string{"module"},
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.storageOperationsTotal,
		m.storageOperationDuration,
		m.storageListedItemsTotal,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

// Registry returns the underlying registry
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Manager) RecordStorageOperation(module, operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.storageOperationsTotal.WithLabelValues(module, operation, status).Inc()
	m.storageOperationDuration.WithLabelValues(module, operation).Observe(duration.Seconds())
}

func (m *Manager) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Instrument wraps mod so every operation is counted and timed under the
// given module label.
func Instrument[T any](m *Manager, name string, mod storage.Module[T]) *extend.Store[T] {
	record := func(op string, start time.Time, err error) {
		m.RecordStorageOperation(name, op, err, time.Since(start))
	}

	return extend.Extend(mod, extend.Trait[T]{
		IsWritable: func(ctx context.Context, orig storage.Module[T], key storage.Key) (bool, error) {
			start := time.Now()
			ok, err := orig.IsWritable(ctx, key)
			record("is_writable", start, err)
			return ok, err
		},
		HasItem: func(ctx context.Context, orig storage.Module[T], key storage.Key) (bool, error) {
			start := time.Now()
			ok, err := orig.HasItem(ctx, key)
			record("has", start, err)
			return ok, err
		},
		GetItem: func(ctx context.Context, orig storage.Module[T], key storage.Key) (T, bool, error) {
			start := time.Now()
			v, ok, err := orig.GetItem(ctx, key)
			record("get", start, err)
			return v, ok, err
		},
		SetItem: func(ctx context.Context, orig storage.Module[T], key storage.Key, value T, opts ...storage.SetOption) error {
			start := time.Now()
			err := orig.SetItem(ctx, key, value, opts...)
			record("set", start, err)
			return err
		},
		RemoveItem: func(ctx context.Context, orig storage.Module[T], key storage.Key) error {
			start := time.Now()
			err := orig.RemoveItem(ctx, key)
			record("remove", start, err)
			return err
		},
		ListItems: func(ctx context.Context, orig storage.Module[T], prefix storage.Key, opts ...storage.ListOption) iter.Seq2[storage.Entry[T], error] {
			return func(yield func(storage.Entry[T], error) bool) {
				start := time.Now()
				var listErr error
				n := 0
				defer func() {
					m.storageListedItemsTotal.WithLabelValues(name).Add(float64(n))
					record("list", start, listErr)
				}()
				for e, err := range orig.ListItems(ctx, prefix, opts...) {
					if err != nil {
						listErr = err
					} else {
						n++
					}
					if !yield(e, err) {
						return
					}
				}
			}
		},
		ClearItems: func(ctx context.Context, orig storage.Module[T], prefix storage.Key) error {
			start := time.Now()
			err := orig.ClearItems(ctx, prefix)
			record("clear", start, err)
			return err
		},
		CopyItems: func(ctx context.Context, orig, self storage.Module[T], from, to storage.Key) error {
			start := time.Now()
			err := storage.CopyItems(ctx, from, to, orig, orig)
			record("copy", start, err)
			return err
		},
		MoveItems: func(ctx context.Context, orig, self storage.Module[T], from, to storage.Key) error {
			start := time.Now()
			err := storage.MoveItems(ctx, from, to, orig, orig)
			record("move", start, err)
			return err
		},
	})
}
