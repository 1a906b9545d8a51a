package kv

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/storekit/internal/engine"
	"github.com/storekit/storekit/internal/engine/badgerkv"
	"github.com/storekit/storekit/internal/engine/boltkv"
	"github.com/storekit/storekit/internal/engine/memkv"
	"github.com/storekit/storekit/internal/engine/pebblekv"
	"github.com/storekit/storekit/internal/storage"
	"github.com/storekit/storekit/internal/storage/storagetest"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func newStore(t *testing.T, e engine.Engine) storage.Module[any] {
	t.Helper()
	s := New[any](e, Options[any]{Logger: quietLogger()})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreOnEngines(t *testing.T) {
	engines := map[string]func(t *testing.T) engine.Engine{
		"memory": func(t *testing.T) engine.Engine {
			return memkv.New()
		},
		"pebble": func(t *testing.T) engine.Engine {
			e, err := pebblekv.Open(pebblekv.Options{DataDir: t.TempDir(), Logger: quietLogger(), SweepInterval: -1})
			require.NoError(t, err)
			return e
		},
		"badger": func(t *testing.T) engine.Engine {
			e, err := badgerkv.Open(badgerkv.Options{InMemory: true, Logger: quietLogger()})
			require.NoError(t, err)
			return e
		},
		"bbolt": func(t *testing.T) engine.Engine {
			e, err := boltkv.Open(boltkv.Options{
				Path:          filepath.Join(t.TempDir(), "store.db"),
				Logger:        quietLogger(),
				SweepInterval: -1,
			})
			require.NoError(t, err)
			return e
		},
	}

	for name, open := range engines {
		t.Run(name, func(t *testing.T) {
			storagetest.Run(t, func(t *testing.T) storage.Module[any] {
				return newStore(t, open(t))
			}, storagetest.Options{Ordered: true})
		})
	}
}

func TestExpireIn(t *testing.T) {
	s := newStore(t, memkv.New())
	ctx := t.Context()

	require.NoError(t, s.SetItem(ctx, storage.Key{"session", "a"}, "v", storage.ExpireIn(10*time.Millisecond)))
	require.NoError(t, s.SetItem(ctx, storage.Key{"session", "b"}, "v"))

	has, err := s.HasItem(ctx, storage.Key{"session", "a"})
	require.NoError(t, err)
	assert.True(t, has)

	assert.Eventually(t, func() bool {
		has, err := s.HasItem(ctx, storage.Key{"session", "a"})
		return err == nil && !has
	}, time.Second, 5*time.Millisecond)

	entries, err := storage.Collect(s.ListItems(ctx, storage.Key{"session"}))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, storage.Key{"session", "b"}, entries[0].Key)
}

func TestClearItemsIsOneBatch(t *testing.T) {
	e := &countingEngine{Engine: memkv.New()}
	s := New[any](e, Options[any]{Logger: quietLogger()})
	ctx := t.Context()

	require.NoError(t, s.SetItem(ctx, storage.Key{"c"}, 1))
	for i := range 3 {
		require.NoError(t, s.SetItem(ctx, storage.Key{"c", i}, i))
	}
	require.NoError(t, s.ClearItems(ctx, storage.Key{"c"}))

	assert.Equal(t, 1, e.batches)
	assert.Equal(t, 4, e.deleted)
}

func TestEngineEscapeHatch(t *testing.T) {
	e := memkv.New()
	s := New[any](e, Options[any]{})
	assert.Same(t, e, s.Engine())

	u, err := s.URL(t.Context())
	require.NoError(t, err)
	assert.Equal(t, e.URL(), u)
}

type countingEngine struct {
	engine.Engine
	batches int
	deleted int
}

func (c *countingEngine) Batch(ctx context.Context, sets map[string][]byte, deletes []string) error {
	c.batches++
	c.deleted += len(deletes)
	return c.Engine.Batch(ctx, sets, deletes)
}
