package pebblekv

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/storekit/internal/engine"
	"github.com/storekit/storekit/internal/engine/enginetest"
)

func setupTestEngine(t *testing.T, sweep time.Duration) *Engine {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	e, err := Open(Options{DataDir: t.TempDir(), Logger: logger, SweepInterval: sweep})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngine(t *testing.T) {
	enginetest.Run(t, func(t *testing.T) engine.Engine {
		return setupTestEngine(t, -1)
	})
}

func TestSweepPurgesExpired(t *testing.T) {
	e := setupTestEngine(t, -1)
	ctx := t.Context()

	require.NoError(t, e.Put(ctx, "gone", []byte("v"), time.Millisecond))
	require.NoError(t, e.Put(ctx, "kept", []byte("v"), 0))
	time.Sleep(5 * time.Millisecond)

	e.sweep()

	_, closer, err := e.DB().Get([]byte("gone"))
	if err == nil {
		closer.Close()
	}
	assert.Error(t, err)

	_, closer, err = e.DB().Get([]byte("kept"))
	require.NoError(t, err)
	closer.Close()
}

func TestURL(t *testing.T) {
	e := setupTestEngine(t, -1)
	assert.Equal(t, "pebble://"+e.path, e.URL())
}
