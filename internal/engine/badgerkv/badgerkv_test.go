package badgerkv

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/storekit/internal/engine"
	"github.com/storekit/storekit/internal/engine/enginetest"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestEngineInMemory(t *testing.T) {
	enginetest.Run(t, func(t *testing.T) engine.Engine {
		e, err := Open(Options{InMemory: true, Logger: newTestLogger()})
		require.NoError(t, err)
		t.Cleanup(func() { e.Close() })
		return e
	})
}

func TestEngineOnDisk(t *testing.T) {
	enginetest.Run(t, func(t *testing.T) engine.Engine {
		e, err := Open(Options{DataDir: t.TempDir(), Logger: newTestLogger(), GCInterval: -1})
		require.NoError(t, err)
		t.Cleanup(func() { e.Close() })
		return e
	})
}

func TestURL(t *testing.T) {
	e, err := Open(Options{InMemory: true, Logger: newTestLogger()})
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, "badger://memory", e.URL())
}
