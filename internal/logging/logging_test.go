package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/storekit/internal/storage"
	"github.com/storekit/storekit/internal/storage/extend"
	"github.com/storekit/storekit/internal/storage/localstore"
	"github.com/storekit/storekit/internal/storage/storagetest"
)

func TestConfigure(t *testing.T) {
	tests := []struct {
		level    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"bogus", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := logrus.New()
			Configure(logger, tt.level, "json")
			assert.Equal(t, tt.expected, logger.GetLevel())
			assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
		})
	}

	logger := logrus.New()
	Configure(logger, "info", "text")
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func newLogged(t *testing.T) (*extend.Store[any], *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	m := localstore.New[any](localstore.NewMemoryArea(), localstore.Options[any]{Logger: logger})
	hook.Reset()
	return Extend[any](m, logger), hook
}

func TestExtendKeepsContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Module[any] {
		s, _ := newLogged(t)
		return s
	}, storagetest.Options{Ordered: true})
}

func TestExtendLogsMutations(t *testing.T) {
	ctx := context.Background()
	s, hook := newLogged(t)

	require.NoError(t, s.SetItem(ctx, storage.Key{"a", 1}, "v", storage.ExpireIn(time.Minute)))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "set", entry.Data["op"])
	assert.Equal(t, "a/0000000000000001", entry.Data["key"])
	assert.Equal(t, time.Minute, entry.Data["expire_in"])
	assert.Equal(t, logrus.DebugLevel, entry.Level)

	hook.Reset()
	_, _, err := s.GetItem(ctx, storage.Key{"a", 1})
	require.NoError(t, err)
	assert.Empty(t, hook.AllEntries(), "reads are not logged")

	require.NoError(t, s.CopyItems(ctx, storage.Key{"a"}, storage.Key{"b"}))
	require.NoError(t, s.MoveItems(ctx, storage.Key{"b"}, storage.Key{"c"}))
	require.NoError(t, s.RemoveItem(ctx, storage.Key{"c", 1}))
	require.NoError(t, s.ClearItems(ctx, storage.Key{}))

	var ops []any
	for _, e := range hook.AllEntries() {
		if op, ok := e.Data["op"]; ok {
			ops = append(ops, op)
		}
	}
	assert.Equal(t, []any{"copy", "move", "remove", "clear"}, ops)
}

func TestExtendLogsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	failing := extend.Extend[any](localstore.New[any](localstore.NewMemoryArea(), localstore.Options[any]{Logger: logger}), extend.Trait[any]{
		RemoveItem: func(ctx context.Context, orig storage.Module[any], key storage.Key) error {
			return errors.New("device busy")
		},
	})
	s := Extend[any](failing, logger)

	err := s.RemoveItem(context.Background(), storage.Key{"x"})
	require.Error(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "remove", entry.Data["op"])
	assert.EqualError(t, entry.Data[logrus.ErrorKey].(error), "device busy")
}
