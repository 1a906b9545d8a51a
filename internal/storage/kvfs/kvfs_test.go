package kvfs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/storekit/internal/engine/memkv"
	"github.com/storekit/storekit/internal/storage"
	"github.com/storekit/storekit/internal/storage/filesystem"
	"github.com/storekit/storekit/internal/storage/kv"
	"github.com/storekit/storekit/internal/storage/storagetest"
)

type sides struct {
	fs *filesystem.Store[any]
	kv *kv.Store[any]
}

func newCombined(t *testing.T, primary Primary) (*Store[any], sides) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	fsStore, err := filesystem.New[any](filesystem.Options[any]{
		Root:   filepath.Join(t.TempDir(), "fs"),
		Logger: logger,
	})
	require.NoError(t, err)
	kvStore := kv.New[any](memkv.New(), kv.Options[any]{Logger: logger})

	s, err := New[any](Options[any]{FS: fsStore, KV: kvStore, Primary: primary, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, sides{fs: fsStore, kv: kvStore}
}

func TestStoreContract(t *testing.T) {
	for _, primary := range []Primary{PrimaryFS, PrimaryKV} {
		t.Run(string(primary), func(t *testing.T) {
			storagetest.Run(t, func(t *testing.T) storage.Module[any] {
				s, _ := newCombined(t, primary)
				return s
			}, storagetest.Options{Ordered: true})
		})
	}
}

func TestFilesystemPrimary(t *testing.T) {
	ctx := context.Background()
	s, b := newCombined(t, PrimaryFS)
	key := storage.Key{"config", "site"}

	require.NoError(t, b.fs.SetItem(ctx, key, "from-fs"))
	require.NoError(t, b.kv.SetItem(ctx, key, "from-kv"))

	t.Run("read prefers filesystem", func(t *testing.T) {
		v, ok, err := s.GetItem(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "from-fs", v)
	})

	t.Run("filesystem item is not writable", func(t *testing.T) {
		w, err := s.IsWritable(ctx, key)
		require.NoError(t, err)
		assert.False(t, w)

		err = s.SetItem(ctx, key, "new")
		assert.ErrorIs(t, err, storage.ErrReadOnly)

		v, _, err := b.kv.GetItem(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "from-kv", v)
	})

	t.Run("read falls back to kv on miss", func(t *testing.T) {
		require.NoError(t, s.SetItem(ctx, storage.Key{"config", "other"}, "kv-only"))
		v, ok, err := s.GetItem(ctx, storage.Key{"config", "other"})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "kv-only", v)

		has, err := b.fs.HasItem(ctx, storage.Key{"config", "other"})
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("listing yields each key once", func(t *testing.T) {
		entries, err := storage.Collect(s.ListItems(ctx, storage.Key{"config"}))
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "config/site", entries[0].Key.String())
		assert.Equal(t, "from-fs", entries[0].Value)
		assert.Equal(t, "config/other", entries[1].Key.String())
	})

	t.Run("remove and clear leave the filesystem alone", func(t *testing.T) {
		require.NoError(t, s.RemoveItem(ctx, key))
		has, err := s.HasItem(ctx, key)
		require.NoError(t, err)
		assert.True(t, has)

		require.NoError(t, s.ClearItems(ctx, storage.Key{}))
		has, err = b.fs.HasItem(ctx, key)
		require.NoError(t, err)
		assert.True(t, has)
		has, err = s.HasItem(ctx, storage.Key{"config", "other"})
		require.NoError(t, err)
		assert.False(t, has)
	})
}

func TestKVPrimary(t *testing.T) {
	ctx := context.Background()
	s, b := newCombined(t, PrimaryKV)
	key := storage.Key{"doc"}

	require.NoError(t, b.fs.SetItem(ctx, key, "from-fs"))

	v, _, err := s.GetItem(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "from-fs", v)

	w, err := s.IsWritable(ctx, key)
	require.NoError(t, err)
	assert.True(t, w)

	require.NoError(t, s.SetItem(ctx, key, "from-kv"))
	v, _, err = s.GetItem(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "from-kv", v)

	entries, err := storage.Collect(s.ListItems(ctx, storage.Key{}))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "from-kv", entries[0].Value)

	u, err := s.URL(ctx)
	require.NoError(t, err)
	assert.Contains(t, u, "memory://")
}

func TestNew(t *testing.T) {
	_, err := New[any](Options[any]{})
	assert.ErrorIs(t, err, storage.ErrNotConfigured)

	_, b := newCombined(t, PrimaryFS)
	_, err = New[any](Options[any]{FS: b.fs, KV: b.kv, Primary: "both"})
	assert.ErrorIs(t, err, storage.ErrNotConfigured)

	assert.Equal(t, PrimaryKV, ParsePrimary("kv"))
	assert.Equal(t, PrimaryFS, ParsePrimary(""))
	assert.Equal(t, PrimaryFS, ParsePrimary("anything"))
}
