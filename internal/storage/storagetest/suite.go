// Package storagetest holds the behavioral tests every storage module must
// pass.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/storekit/internal/storage"
)

// Options tunes the suite to a backend's capabilities.
type Options struct {
	// Ordered backends list in key order and honor storage.Reverse.
	Ordered bool
	// URLScheme, when set, must prefix the module URL.
	URLScheme string
}

// Factory builds a fresh, empty module for one subtest.
type Factory func(t *testing.T) storage.Module[any]

// Run exercises the storage module contract.
func Run(t *testing.T, newModule Factory, opts Options) {
	ctx := context.Background()

	t.Run("SetGetHas", func(t *testing.T) {
		m := newModule(t)
		values := map[string]any{
			"number":  100.0,
			"string":  "string",
			"boolean": true,
			"object":  map[string]any{"one": 1.0, "two": "two"},
			"array":   []any{"a", "b", "c"},
		}
		for name, v := range values {
			key := storage.Key{"store", name}
			require.NoError(t, m.SetItem(ctx, key, v))

			got, ok, err := m.GetItem(ctx, key)
			require.NoError(t, err)
			assert.True(t, ok, name)
			assert.Equal(t, v, got, name)

			has, err := m.HasItem(ctx, key)
			require.NoError(t, err)
			assert.True(t, has, name)
		}

		require.NoError(t, m.SetItem(ctx, storage.Key{"store", "number"}, 200.0))
		got, _, err := m.GetItem(ctx, storage.Key{"store", "number"})
		require.NoError(t, err)
		assert.Equal(t, 200.0, got)
	})

	t.Run("MissingIsAbsent", func(t *testing.T) {
		m := newModule(t)
		got, ok, err := m.GetItem(ctx, storage.Key{"missing", 1, true})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)

		has, err := m.HasItem(ctx, storage.Key{"missing"})
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("RootHoldsNoItem", func(t *testing.T) {
		m := newModule(t)
		err := m.SetItem(ctx, storage.Key{}, "value")
		assert.ErrorIs(t, err, storage.ErrInvalidKey)

		_, ok, err := m.GetItem(ctx, storage.Key{})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, m.RemoveItem(ctx, storage.Key{}))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		m := newModule(t)
		assert.ErrorIs(t, m.SetItem(ctx, storage.Key{"a", 1.5}, "v"), storage.ErrInvalidKey)
		assert.ErrorIs(t, m.SetItem(ctx, storage.Key{"a/b"}, "v"), storage.ErrInvalidKey)
		assert.ErrorIs(t, m.SetItem(ctx, storage.Key{"a", int64(storage.MaxSafeInteger) + 1}, "v"), storage.ErrInvalidKey)
	})

	t.Run("MixedComponents", func(t *testing.T) {
		m := newModule(t)
		key := storage.Key{"mixed", 42, false, "true", "0000000000000007", -3}
		require.NoError(t, m.SetItem(ctx, key, "v"))

		got, ok, err := m.GetItem(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v", got)

		entries, err := storage.Collect(m.ListItems(ctx, storage.Key{"mixed"}))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Key.Equal(key), "listed key %v", entries[0].Key)
	})

	t.Run("RemoveItemIsNotRecursive", func(t *testing.T) {
		m := newModule(t)
		require.NoError(t, m.SetItem(ctx, storage.Key{"rm"}, "parent"))
		require.NoError(t, m.SetItem(ctx, storage.Key{"rm", "child"}, "child"))

		require.NoError(t, m.RemoveItem(ctx, storage.Key{"rm"}))
		assertAbsent(t, m, storage.Key{"rm"})
		assertValue(t, m, storage.Key{"rm", "child"}, "child")

		require.NoError(t, m.RemoveItem(ctx, storage.Key{"rm", "child"}))
		assertAbsent(t, m, storage.Key{"rm", "child"})
		assert.NoError(t, m.RemoveItem(ctx, storage.Key{"rm", "never"}))
	})

	t.Run("ListItems", func(t *testing.T) {
		m := newModule(t)
		seed(t, m, map[string]any{
			"list":       "self",
			"list/a":     "a",
			"list/b/c":   "c",
			"list/b/d/e": "e",
			"listx":      "outside",
			"other/a":    "outside",
		})

		entries, err := storage.Collect(m.ListItems(ctx, storage.Key{"list"}))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"list/a", "list/b/c", "list/b/d/e"}, keyStrings(entries))

		entries, err = storage.Collect(m.ListItems(ctx, storage.Key{}))
		require.NoError(t, err)
		assert.Len(t, entries, 6)

		entries, err = storage.Collect(m.ListItems(ctx, storage.Key{"nothing"}))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	if opts.Ordered {
		t.Run("ListOrder", func(t *testing.T) {
			m := newModule(t)
			for i := 4; i >= 1; i-- {
				require.NoError(t, m.SetItem(ctx, storage.Key{"ord", i}, float64(i)))
			}

			entries, err := storage.Collect(m.ListItems(ctx, storage.Key{"ord"}))
			require.NoError(t, err)
			assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0}, values(entries))

			entries, err = storage.Collect(m.ListItems(ctx, storage.Key{"ord"}, storage.Reverse(), storage.PageSize(3)))
			require.NoError(t, err)
			assert.Equal(t, []any{4.0, 3.0, 2.0, 1.0}, values(entries))
		})
	}

	t.Run("ListStopsEarly", func(t *testing.T) {
		m := newModule(t)
		seed(t, m, map[string]any{"s/1": 1.0, "s/2": 2.0, "s/3": 3.0})
		n := 0
		for _, err := range m.ListItems(ctx, storage.Key{"s"}, storage.PageSize(1)) {
			require.NoError(t, err)
			n++
			if n == 2 {
				break
			}
		}
		assert.Equal(t, 2, n)
	})

	t.Run("ClearItems", func(t *testing.T) {
		m := newModule(t)
		seed(t, m, map[string]any{
			"clear":     "self",
			"clear/x":   "x",
			"clear/y/z": "z",
			"keep":      "keep",
		})

		require.NoError(t, m.ClearItems(ctx, storage.Key{"clear"}))
		assertAbsent(t, m, storage.Key{"clear"})
		assertAbsent(t, m, storage.Key{"clear", "x"})
		assertAbsent(t, m, storage.Key{"clear", "y", "z"})
		assertValue(t, m, storage.Key{"keep"}, "keep")

		require.NoError(t, m.ClearItems(ctx, storage.Key{"clear"}))

		require.NoError(t, m.ClearItems(ctx, storage.Key{}))
		entries, err := storage.Collect(m.ListItems(ctx, storage.Key{}))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("CopyItems", func(t *testing.T) {
		m := newModule(t)
		seedTree(t, m)
		require.NoError(t, m.SetItem(ctx, storage.Key{"copy", "stale"}, "stale"))

		require.NoError(t, storage.CopyItems(ctx, storage.Key{"orig"}, storage.Key{"copy"}, m, m))

		assertValue(t, m, storage.Key{"copy"}, "root")
		assertValue(t, m, storage.Key{"copy", "a"}, 1.0)
		assertValue(t, m, storage.Key{"copy", "b", "c"}, 2.0)
		assertAbsent(t, m, storage.Key{"copy", "stale"})

		assertValue(t, m, storage.Key{"orig"}, "root")
		assertValue(t, m, storage.Key{"orig", "b", "c"}, 2.0)
	})

	t.Run("MoveItems", func(t *testing.T) {
		m := newModule(t)
		seedTree(t, m)

		require.NoError(t, storage.MoveItems(ctx, storage.Key{"orig"}, storage.Key{"moved"}, m, m))

		assertValue(t, m, storage.Key{"moved"}, "root")
		assertValue(t, m, storage.Key{"moved", "a"}, 1.0)
		assertValue(t, m, storage.Key{"moved", "b", "c"}, 2.0)

		entries, err := storage.Collect(m.ListItems(ctx, storage.Key{"orig"}))
		require.NoError(t, err)
		assert.Empty(t, entries)
		assertAbsent(t, m, storage.Key{"orig"})
	})

	t.Run("CopyRejectsOverlap", func(t *testing.T) {
		m := newModule(t)
		seedTree(t, m)

		err := storage.CopyItems(ctx, storage.Key{"orig"}, storage.Key{"orig", "sub"}, m, m)
		assert.ErrorIs(t, err, storage.ErrOverlappingKeys)
		err = storage.MoveItems(ctx, storage.Key{"orig", "b"}, storage.Key{"orig"}, m, m)
		assert.ErrorIs(t, err, storage.ErrOverlappingKeys)

		require.NoError(t, storage.CopyItems(ctx, storage.Key{"orig"}, storage.Key{"orig"}, m, m))
		assertValue(t, m, storage.Key{"orig", "a"}, 1.0)
	})

	t.Run("URL", func(t *testing.T) {
		m := newModule(t)
		u, err := m.URL(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, u)
		if opts.URLScheme != "" {
			assert.Contains(t, u, opts.URLScheme+"://")
		}
	})

	t.Run("IsWritable", func(t *testing.T) {
		m := newModule(t)
		ok, err := m.IsWritable(ctx, storage.Key{"fresh", "key"})
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func seed(t *testing.T, m storage.Module[any], items map[string]any) {
	t.Helper()
	for path, v := range items {
		require.NoError(t, m.SetItem(context.Background(), storage.DecodePath(path), v))
	}
}

func seedTree(t *testing.T, m storage.Module[any]) {
	t.Helper()
	seed(t, m, map[string]any{
		"orig":     "root",
		"orig/a":   1.0,
		"orig/b/c": 2.0,
	})
}

func assertValue(t *testing.T, m storage.Module[any], key storage.Key, want any) {
	t.Helper()
	got, ok, err := m.GetItem(context.Background(), key)
	require.NoError(t, err)
	if assert.True(t, ok, "expected %s to exist", key) {
		assert.Equal(t, want, got, key.String())
	}
}

func assertAbsent(t *testing.T, m storage.Module[any], key storage.Key) {
	t.Helper()
	has, err := m.HasItem(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, has, "expected %s to be absent", key)
}

func keyStrings(entries []storage.Entry[any]) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key.String()
	}
	return out
}

func values(entries []storage.Entry[any]) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}
