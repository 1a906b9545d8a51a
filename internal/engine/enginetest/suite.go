// Package enginetest holds the behavioral tests shared by every engine.
package enginetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/storekit/internal/engine"
)

// Factory opens a fresh, empty engine for one subtest.
type Factory func(t *testing.T) engine.Engine

// Run exercises the engine contract.
func Run(t *testing.T, open Factory) {
	ctx := context.Background()

	t.Run("PutGetDelete", func(t *testing.T) {
		e := open(t)
		require.NoError(t, e.Put(ctx, "k1", []byte("v1"), 0))

		got, err := e.Get(ctx, "k1", engine.Strong)
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		got, err = e.Get(ctx, "k1", engine.Eventual)
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		require.NoError(t, e.Delete(ctx, "k1"))
		_, err = e.Get(ctx, "k1", engine.Strong)
		assert.ErrorIs(t, err, engine.ErrNotFound)

		assert.NoError(t, e.Delete(ctx, "never-written"))
	})

	t.Run("Batch", func(t *testing.T) {
		e := open(t)
		require.NoError(t, e.Put(ctx, "old", []byte("x"), 0))

		err := e.Batch(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, []string{"old", "missing"})
		require.NoError(t, err)

		got, err := e.Get(ctx, "b", engine.Strong)
		require.NoError(t, err)
		assert.Equal(t, []byte("2"), got)
		_, err = e.Get(ctx, "old", engine.Strong)
		assert.ErrorIs(t, err, engine.ErrNotFound)
	})

	t.Run("ScanPrefix", func(t *testing.T) {
		e := open(t)
		for _, k := range []string{"a", "b\xff", "b\xff\x01", "b\xff\x02", "b\xff\x02\x00", "c"} {
			require.NoError(t, e.Put(ctx, k, []byte(k), 0))
		}

		kvs, err := e.Scan(ctx, "b\xff", engine.ScanOptions{})
		require.NoError(t, err)
		want := []string{"b\xff", "b\xff\x01", "b\xff\x02", "b\xff\x02\x00"}
		if diff := cmp.Diff(want, keys(kvs)); diff != "" {
			t.Errorf("forward scan mismatch (-want +got):\n%s", diff)
		}

		kvs, err = e.Scan(ctx, "b\xff", engine.ScanOptions{Reverse: true})
		require.NoError(t, err)
		want = []string{"b\xff\x02\x00", "b\xff\x02", "b\xff\x01", "b\xff"}
		if diff := cmp.Diff(want, keys(kvs)); diff != "" {
			t.Errorf("reverse scan mismatch (-want +got):\n%s", diff)
		}

		kvs, err = e.Scan(ctx, "", engine.ScanOptions{Reverse: true, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b\xff\x02\x00"}, keys(kvs))
		assert.Equal(t, []byte("c"), kvs[0].Value)
	})

	t.Run("ScanPages", func(t *testing.T) {
		e := open(t)
		for _, k := range []string{"p/1", "p/2", "p/3", "p/4", "p/5", "q/1"} {
			require.NoError(t, e.Put(ctx, k, []byte(k), 0))
		}

		for _, reverse := range []bool{false, true} {
			var got []string
			opts := engine.ScanOptions{Reverse: reverse, Limit: 2}
			for {
				page, err := e.Scan(ctx, "p/", opts)
				require.NoError(t, err)
				if len(page) == 0 {
					break
				}
				got = append(got, keys(page)...)
				opts.After = page[len(page)-1].Key
			}
			want := []string{"p/1", "p/2", "p/3", "p/4", "p/5"}
			if reverse {
				want = []string{"p/5", "p/4", "p/3", "p/2", "p/1"}
			}
			assert.Equal(t, want, got, "reverse=%v", reverse)
		}
	})

	t.Run("TTL", func(t *testing.T) {
		e := open(t)
		require.NoError(t, e.Put(ctx, "short", []byte("v"), time.Second))
		require.NoError(t, e.Put(ctx, "long", []byte("v"), time.Hour))

		_, err := e.Get(ctx, "short", engine.Strong)
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			_, err := e.Get(ctx, "short", engine.Strong)
			return err == engine.ErrNotFound
		}, 5*time.Second, 100*time.Millisecond)

		kvs, err := e.Scan(ctx, "", engine.ScanOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"long"}, keys(kvs))
	})

	t.Run("Closed", func(t *testing.T) {
		e := open(t)
		require.NoError(t, e.Close())
		_, err := e.Get(ctx, "k", engine.Strong)
		assert.ErrorIs(t, err, engine.ErrClosed)
		assert.ErrorIs(t, e.Put(ctx, "k", nil, 0), engine.ErrClosed)
		assert.NoError(t, e.Close())
	})

	t.Run("URL", func(t *testing.T) {
		e := open(t)
		assert.NotEmpty(t, e.URL())
	})
}

func keys(kvs []engine.KV) []string {
	out := make([]string, len(kvs))
	for i, kv := range kvs {
		out[i] = kv.Key
	}
	return out
}
