package objectstore

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/storekit/internal/storage"
	"github.com/storekit/storekit/internal/storage/storagetest"
)

func newTestStore(t *testing.T, client API, prefix string) *Store[any] {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	s, err := New[any](Options[any]{Client: client, Bucket: "items", Prefix: prefix, Logger: logger})
	require.NoError(t, err)
	return s
}

func TestStoreContract(t *testing.T) {
	for _, prefix := range []string{"", "tenant/a"} {
		t.Run("prefix="+prefix, func(t *testing.T) {
			storagetest.Run(t, func(t *testing.T) storage.Module[any] {
				return newTestStore(t, newFakeS3(), prefix)
			}, storagetest.Options{Ordered: true, URLScheme: "s3"})
		})
	}
}

func TestObjectLayout(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake, "/data/")
	ctx := context.Background()

	require.NoError(t, s.SetItem(ctx, storage.Key{"users", 7}, map[string]any{"name": "ada"}))
	require.NoError(t, s.SetItem(ctx, storage.Key{"users", 7, "avatar"}, "png"))
	assert.Equal(t, []string{
		"data/users/0000000000000007.json",
		"data/users/0000000000000007/avatar.json",
	}, fake.keys())

	u, err := s.URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s3://items/data", u)
}

func TestCopyIsServerSide(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake, "")
	ctx := context.Background()

	require.NoError(t, s.SetItem(ctx, storage.Key{"src"}, "root"))
	require.NoError(t, s.SetItem(ctx, storage.Key{"src", "a b"}, "spaced"))
	require.NoError(t, storage.CopyItems(ctx, storage.Key{"src"}, storage.Key{"dst"}, storage.Module[any](s), storage.Module[any](s)))

	assert.Equal(t, 2, fake.copies)
	got, ok, err := s.GetItem(ctx, storage.Key{"dst", "a b"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "spaced", got)
}

func TestReadOnly(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	s, err := New[any](Options[any]{Client: newFakeS3(), Bucket: "items", ReadOnly: true, Logger: logger})
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := s.IsWritable(ctx, storage.Key{"a"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, s.SetItem(ctx, storage.Key{"a"}, 1), storage.ErrReadOnly)
	assert.ErrorIs(t, s.ClearItems(ctx, storage.Key{}), storage.ErrReadOnly)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New[any](Options[any]{Client: newFakeS3()})
	assert.ErrorIs(t, err, storage.ErrNotConfigured)
}

func TestNewClient(t *testing.T) {
	c := NewClient(ClientConfig{Endpoint: "http://localhost:9000", Region: "us-east-1", AccessKey: "k", SecretKey: "s"})
	assert.NotNil(t, c)
	assert.True(t, c.Options().UsePathStyle)
	assert.Equal(t, "http://localhost:9000", *c.Options().BaseEndpoint)
}
