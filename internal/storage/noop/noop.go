// Package noop provides a storage module that holds nothing and accepts
// no writes.
package noop

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/storekit/storekit/internal/storage"
)

// Store discards everything.
type Store[T any] struct {
	id string
}

// New creates a no-op store.
func New[T any]() *Store[T] {
	return &Store[T]{id: uuid.NewString()}
}

func (s *Store[T]) URL(ctx context.Context) (string, error) {
	return "noop://" + s.id, nil
}

func (s *Store[T]) IsWritable(ctx context.Context, key storage.Key) (bool, error) {
	return false, nil
}

func (s *Store[T]) HasItem(ctx context.Context, key storage.Key) (bool, error) {
	return false, nil
}

func (s *Store[T]) GetItem(ctx context.Context, key storage.Key) (T, bool, error) {
	var zero T
	return zero, false, nil
}

func (s *Store[T]) SetItem(ctx context.Context, key storage.Key, value T, opts ...storage.SetOption) error {
	return nil
}

func (s *Store[T]) RemoveItem(ctx context.Context, key storage.Key) error {
	return nil
}

func (s *Store[T]) ListItems(ctx context.Context, prefix storage.Key, opts ...storage.ListOption) iter.Seq2[storage.Entry[T], error] {
	return func(yield func(storage.Entry[T], error) bool) {}
}

func (s *Store[T]) ClearItems(ctx context.Context, prefix storage.Key) error {
	return nil
}

func (s *Store[T]) Close() error {
	return nil
}

var _ storage.Module[any] = (*Store[any])(nil)
