// Package extend wraps a storage module so selected operations can be
// overridden while the rest pass through.
package extend

import (
	"context"
	"iter"

	"github.com/storekit/storekit/internal/storage"
)

// Trait holds optional overrides. Each receives the original module so it
// can delegate to the behavior it replaces. CopyItems and MoveItems also
// receive the extended module: passing it to storage.CopyEach runs the
// copy through the overridden operations.
type Trait[T any] struct {
	URL        func(ctx context.Context, orig storage.Module[T]) (string, error)
	IsWritable func(ctx context.Context, orig storage.Module[T], key storage.Key) (bool, error)
	HasItem    func(ctx context.Context, orig storage.Module[T], key storage.Key) (bool, error)
	GetItem    func(ctx context.Context, orig storage.Module[T], key storage.Key) (T, bool, error)
	SetItem    func(ctx context.Context, orig storage.Module[T], key storage.Key, value T, opts ...storage.SetOption) error
	RemoveItem func(ctx context.Context, orig storage.Module[T], key storage.Key) error
	ListItems  func(ctx context.Context, orig storage.Module[T], prefix storage.Key, opts ...storage.ListOption) iter.Seq2[storage.Entry[T], error]
	ClearItems func(ctx context.Context, orig storage.Module[T], prefix storage.Key) error
	CopyItems  func(ctx context.Context, orig, self storage.Module[T], from, to storage.Key) error
	MoveItems  func(ctx context.Context, orig, self storage.Module[T], from, to storage.Key) error
	Close      func(orig storage.Module[T]) error
}

// Store is a module extended with a Trait.
type Store[T any] struct {
	orig  storage.Module[T]
	trait Trait[T]
}

// Extend returns a module that runs the trait's overrides and forwards
// every other operation to orig.
func Extend[T any](orig storage.Module[T], trait Trait[T]) *Store[T] {
	return &Store[T]{orig: orig, trait: trait}
}

// Original returns the wrapped module.
func (s *Store[T]) Original() storage.Module[T] {
	return s.orig
}

func (s *Store[T]) URL(ctx context.Context) (string, error) {
	if s.trait.URL != nil {
		return s.trait.URL(ctx, s.orig)
	}
	return s.orig.URL(ctx)
}

func (s *Store[T]) IsWritable(ctx context.Context, key storage.Key) (bool, error) {
	if s.trait.IsWritable != nil {
		return s.trait.IsWritable(ctx, s.orig, key)
	}
	return s.orig.IsWritable(ctx, key)
}

func (s *Store[T]) HasItem(ctx context.Context, key storage.Key) (bool, error) {
	if s.trait.HasItem != nil {
		return s.trait.HasItem(ctx, s.orig, key)
	}
	return s.orig.HasItem(ctx, key)
}

func (s *Store[T]) GetItem(ctx context.Context, key storage.Key) (T, bool, error) {
	if s.trait.GetItem != nil {
		return s.trait.GetItem(ctx, s.orig, key)
	}
	return s.orig.GetItem(ctx, key)
}

func (s *Store[T]) SetItem(ctx context.Context, key storage.Key, value T, opts ...storage.SetOption) error {
	if s.trait.SetItem != nil {
		return s.trait.SetItem(ctx, s.orig, key, value, opts...)
	}
	return s.orig.SetItem(ctx, key, value, opts...)
}

func (s *Store[T]) RemoveItem(ctx context.Context, key storage.Key) error {
	if s.trait.RemoveItem != nil {
		return s.trait.RemoveItem(ctx, s.orig, key)
	}
	return s.orig.RemoveItem(ctx, key)
}

func (s *Store[T]) ListItems(ctx context.Context, prefix storage.Key, opts ...storage.ListOption) iter.Seq2[storage.Entry[T], error] {
	if s.trait.ListItems != nil {
		return s.trait.ListItems(ctx, s.orig, prefix, opts...)
	}
	return s.orig.ListItems(ctx, prefix, opts...)
}

func (s *Store[T]) ClearItems(ctx context.Context, prefix storage.Key) error {
	if s.trait.ClearItems != nil {
		return s.trait.ClearItems(ctx, s.orig, prefix)
	}
	return s.orig.ClearItems(ctx, prefix)
}

// CopyItems runs the override, else the original's native copy, else the
// item-by-item copy through this store.
func (s *Store[T]) CopyItems(ctx context.Context, from, to storage.Key) error {
	if s.trait.CopyItems != nil {
		return s.trait.CopyItems(ctx, s.orig, s, from, to)
	}
	if c, ok := s.orig.(storage.Copier); ok {
		return c.CopyItems(ctx, from, to)
	}
	if done, err := storage.CheckCopyPrefixes(from, to); done || err != nil {
		return err
	}
	return storage.CopyEach[T](ctx, from, to, s, s)
}

// MoveItems runs the override, else the original's native move, else
// CopyItems followed by ClearItems through this store.
func (s *Store[T]) MoveItems(ctx context.Context, from, to storage.Key) error {
	if s.trait.MoveItems != nil {
		return s.trait.MoveItems(ctx, s.orig, s, from, to)
	}
	if m, ok := s.orig.(storage.Mover); ok {
		return m.MoveItems(ctx, from, to)
	}
	if done, err := storage.CheckCopyPrefixes(from, to); done || err != nil {
		return err
	}
	if err := s.CopyItems(ctx, from, to); err != nil {
		return err
	}
	return s.ClearItems(ctx, from)
}

func (s *Store[T]) Close() error {
	if s.trait.Close != nil {
		return s.trait.Close(s.orig)
	}
	return s.orig.Close()
}

var (
	_ storage.Module[any] = (*Store[any])(nil)
	_ storage.Copier      = (*Store[any])(nil)
	_ storage.Mover       = (*Store[any])(nil)
)
