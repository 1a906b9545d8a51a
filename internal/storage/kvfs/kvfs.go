// Package kvfs combines a filesystem module and a KV module. Reads prefer
// the primary side; writes, removals and clears only touch the KV side.
package kvfs

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/storekit/storekit/internal/storage"
)

// Primary selects which side wins on reads.
type Primary string

const (
	PrimaryFS Primary = "fs"
	PrimaryKV Primary = "kv"
)

// ParsePrimary maps a configuration value to a Primary. Anything other
// than "kv" selects the filesystem.
func ParsePrimary(s string) Primary {
	if s == string(PrimaryKV) {
		return PrimaryKV
	}
	return PrimaryFS
}

// Options configures a Store.
type Options[T any] struct {
	FS      storage.Module[T]
	KV      storage.Module[T]
	Primary Primary
	Logger  *logrus.Logger
}

// Store is the combined module.
type Store[T any] struct {
	fs      storage.Module[T]
	kv      storage.Module[T]
	primary Primary
	logger  *logrus.Logger
}

// New creates a Store. Both sides are required.
func New[T any](opts Options[T]) (*Store[T], error) {
	if opts.FS == nil || opts.KV == nil {
		return nil, storage.NewError(storage.ErrNotConfigured.Code, "Both a filesystem and a KV module are required")
	}
	if opts.Primary == "" {
		opts.Primary = PrimaryFS
	}
	if opts.Primary != PrimaryFS && opts.Primary != PrimaryKV {
		return nil, storage.NewError(storage.ErrNotConfigured.Code, fmt.Sprintf("Unknown primary %q", opts.Primary))
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Store[T]{fs: opts.FS, kv: opts.KV, primary: opts.Primary, logger: opts.Logger}, nil
}

// Primary reports the configured primary side.
func (s *Store[T]) Primary() Primary {
	return s.primary
}

func (s *Store[T]) sides() (first, second storage.Module[T]) {
	if s.primary == PrimaryKV {
		return s.kv, s.fs
	}
	return s.fs, s.kv
}

// URL returns the primary side's URL.
func (s *Store[T]) URL(ctx context.Context) (string, error) {
	first, _ := s.sides()
	return first.URL(ctx)
}

// IsWritable is false for keys the filesystem holds in fs-primary mode.
func (s *Store[T]) IsWritable(ctx context.Context, key storage.Key) (bool, error) {
	shadowed, err := s.shadowed(ctx, key)
	if err != nil || shadowed {
		return false, err
	}
	return s.kv.IsWritable(ctx, key)
}

func (s *Store[T]) HasItem(ctx context.Context, key storage.Key) (bool, error) {
	ok, err := s.kv.HasItem(ctx, key)
	if err != nil || ok {
		return ok, err
	}
	return s.fs.HasItem(ctx, key)
}

func (s *Store[T]) GetItem(ctx context.Context, key storage.Key) (T, bool, error) {
	first, second := s.sides()
	v, ok, err := first.GetItem(ctx, key)
	if err != nil || ok {
		return v, ok, err
	}
	return second.GetItem(ctx, key)
}

// SetItem writes to the KV side. In fs-primary mode a key the filesystem
// already holds is never overwritten and the write fails with ErrReadOnly.
func (s *Store[T]) SetItem(ctx context.Context, key storage.Key, value T, opts ...storage.SetOption) error {
	shadowed, err := s.shadowed(ctx, key)
	if err != nil {
		return err
	}
	if shadowed {
		s.logger.WithField("key", key.String()).Debug("Write shadowed by filesystem item")
		return storage.NewError(storage.ErrReadOnly.Code, fmt.Sprintf("Key %s is held by the filesystem", key))
	}
	return s.kv.SetItem(ctx, key, value, opts...)
}

// RemoveItem only removes from the KV side.
func (s *Store[T]) RemoveItem(ctx context.Context, key storage.Key) error {
	return s.kv.RemoveItem(ctx, key)
}

// ListItems yields the primary side, then the secondary side's keys that
// the primary did not hold.
func (s *Store[T]) ListItems(ctx context.Context, prefix storage.Key, opts ...storage.ListOption) iter.Seq2[storage.Entry[T], error] {
	first, second := s.sides()
	return func(yield func(storage.Entry[T], error) bool) {
		seen := make(map[string]struct{})
		for e, err := range first.ListItems(ctx, prefix, opts...) {
			if err != nil {
				yield(storage.Entry[T]{}, err)
				return
			}
			seen[e.Key.String()] = struct{}{}
			if !yield(e, nil) {
				return
			}
		}
		for e, err := range second.ListItems(ctx, prefix, opts...) {
			if err != nil {
				yield(storage.Entry[T]{}, err)
				return
			}
			if _, dup := seen[e.Key.String()]; dup {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// ClearItems only clears the KV side.
func (s *Store[T]) ClearItems(ctx context.Context, prefix storage.Key) error {
	return s.kv.ClearItems(ctx, prefix)
}

// Close closes both sides.
func (s *Store[T]) Close() error {
	return errors.Join(s.kv.Close(), s.fs.Close())
}

func (s *Store[T]) shadowed(ctx context.Context, key storage.Key) (bool, error) {
	if s.primary != PrimaryFS || key.IsRoot() {
		return false, nil
	}
	return s.fs.HasItem(ctx, key)
}

var _ storage.Module[any] = (*Store[any])(nil)
