// Package localstore implements the storage module contract on a flat
// key-value area, flattening keys into their delimited string form.
package localstore

import (
	"context"
	"iter"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/storekit/storekit/internal/storage"
)

// Options configures a Store.
type Options[T any] struct {
	Codec  storage.Codec[T]
	Logger *logrus.Logger
}

// Store stores each item under the delimited form of its key.
type Store[T any] struct {
	area   Area
	codec  storage.Codec[T]
	logger *logrus.Logger
}

// New creates a Store on area. The store owns area and closes it on Close.
func New[T any](area Area, opts Options[T]) *Store[T] {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Store[T]{
		area:   area,
		codec:  storage.CodecOrDefault(opts.Codec),
		logger: opts.Logger,
	}
}

func (s *Store[T]) URL(ctx context.Context) (string, error) {
	return s.area.URL(), nil
}

func (s *Store[T]) IsWritable(ctx context.Context, key storage.Key) (bool, error) {
	return true, nil
}

func (s *Store[T]) HasItem(ctx context.Context, key storage.Key) (bool, error) {
	if key.IsRoot() {
		return false, nil
	}
	k, err := storage.EncodePath(key)
	if err != nil {
		return false, err
	}
	_, ok, err := s.area.Get(ctx, k)
	return ok, err
}

func (s *Store[T]) GetItem(ctx context.Context, key storage.Key) (T, bool, error) {
	var zero T
	if key.IsRoot() {
		return zero, false, nil
	}
	k, err := storage.EncodePath(key)
	if err != nil {
		return zero, false, err
	}
	return s.get(ctx, k)
}

// SetItem ignores ExpireIn.
func (s *Store[T]) SetItem(ctx context.Context, key storage.Key, value T, opts ...storage.SetOption) error {
	if key.IsRoot() {
		return storage.NewError(storage.ErrInvalidKey.Code, "The root key cannot hold an item")
	}
	k, err := storage.EncodePath(key)
	if err != nil {
		return err
	}
	data, err := s.codec.Marshal(value)
	if err != nil {
		return err
	}
	return s.area.Set(ctx, k, string(data))
}

func (s *Store[T]) RemoveItem(ctx context.Context, key storage.Key) error {
	if key.IsRoot() {
		return nil
	}
	k, err := storage.EncodePath(key)
	if err != nil {
		return err
	}
	return s.area.Remove(ctx, k)
}

// ListItems snapshots the matching keys, then reads values one by one.
// Items removed in between are skipped.
func (s *Store[T]) ListItems(ctx context.Context, prefix storage.Key, opts ...storage.ListOption) iter.Seq2[storage.Entry[T], error] {
	p, err := descendantPrefix(prefix)
	if err != nil {
		return storage.ErrSeq[T](err)
	}
	o := storage.ApplyListOptions(opts...)

	return func(yield func(storage.Entry[T], error) bool) {
		keys, err := s.area.Keys(ctx, p)
		if err != nil {
			yield(storage.Entry[T]{}, err)
			return
		}
		if o.Reverse {
			slices.Reverse(keys)
		}
		for _, k := range keys {
			v, ok, err := s.get(ctx, k)
			if err != nil {
				yield(storage.Entry[T]{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(storage.Entry[T]{Key: storage.DecodePath(k), Value: v}, nil) {
				return
			}
		}
	}
}

func (s *Store[T]) ClearItems(ctx context.Context, prefix storage.Key) error {
	p, err := descendantPrefix(prefix)
	if err != nil {
		return err
	}
	keys, err := s.area.Keys(ctx, p)
	if err != nil {
		return err
	}
	if !prefix.IsRoot() {
		self, _ := storage.EncodePath(prefix)
		keys = append(keys, self)
	}
	for _, k := range keys {
		if err := s.area.Remove(ctx, k); err != nil {
			return err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"prefix": prefix.String(),
		"count":  len(keys),
	}).Debug("Clearing items")
	return nil
}

// Close closes the area.
func (s *Store[T]) Close() error {
	return s.area.Close()
}

func (s *Store[T]) get(ctx context.Context, k string) (T, bool, error) {
	var zero T
	raw, ok, err := s.area.Get(ctx, k)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := s.codec.Unmarshal([]byte(raw))
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// descendantPrefix returns the string every descendant key starts with.
func descendantPrefix(prefix storage.Key) (string, error) {
	if prefix.IsRoot() {
		return "", nil
	}
	p, err := storage.EncodePath(prefix)
	if err != nil {
		return "", err
	}
	return p + storage.PathSeparator, nil
}

var _ storage.Module[any] = (*Store[any])(nil)
