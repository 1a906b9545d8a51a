// Package kv implements the storage module contract on an ordered
// key-value engine.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/storekit/storekit/internal/engine"
	"github.com/storekit/storekit/internal/storage"
)

// Options configures a Store.
type Options[T any] struct {
	Codec storage.Codec[T]
	// Consistency is the read level for GetItem and HasItem. The zero value
	// is engine.Strong.
	Consistency engine.Consistency
	Logger      *logrus.Logger
}

// Store maps hierarchical keys onto an engine.Engine.
type Store[T any] struct {
	engine      engine.Engine
	codec       storage.Codec[T]
	consistency engine.Consistency
	logger      *logrus.Logger
}

// New creates a Store on e. The store owns e and closes it on Close.
func New[T any](e engine.Engine, opts Options[T]) *Store[T] {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Store[T]{
		engine:      e,
		codec:       storage.CodecOrDefault(opts.Codec),
		consistency: opts.Consistency,
		logger:      opts.Logger,
	}
}

// Engine returns the underlying engine for operations outside the module
// contract.
func (s *Store[T]) Engine() engine.Engine {
	return s.engine
}

func (s *Store[T]) URL(ctx context.Context) (string, error) {
	return s.engine.URL(), nil
}

func (s *Store[T]) IsWritable(ctx context.Context, key storage.Key) (bool, error) {
	return true, nil
}

func (s *Store[T]) HasItem(ctx context.Context, key storage.Key) (bool, error) {
	_, ok, err := s.GetItem(ctx, key)
	return ok, err
}

func (s *Store[T]) GetItem(ctx context.Context, key storage.Key) (T, bool, error) {
	var zero T
	k, err := encodeKey(key)
	if err != nil || key.IsRoot() {
		return zero, false, err
	}
	data, err := s.engine.Get(ctx, k, s.consistency)
	if errors.Is(err, engine.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	v, err := s.codec.Unmarshal(data)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (s *Store[T]) SetItem(ctx context.Context, key storage.Key, value T, opts ...storage.SetOption) error {
	k, err := encodeKey(key)
	if err != nil {
		return err
	}
	if key.IsRoot() {
		return storage.NewError(storage.ErrInvalidKey.Code, "The root key cannot hold an item")
	}
	data, err := s.codec.Marshal(value)
	if err != nil {
		return err
	}
	o := storage.ApplySetOptions(opts...)
	return s.engine.Put(ctx, k, data, o.ExpireIn)
}

func (s *Store[T]) RemoveItem(ctx context.Context, key storage.Key) error {
	k, err := encodeKey(key)
	if err != nil || key.IsRoot() {
		return err
	}
	return s.engine.Delete(ctx, k)
}

// ListItems pages through the engine so that no engine transaction stays
// open while the caller handles an entry.
func (s *Store[T]) ListItems(ctx context.Context, prefix storage.Key, opts ...storage.ListOption) iter.Seq2[storage.Entry[T], error] {
	p, err := encodeKey(prefix)
	if err != nil {
		return storage.ErrSeq[T](err)
	}
	o := storage.ApplyListOptions(opts...)

	return func(yield func(storage.Entry[T], error) bool) {
		scan := engine.ScanOptions{Reverse: o.Reverse, Limit: o.PageSize}
		for {
			page, err := s.engine.Scan(ctx, p, scan)
			if err != nil {
				yield(storage.Entry[T]{}, err)
				return
			}
			for _, kv := range page {
				if kv.Key == p {
					continue
				}
				key, err := decodeKey(kv.Key)
				if err != nil {
					yield(storage.Entry[T]{}, fmt.Errorf("decode key: %w", err))
					return
				}
				v, err := s.codec.Unmarshal(kv.Value)
				if err != nil {
					yield(storage.Entry[T]{}, err)
					return
				}
				if !yield(storage.Entry[T]{Key: key, Value: v}, nil) {
					return
				}
			}
			if len(page) < scan.Limit {
				return
			}
			scan.After = page[len(page)-1].Key
		}
	}
}

// ClearItems deletes the item at prefix and every descendant in one
// atomic batch.
func (s *Store[T]) ClearItems(ctx context.Context, prefix storage.Key) error {
	p, err := encodeKey(prefix)
	if err != nil {
		return err
	}

	var deletes []string
	scan := engine.ScanOptions{Limit: storage.DefaultPageSize}
	for {
		page, err := s.engine.Scan(ctx, p, scan)
		if err != nil {
			return err
		}
		for _, kv := range page {
			deletes = append(deletes, kv.Key)
		}
		if len(page) < scan.Limit {
			break
		}
		scan.After = page[len(page)-1].Key
	}
	if len(deletes) == 0 {
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"prefix": prefix.String(),
		"count":  len(deletes),
	}).Debug("Clearing items")
	return s.engine.Batch(ctx, nil, deletes)
}

// Close closes the engine.
func (s *Store[T]) Close() error {
	return s.engine.Close()
}

var _ storage.Module[any] = (*Store[any])(nil)
