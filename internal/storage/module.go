package storage

import (
	"context"
	"iter"
	"reflect"
)

// Module is the uniform contract every storage backend implements.
//
// GetItem reports absence through its boolean result rather than an error.
// RemoveItem deletes exactly one item; ClearItems deletes the item at the
// prefix and everything below it. ListItems yields descendants of the
// prefix lazily and never the item at the prefix itself; if listing fails
// the error is yielded once as the final element.
type Module[T any] interface {
	URL(ctx context.Context) (string, error)
	IsWritable(ctx context.Context, key Key) (bool, error)
	HasItem(ctx context.Context, key Key) (bool, error)
	GetItem(ctx context.Context, key Key) (T, bool, error)
	SetItem(ctx context.Context, key Key, value T, opts ...SetOption) error
	RemoveItem(ctx context.Context, key Key) error
	ListItems(ctx context.Context, prefix Key, opts ...ListOption) iter.Seq2[Entry[T], error]
	ClearItems(ctx context.Context, prefix Key) error
	Close() error
}

// Copier is implemented by modules with a native subtree copy.
type Copier interface {
	CopyItems(ctx context.Context, from, to Key) error
}

// Mover is implemented by modules with a native subtree move.
type Mover interface {
	MoveItems(ctx context.Context, from, to Key) error
}

// Same reports whether a and b are the same module instance. Values whose
// dynamic type is not comparable are never the same.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Collect drains a listing into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[Entry[T], error]) ([]Entry[T], error) {
	var out []Entry[T]
	for e, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ErrSeq returns a listing that yields only err.
func ErrSeq[T any](err error) iter.Seq2[Entry[T], error] {
	return func(yield func(Entry[T], error) bool) {
		yield(Entry[T]{}, err)
	}
}
