package storage

import (
	"context"
	"fmt"
)

// CopyItems copies the item at from and every item below it to the same
// relative positions under to, replacing whatever existed under to. A nil
// dst means src. Within one module, overlapping prefixes are rejected and
// equal prefixes are a no-op; a native Copier is used when available.
func CopyItems[T any](ctx context.Context, from, to Key, src, dst Module[T]) error {
	if dst == nil {
		dst = src
	}
	if Same(src, dst) {
		if done, err := CheckCopyPrefixes(from, to); done || err != nil {
			return err
		}
		if c, ok := src.(Copier); ok {
			return c.CopyItems(ctx, from, to)
		}
	}
	return CopyEach(ctx, from, to, src, dst)
}

// MoveItems is CopyItems followed by clearing from on the source. Within
// one module a native Mover is used when available.
func MoveItems[T any](ctx context.Context, from, to Key, src, dst Module[T]) error {
	if dst == nil {
		dst = src
	}
	if Same(src, dst) {
		if done, err := CheckCopyPrefixes(from, to); done || err != nil {
			return err
		}
		if m, ok := src.(Mover); ok {
			return m.MoveItems(ctx, from, to)
		}
	}
	if err := CopyItems(ctx, from, to, src, dst); err != nil {
		return err
	}
	return src.ClearItems(ctx, from)
}

// CopyEach copies item by item through the public operations of src and
// dst without consulting native capabilities.
func CopyEach[T any](ctx context.Context, from, to Key, src, dst Module[T]) error {
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	if err := dst.ClearItems(ctx, to); err != nil {
		return fmt.Errorf("clear destination %s: %w", to, err)
	}

	v, ok, err := src.GetItem(ctx, from)
	if err != nil {
		return err
	}
	if ok {
		if err := dst.SetItem(ctx, to, v); err != nil {
			return err
		}
	}

	for e, err := range src.ListItems(ctx, from) {
		if err != nil {
			return err
		}
		if err := dst.SetItem(ctx, e.Key.Rebase(from, to), e.Value); err != nil {
			return err
		}
	}
	return nil
}

// MoveEach is CopyEach followed by clearing from on src.
func MoveEach[T any](ctx context.Context, from, to Key, src, dst Module[T]) error {
	if err := CopyEach(ctx, from, to, src, dst); err != nil {
		return err
	}
	return src.ClearItems(ctx, from)
}

// CheckCopyPrefixes validates a copy or move inside a single module. done
// is true when the prefixes are equal and nothing needs to happen.
func CheckCopyPrefixes(from, to Key) (done bool, err error) {
	if err := from.Validate(); err != nil {
		return false, err
	}
	if err := to.Validate(); err != nil {
		return false, err
	}
	if from.Equal(to) {
		return true, nil
	}
	if from.HasPrefix(to) || to.HasPrefix(from) {
		return false, NewErrorWithCause(ErrOverlappingKeys.Code, ErrOverlappingKeys.Message,
			fmt.Errorf("%s and %s", from, to))
	}
	return false, nil
}
