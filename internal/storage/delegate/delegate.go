// Package delegate routes storage operations to registered modules by the
// first component of the key.
package delegate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/storekit/storekit/internal/storage"
)

// Resolver builds the default module on first use when none is set.
type Resolver[T any] func(ctx context.Context) (storage.Module[T], error)

// Store is the routing facade. It holds no data of its own.
type Store[T any] struct {
	mu sync.Mutex
	// resolveMu serializes default resolution without holding mu, so
	// routed calls and registrations proceed while a module opens.
	resolveMu sync.Mutex
	def       storage.Module[T]
	prefixes map[string]storage.Module[T]
	resolver Resolver[T]
	logger   *logrus.Logger
}

// New creates a facade. resolver may be nil, in which case operations
// without a registered module fail with ErrNotConfigured.
func New[T any](resolver Resolver[T], logger *logrus.Logger) *Store[T] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store[T]{
		prefixes: make(map[string]storage.Module[T]),
		resolver: resolver,
		logger:   logger,
	}
}

// SetStore replaces the default module. nil clears it so the next lookup
// resolves again.
func (s *Store[T]) SetStore(m storage.Module[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.def = m
}

// SetStoreFor routes keys whose first component is prefix to m. nil
// removes the route.
func (s *Store[T]) SetStoreFor(prefix string, m storage.Module[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m == nil {
		delete(s.prefixes, prefix)
		return
	}
	s.prefixes[prefix] = m
}

// GetStore returns the module responsible for key.
func (s *Store[T]) GetStore(ctx context.Context, key storage.Key) (storage.Module[T], error) {
	if m := s.lookup(key); m != nil {
		return m, nil
	}
	if s.resolver == nil {
		return nil, storage.NewError(storage.ErrNotConfigured.Code, "No store is registered and no module is configured")
	}

	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()
	// Another caller may have resolved or set the default meanwhile.
	if m := s.lookup(key); m != nil {
		return m, nil
	}

	m, err := s.resolver(ctx)
	if err != nil {
		return nil, storage.NewErrorWithCause(storage.ErrNotConfigured.Code, "Failed to resolve the default store", err)
	}
	if m == nil {
		return nil, storage.NewError(storage.ErrNotConfigured.Code, "The configured module resolved to nothing")
	}

	s.mu.Lock()
	if s.def != nil {
		def := s.def
		s.mu.Unlock()
		if !storage.Same(def, m) {
			if err := m.Close(); err != nil {
				s.logger.WithError(err).Warn("Failed to close superseded store")
			}
		}
		return def, nil
	}
	s.def = m
	s.mu.Unlock()

	if u, err := m.URL(ctx); err == nil {
		s.logger.WithField("url", u).Info("Default store resolved")
	}
	return m, nil
}

// lookup returns the routed module for key, else the default, else nil.
func (s *Store[T]) lookup(key storage.Key) storage.Module[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if first, ok := key.First(); ok {
		if m, found := s.prefixes[first]; found {
			return m
		}
	}
	return s.def
}

// StoreURL returns the URL of the module responsible for key.
func (s *Store[T]) StoreURL(ctx context.Context, key storage.Key) (string, error) {
	m, err := s.GetStore(ctx, key)
	if err != nil {
		return "", err
	}
	return m.URL(ctx)
}

// URL returns the default module's URL.
func (s *Store[T]) URL(ctx context.Context) (string, error) {
	return s.StoreURL(ctx, nil)
}

func (s *Store[T]) IsWritable(ctx context.Context, key storage.Key) (bool, error) {
	m, err := s.GetStore(ctx, key)
	if err != nil {
		return false, err
	}
	return m.IsWritable(ctx, key)
}

func (s *Store[T]) HasItem(ctx context.Context, key storage.Key) (bool, error) {
	m, err := s.GetStore(ctx, key)
	if err != nil {
		return false, err
	}
	return m.HasItem(ctx, key)
}

func (s *Store[T]) GetItem(ctx context.Context, key storage.Key) (T, bool, error) {
	m, err := s.GetStore(ctx, key)
	if err != nil {
		var zero T
		return zero, false, err
	}
	return m.GetItem(ctx, key)
}

func (s *Store[T]) SetItem(ctx context.Context, key storage.Key, value T, opts ...storage.SetOption) error {
	m, err := s.GetStore(ctx, key)
	if err != nil {
		return err
	}
	return m.SetItem(ctx, key, value, opts...)
}

func (s *Store[T]) RemoveItem(ctx context.Context, key storage.Key) error {
	m, err := s.GetStore(ctx, key)
	if err != nil {
		return err
	}
	return m.RemoveItem(ctx, key)
}

// ListItems lists from the module responsible for prefix. Listing the root
// only covers the default module.
func (s *Store[T]) ListItems(ctx context.Context, prefix storage.Key, opts ...storage.ListOption) iter.Seq2[storage.Entry[T], error] {
	m, err := s.GetStore(ctx, prefix)
	if err != nil {
		return storage.ErrSeq[T](err)
	}
	return m.ListItems(ctx, prefix, opts...)
}

func (s *Store[T]) ClearItems(ctx context.Context, prefix storage.Key) error {
	m, err := s.GetStore(ctx, prefix)
	if err != nil {
		return err
	}
	return m.ClearItems(ctx, prefix)
}

// CopyItems resolves source and destination separately. Copies across
// modules go item by item.
func (s *Store[T]) CopyItems(ctx context.Context, from, to storage.Key) error {
	src, dst, err := s.route(ctx, from, to)
	if err != nil {
		return err
	}
	return storage.CopyItems(ctx, from, to, src, dst)
}

// MoveItems resolves source and destination separately.
func (s *Store[T]) MoveItems(ctx context.Context, from, to storage.Key) error {
	src, dst, err := s.route(ctx, from, to)
	if err != nil {
		return err
	}
	return storage.MoveItems(ctx, from, to, src, dst)
}

func (s *Store[T]) route(ctx context.Context, from, to storage.Key) (storage.Module[T], storage.Module[T], error) {
	src, err := s.GetStore(ctx, from)
	if err != nil {
		return nil, nil, err
	}
	dst, err := s.GetStore(ctx, to)
	if err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}

// Close closes every registered module concurrently and forgets all
// registrations. A module registered under several routes is closed once.
func (s *Store[T]) Close() error {
	s.mu.Lock()
	var modules []storage.Module[T]
	add := func(m storage.Module[T]) {
		for _, seen := range modules {
			if storage.Same(seen, m) {
				return
			}
		}
		modules = append(modules, m)
	}
	if s.def != nil {
		add(s.def)
	}
	for _, m := range s.prefixes {
		add(m)
	}
	s.def = nil
	s.prefixes = make(map[string]storage.Module[T])
	s.mu.Unlock()

	errs := make([]error, len(modules))
	var wg sync.WaitGroup
	for i, m := range modules {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Close(); err != nil {
				s.logger.WithError(err).Warn("Failed to close store")
				errs[i] = fmt.Errorf("close store %d: %w", i, err)
			}
		}()
	}
	wg.Wait()

	s.logger.WithField("stores", len(modules)).Debug("Delegating store closed")
	return errors.Join(errs...)
}

var (
	_ storage.Module[any] = (*Store[any])(nil)
	_ storage.Copier      = (*Store[any])(nil)
	_ storage.Mover       = (*Store[any])(nil)
)
