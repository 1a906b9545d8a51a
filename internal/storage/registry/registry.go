// Package registry builds storage modules by name from configuration.
package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/storekit/storekit/internal/config"
	"github.com/storekit/storekit/internal/engine"
	"github.com/storekit/storekit/internal/engine/badgerkv"
	"github.com/storekit/storekit/internal/engine/boltkv"
	"github.com/storekit/storekit/internal/engine/memkv"
	"github.com/storekit/storekit/internal/engine/pebblekv"
	"github.com/storekit/storekit/internal/storage"
	"github.com/storekit/storekit/internal/storage/delegate"
	"github.com/storekit/storekit/internal/storage/filesystem"
	"github.com/storekit/storekit/internal/storage/kv"
	"github.com/storekit/storekit/internal/storage/kvfs"
	"github.com/storekit/storekit/internal/storage/localstore"
	"github.com/storekit/storekit/internal/storage/noop"
	"github.com/storekit/storekit/internal/storage/objectstore"
)

// Factory opens a module from configuration.
type Factory[T any] func(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (storage.Module[T], error)

// Registry maps module names to factories.
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
	logger    *logrus.Logger
}

// New creates a registry holding the built-in modules.
func New[T any](logger *logrus.Logger) *Registry[T] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := &Registry[T]{factories: make(map[string]Factory[T]), logger: logger}

	r.Register("filesystem", openFilesystem[T])
	r.Register("kv", func(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (storage.Module[T], error) {
		return openKV[T](cfg, cfg.KV.Engine, logger)
	})
	for _, name := range []string{config.EnginePebble, config.EngineBadger, config.EngineBbolt, config.EngineMemory} {
		r.Register(name, func(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (storage.Module[T], error) {
			return openKV[T](cfg, name, logger)
		})
	}
	r.Register("kvfs", openKVFS[T])
	r.Register("localstore", openLocalStore[T])
	r.Register("s3", openObjectStore[T])
	r.Register("noop", func(context.Context, *config.Config, *logrus.Logger) (storage.Module[T], error) {
		return noop.New[T](), nil
	})
	return r
}

// Register adds or replaces a factory.
func (r *Registry[T]) Register(name string, f Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names returns the registered module names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open builds the named module.
func (r *Registry[T]) Open(ctx context.Context, name string, cfg *config.Config) (storage.Module[T], error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, storage.NewError(storage.ErrNotConfigured.Code, fmt.Sprintf("Unknown module %q", name))
	}

	m, err := f(ctx, cfg, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open module %s: %w", name, err)
	}
	r.logger.WithField("module", name).Info("Storage module opened")
	return m, nil
}

// Resolver returns a facade resolver opening cfg.Module.
func (r *Registry[T]) Resolver(cfg *config.Config) delegate.Resolver[T] {
	return func(ctx context.Context) (storage.Module[T], error) {
		if cfg.Module == "" {
			return nil, storage.NewError(storage.ErrNotConfigured.Code, "No module is configured")
		}
		return r.Open(ctx, cfg.Module, cfg)
	}
}

// Configure registers the prefix routes of cfg on the facade. Each module
// name is opened once and shared by all its routes, including the default
// when cfg.Module is among them.
func (r *Registry[T]) Configure(ctx context.Context, facade *delegate.Store[T], cfg *config.Config) error {
	opened := make(map[string]storage.Module[T])
	prefixes := make([]string, 0, len(cfg.Prefixes))
	for prefix := range cfg.Prefixes {
		prefixes = append(prefixes, prefix)
	}
	slices.Sort(prefixes)

	for _, prefix := range prefixes {
		name := canonicalName(cfg, cfg.Prefixes[prefix])
		m, ok := opened[name]
		if !ok {
			var err error
			if m, err = r.Open(ctx, name, cfg); err != nil {
				return err
			}
			opened[name] = m
		}
		facade.SetStoreFor(prefix, m)
		r.logger.WithFields(logrus.Fields{
			"prefix": prefix,
			"module": name,
		}).Debug("Prefix route registered")
	}

	if m, ok := opened[canonicalName(cfg, cfg.Module)]; ok {
		facade.SetStore(m)
	}
	return nil
}

// canonicalName maps "kv" to the configured engine name, since both open
// the database at kv.path.
func canonicalName(cfg *config.Config, name string) string {
	if name == "kv" && cfg.KV.Engine != "" {
		return cfg.KV.Engine
	}
	return name
}

func openFilesystem[T any](ctx context.Context, cfg *config.Config, logger *logrus.Logger) (storage.Module[T], error) {
	s, err := filesystem.New[T](filesystem.Options[T]{
		Root:      cfg.FS.Root,
		Sandboxed: cfg.Sandboxed,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openKV[T any](cfg *config.Config, name string, logger *logrus.Logger) (storage.Module[T], error) {
	e, err := openEngine(cfg, name, logger)
	if err != nil {
		return nil, err
	}
	return kv.New[T](e, kv.Options[T]{Logger: logger}), nil
}

// openEngine opens the named engine. An engine other than the configured
// one gets its own file or directory next to kv.path.
func openEngine(cfg *config.Config, name string, logger *logrus.Logger) (engine.Engine, error) {
	path := cfg.KV.Path
	if name != cfg.KV.Engine && path != "" {
		path = filepath.Join(filepath.Dir(path), filepath.Base(path)+"."+name)
	}
	if path == "" && name != config.EngineMemory {
		return nil, storage.NewError(storage.ErrNotConfigured.Code, fmt.Sprintf("The %s engine needs kv.path", name))
	}

	var (
		e   engine.Engine
		err error
	)
	switch name {
	case config.EnginePebble:
		e, err = nonNil(pebblekv.Open(pebblekv.Options{
			DataDir:       path,
			Logger:        logger,
			SyncWrites:    cfg.KV.SyncWrites,
			SweepInterval: cfg.KV.SweepInterval,
		}))
	case config.EngineBadger:
		e, err = nonNil(badgerkv.Open(badgerkv.Options{
			DataDir:    path,
			SyncWrites: cfg.KV.SyncWrites,
			Logger:     logger,
		}))
	case config.EngineBbolt:
		e, err = nonNil(boltkv.Open(boltkv.Options{
			Path:          path,
			Logger:        logger,
			SyncWrites:    cfg.KV.SyncWrites,
			SweepInterval: cfg.KV.SweepInterval,
		}))
	case config.EngineMemory:
		e = memkv.New()
	default:
		err = storage.NewError(storage.ErrNotConfigured.Code, fmt.Sprintf("Unknown kv engine %q", name))
	}
	return e, err
}

// nonNil keeps a failed Open from producing a non-nil interface holding a
// nil pointer.
func nonNil[E engine.Engine](e E, err error) (engine.Engine, error) {
	if err != nil {
		return nil, err
	}
	return e, nil
}

func openKVFS[T any](ctx context.Context, cfg *config.Config, logger *logrus.Logger) (storage.Module[T], error) {
	fsStore, err := openFilesystem[T](ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	kvStore, err := openKV[T](cfg, cfg.KV.Engine, logger)
	if err != nil {
		return nil, err
	}
	s, err := kvfs.New[T](kvfs.Options[T]{
		FS:      fsStore,
		KV:      kvStore,
		Primary: kvfs.ParsePrimary(cfg.Primary),
		Logger:  logger,
	})
	if err != nil {
		kvStore.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func openLocalStore[T any](ctx context.Context, cfg *config.Config, logger *logrus.Logger) (storage.Module[T], error) {
	var area localstore.Area = localstore.NewMemoryArea()
	if cfg.LocalStore.Path != "" {
		a, err := localstore.NewSQLiteArea(cfg.LocalStore.Path, logger)
		if err != nil {
			return nil, err
		}
		area = a
	}
	return localstore.New[T](area, localstore.Options[T]{Logger: logger}), nil
}

func openObjectStore[T any](ctx context.Context, cfg *config.Config, logger *logrus.Logger) (storage.Module[T], error) {
	client := objectstore.NewClient(objectstore.ClientConfig{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
	})
	s, err := objectstore.New[T](objectstore.Options[T]{
		Client:   client,
		Bucket:   cfg.S3.Bucket,
		Prefix:   cfg.S3.Prefix,
		ReadOnly: cfg.S3.ReadOnly,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
