// Package badgerkv implements engine.Engine on BadgerDB.
package badgerkv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/storekit/storekit/internal/engine"
)

// DefaultGCInterval is how often the value log is garbage collected.
const DefaultGCInterval = 10 * time.Minute

// Engine stores values in BadgerDB and relies on its native TTL.
type Engine struct {
	db      *badger.DB
	path    string
	logger  *logrus.Logger
	ready   atomic.Bool
	janitor *engine.Janitor
}

// Options contains configuration options for Engine
type Options struct {
	DataDir    string
	InMemory   bool
	SyncWrites bool
	Logger     *logrus.Logger
	// GCInterval controls value-log garbage collection; negative disables it.
	GCInterval time.Duration
}

// Open creates or opens a BadgerDB database.
func Open(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.GCInterval == 0 {
		opts.GCInterval = DefaultGCInterval
	}

	dir := opts.DataDir
	if opts.InMemory {
		dir = ""
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory: %w", err)
	}

	badgerOpts := badger.DefaultOptions(dir).
		WithInMemory(opts.InMemory).
		WithLogger(newBadgerLogger(opts.Logger)).
		WithSyncWrites(opts.SyncWrites).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	e := &Engine{db: db, path: dir, logger: opts.Logger}
	e.ready.Store(true)
	if opts.GCInterval > 0 && !opts.InMemory {
		e.janitor = engine.StartJanitor(opts.GCInterval, e.gc)
	}

	opts.Logger.WithFields(logrus.Fields{
		"path":      dir,
		"in_memory": opts.InMemory,
	}).Info("BadgerDB engine initialized")
	return e, nil
}

func (e *Engine) Get(ctx context.Context, key string, c engine.Consistency) ([]byte, error) {
	if !e.ready.Load() {
		return nil, engine.ErrClosed
	}
	var out []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, engine.ErrNotFound
	}
	return out, err
}

func (e *Engine) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !e.ready.Load() {
		return engine.ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (e *Engine) Delete(ctx context.Context, key string) error {
	if !e.ready.Load() {
		return engine.ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Batch applies writes and deletes atomically in a single BadgerDB transaction.
func (e *Engine) Batch(ctx context.Context, sets map[string][]byte, deletes []string) error {
	if !e.ready.Load() {
		return engine.ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		for k, v := range sets {
			if err := txn.Set([]byte(k), v); err != nil {
				return fmt.Errorf("batch set %q: %w", k, err)
			}
		}
		for _, k := range deletes {
			if err := txn.Delete([]byte(k)); err != nil && err != badger.ErrKeyNotFound {
				return fmt.Errorf("batch delete %q: %w", k, err)
			}
		}
		return nil
	})
}

// Scan reads one page of pairs under prefix.
func (e *Engine) Scan(ctx context.Context, prefix string, opts engine.ScanOptions) ([]engine.KV, error) {
	if !e.ready.Load() {
		return nil, engine.ErrClosed
	}
	p := []byte(prefix)
	var out []engine.KV
	err := e.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Reverse = opts.Reverse
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		switch {
		case opts.After != "":
			it.Seek([]byte(opts.After))
		case !opts.Reverse:
			it.Seek(p)
		default:
			if end := engine.PrefixEnd(p); end != nil {
				it.Seek(end)
			} else {
				it.Rewind()
			}
		}

		for ; it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			k := item.Key()
			if !bytes.HasPrefix(k, p) {
				if opts.Reverse && bytes.Compare(k, p) > 0 {
					continue
				}
				break
			}
			if string(k) == opts.After {
				continue
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, engine.KV{Key: string(item.KeyCopy(nil)), Value: val})
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (e *Engine) URL() string {
	if e.path == "" {
		return "badger://memory"
	}
	return "badger://" + e.path
}

// DB exposes the underlying database.
func (e *Engine) DB() *badger.DB {
	return e.db
}

func (e *Engine) Close() error {
	if !e.ready.CompareAndSwap(true, false) {
		return nil
	}
	e.janitor.Stop()
	e.logger.WithField("path", e.path).Info("Closing BadgerDB engine")
	return e.db.Close()
}

// gc runs BadgerDB value-log garbage collection.
func (e *Engine) gc() {
	if !e.ready.Load() {
		return
	}
	err := e.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		e.logger.WithError(err).Warn("Value log GC failed")
	}
}

// badgerLogger adapts logrus to BadgerDB's logger interface
type badgerLogger struct {
	logger *logrus.Logger
}

func newBadgerLogger(logger *logrus.Logger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Tracef("[BadgerDB] "+format, args...)
}

var _ engine.Engine = (*Engine)(nil)
