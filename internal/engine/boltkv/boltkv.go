// Package boltkv implements engine.Engine on a single bbolt bucket.
package boltkv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/storekit/storekit/internal/engine"
)

// DefaultSweepInterval is how often expired items are purged.
const DefaultSweepInterval = time.Minute

var itemsBucket = []byte("items")

// Engine stores sealed values in a bbolt database file.
type Engine struct {
	db      *bolt.DB
	path    string
	logger  *logrus.Logger
	ready   atomic.Bool
	janitor *engine.Janitor
}

// Options contains configuration options for Engine
type Options struct {
	// Path is the database file.
	Path       string
	Logger     *logrus.Logger
	SyncWrites bool
	// SweepInterval controls the expired-item purge; negative disables it.
	SweepInterval time.Duration
}

// Open creates or opens the bbolt file at opts.Path.
func Open(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create bolt directory: %w", err)
	}

	db, err := bolt.Open(opts.Path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	db.NoSync = !opts.SyncWrites

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(itemsBucket)
		return err
	}); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	e := &Engine{db: db, path: opts.Path, logger: opts.Logger}
	e.ready.Store(true)
	if opts.SweepInterval > 0 {
		e.janitor = engine.StartJanitor(opts.SweepInterval, e.sweep)
	}

	opts.Logger.WithField("path", opts.Path).Info("Bolt engine initialized")
	return e, nil
}

func (e *Engine) Get(ctx context.Context, key string, c engine.Consistency) ([]byte, error) {
	if !e.ready.Load() {
		return nil, engine.ErrClosed
	}
	var out []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		sealed := tx.Bucket(itemsBucket).Get([]byte(key))
		if sealed == nil {
			return engine.ErrNotFound
		}
		v, live := engine.Open(sealed, time.Now())
		if !live {
			return engine.ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (e *Engine) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !e.ready.Load() {
		return engine.ErrClosed
	}
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(itemsBucket).Put([]byte(key), engine.Seal(value, ttl, time.Now()))
	})
}

func (e *Engine) Delete(ctx context.Context, key string) error {
	if !e.ready.Load() {
		return engine.ErrClosed
	}
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(itemsBucket).Delete([]byte(key))
	})
}

// Batch applies writes and deletes in one read-write transaction.
func (e *Engine) Batch(ctx context.Context, sets map[string][]byte, deletes []string) error {
	if !e.ready.Load() {
		return engine.ErrClosed
	}
	now := time.Now()
	return e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(itemsBucket)
		for k, v := range sets {
			if err := b.Put([]byte(k), engine.Seal(v, 0, now)); err != nil {
				return fmt.Errorf("batch set %q: %w", k, err)
			}
		}
		for _, k := range deletes {
			if err := b.Delete([]byte(k)); err != nil {
				return fmt.Errorf("batch delete %q: %w", k, err)
			}
		}
		return nil
	})
}

// Scan reads one page of live pairs under prefix.
func (e *Engine) Scan(ctx context.Context, prefix string, opts engine.ScanOptions) ([]engine.KV, error) {
	if !e.ready.Load() {
		return nil, engine.ErrClosed
	}
	p := []byte(prefix)
	now := time.Now()
	var out []engine.KV
	err := e.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(itemsBucket).Cursor()
		k, v := seek(c, p, opts)
		step := c.Next
		if opts.Reverse {
			step = c.Prev
		}

		for ; k != nil; k, v = step() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !bytes.HasPrefix(k, p) {
				break
			}
			val, live := engine.Open(v, now)
			if !live {
				continue
			}
			out = append(out, engine.KV{Key: string(k), Value: append([]byte(nil), val...)})
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// seek positions the cursor on the first pair of the page.
func seek(c *bolt.Cursor, prefix []byte, opts engine.ScanOptions) ([]byte, []byte) {
	if !opts.Reverse {
		if opts.After == "" {
			return c.Seek(prefix)
		}
		k, v := c.Seek([]byte(opts.After))
		if k != nil && string(k) == opts.After {
			return c.Next()
		}
		return k, v
	}

	bound := []byte(opts.After)
	if opts.After == "" {
		bound = engine.PrefixEnd(prefix)
	}
	if bound == nil {
		return c.Last()
	}
	if k, _ := c.Seek(bound); k == nil {
		return c.Last()
	}
	return c.Prev()
}

func (e *Engine) URL() string {
	return "bbolt://" + e.path
}

// DB exposes the underlying database.
func (e *Engine) DB() *bolt.DB {
	return e.db
}

func (e *Engine) Close() error {
	if !e.ready.CompareAndSwap(true, false) {
		return nil
	}
	e.janitor.Stop()
	e.logger.WithField("path", e.path).Info("Closing Bolt engine")
	return e.db.Close()
}

// sweep deletes every expired value.
func (e *Engine) sweep() {
	if !e.ready.Load() {
		return
	}
	now := time.Now()
	purged := 0
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(itemsBucket)
		var expired [][]byte
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if _, live := engine.Open(v, now); !live {
				expired = append(expired, append([]byte(nil), k...))
			}
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		purged = len(expired)
		return nil
	})
	if err != nil {
		e.logger.WithError(err).Warn("Failed to purge expired items")
		return
	}
	if purged > 0 {
		e.logger.WithField("count", purged).Debug("Purged expired items")
	}
}

var _ engine.Engine = (*Engine)(nil)
