// Package pebblekv implements engine.Engine on Pebble (CockroachDB's LSM
// engine).
package pebblekv

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/sirupsen/logrus"

	"github.com/storekit/storekit/internal/engine"
)

// DefaultSweepInterval is how often expired items are purged.
const DefaultSweepInterval = time.Minute

// Engine stores sealed values in a Pebble database.
type Engine struct {
	db        *pebble.DB
	path      string
	logger    *logrus.Logger
	ready     atomic.Bool
	writeOpts *pebble.WriteOptions
	janitor   *engine.Janitor
}

// Options contains configuration options for Engine
type Options struct {
	DataDir    string
	Logger     *logrus.Logger
	SyncWrites bool
	// SweepInterval controls the expired-item purge; negative disables it.
	SweepInterval time.Duration
}

// Open creates or opens a Pebble database in opts.DataDir.
func Open(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = DefaultSweepInterval
	}

	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pebble directory: %w", err)
	}

	cache := pebble.NewCache(64 << 20)
	defer cache.Unref()

	db, err := pebble.Open(opts.DataDir, &pebble.Options{
		Cache: cache,
		Levels: []pebble.LevelOptions{
			{Compression: pebble.SnappyCompression},
		},
		Logger: &pebbleLogger{logger: opts.Logger},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	e := &Engine{
		db:        db,
		path:      opts.DataDir,
		logger:    opts.Logger,
		writeOpts: pebble.NoSync,
	}
	if opts.SyncWrites {
		e.writeOpts = pebble.Sync
	}
	e.ready.Store(true)

	if opts.SweepInterval > 0 {
		e.janitor = engine.StartJanitor(opts.SweepInterval, e.sweep)
	}

	opts.Logger.WithField("path", opts.DataDir).Info("Pebble engine initialized")
	return e, nil
}

func (e *Engine) Get(ctx context.Context, key string, c engine.Consistency) ([]byte, error) {
	if !e.ready.Load() {
		return nil, engine.ErrClosed
	}
	val, closer, err := e.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close() //nolint:errcheck

	v, live := engine.Open(val, time.Now())
	if !live {
		return nil, engine.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (e *Engine) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !e.ready.Load() {
		return engine.ErrClosed
	}
	return e.db.Set([]byte(key), engine.Seal(value, ttl, time.Now()), e.writeOpts)
}

func (e *Engine) Delete(ctx context.Context, key string) error {
	if !e.ready.Load() {
		return engine.ErrClosed
	}
	return e.db.Delete([]byte(key), e.writeOpts)
}

// Batch applies writes and deletes atomically in a single Pebble batch.
func (e *Engine) Batch(ctx context.Context, sets map[string][]byte, deletes []string) error {
	if !e.ready.Load() {
		return engine.ErrClosed
	}
	batch := e.db.NewBatch()
	defer batch.Close() //nolint:errcheck

	now := time.Now()
	for k, v := range sets {
		if err := batch.Set([]byte(k), engine.Seal(v, 0, now), nil); err != nil {
			return fmt.Errorf("batch set %q: %w", k, err)
		}
	}
	for _, k := range deletes {
		if err := batch.Delete([]byte(k), nil); err != nil {
			return fmt.Errorf("batch delete %q: %w", k, err)
		}
	}
	return batch.Commit(e.writeOpts)
}

// Scan reads one page of live pairs under prefix.
func (e *Engine) Scan(ctx context.Context, prefix string, opts engine.ScanOptions) ([]engine.KV, error) {
	if !e.ready.Load() {
		return nil, engine.ErrClosed
	}
	lower := []byte(prefix)
	iter, err := e.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: engine.PrefixEnd(lower),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close() //nolint:errcheck

	var valid bool
	next := iter.Next
	switch {
	case opts.Reverse && opts.After != "":
		valid = iter.SeekLT([]byte(opts.After))
		next = iter.Prev
	case opts.Reverse:
		valid = iter.Last()
		next = iter.Prev
	case opts.After != "":
		valid = iter.SeekGE([]byte(opts.After))
		if valid && string(iter.Key()) == opts.After {
			valid = iter.Next()
		}
	default:
		valid = iter.First()
	}

	now := time.Now()
	var out []engine.KV
	for ; valid; valid = next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, live := engine.Open(iter.Value(), now)
		if !live {
			continue
		}
		valCopy := make([]byte, len(v))
		copy(valCopy, v)
		out = append(out, engine.KV{Key: string(iter.Key()), Value: valCopy})
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, iter.Error()
}

func (e *Engine) URL() string {
	return "pebble://" + e.path
}

// DB exposes the underlying database.
func (e *Engine) DB() *pebble.DB {
	return e.db
}

// Close stops the sweeper and closes the database.
func (e *Engine) Close() error {
	if !e.ready.CompareAndSwap(true, false) {
		return nil
	}
	e.janitor.Stop()
	e.logger.WithField("path", e.path).Info("Closing Pebble engine")
	return e.db.Close()
}

// sweep deletes every expired value.
func (e *Engine) sweep() {
	if !e.ready.Load() {
		return
	}
	iter, err := e.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		e.logger.WithError(err).Warn("Failed to create iterator for expiry sweep")
		return
	}

	now := time.Now()
	var expired []string
	for valid := iter.First(); valid; valid = iter.Next() {
		if _, live := engine.Open(iter.Value(), now); !live {
			expired = append(expired, string(iter.Key()))
		}
	}
	if err := iter.Close(); err != nil {
		e.logger.WithError(err).Warn("Expiry sweep iterator failed")
		return
	}
	if len(expired) == 0 {
		return
	}
	if err := e.Batch(context.Background(), nil, expired); err != nil {
		e.logger.WithError(err).Warn("Failed to purge expired items")
		return
	}
	e.logger.WithField("count", len(expired)).Debug("Purged expired items")
}

// pebbleLogger adapts logrus to pebble's Logger interface (Infof + Fatalf).
type pebbleLogger struct {
	logger *logrus.Logger
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[Pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf("[Pebble] "+format, args...)
}

var _ engine.Engine = (*Engine)(nil)
