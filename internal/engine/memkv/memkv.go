// Package memkv implements engine.Engine on an in-process ordered map.
package memkv

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/google/uuid"

	"github.com/storekit/storekit/internal/engine"
)

// Engine keeps sealed values in a red-black tree keyed by string.
type Engine struct {
	mu     sync.RWMutex
	tree   *redblacktree.Tree
	id     string
	closed bool
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		tree: redblacktree.NewWithStringComparator(),
		id:   uuid.NewString(),
	}
}

func (e *Engine) Get(ctx context.Context, key string, c engine.Consistency) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, engine.ErrClosed
	}
	raw, ok := e.tree.Get(key)
	if !ok {
		return nil, engine.ErrNotFound
	}
	v, live := engine.Open(raw.([]byte), time.Now())
	if !live {
		return nil, engine.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (e *Engine) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrClosed
	}
	e.tree.Put(key, engine.Seal(value, ttl, time.Now()))
	return nil
}

func (e *Engine) Delete(ctx context.Context, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrClosed
	}
	e.tree.Remove(key)
	return nil
}

// Batch applies all writes and deletes under one lock.
func (e *Engine) Batch(ctx context.Context, sets map[string][]byte, deletes []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrClosed
	}
	now := time.Now()
	for k, v := range sets {
		e.tree.Put(k, engine.Seal(v, 0, now))
	}
	for _, k := range deletes {
		e.tree.Remove(k)
	}
	return nil
}

// Scan seeks to the prefix or cursor and walks the tree from there, so
// each page costs O(log n + page size).
func (e *Engine) Scan(ctx context.Context, prefix string, opts engine.ScanOptions) ([]engine.KV, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, engine.ErrClosed
	}

	var n *redblacktree.Node
	step := successor
	if opts.Reverse {
		step = predecessor
		end := engine.PrefixEnd([]byte(prefix))
		switch {
		case opts.After != "" && (end == nil || opts.After < string(end)):
			n = e.below(opts.After)
		case end != nil && prefix != "":
			n = e.below(string(end))
		default:
			n = e.tree.Right()
		}
	} else {
		if opts.After != "" && opts.After >= prefix {
			n = e.above(opts.After)
		} else {
			n, _ = e.tree.Ceiling(prefix)
		}
	}

	now := time.Now()
	var out []engine.KV
	for ; n != nil; n = step(n) {
		k := n.Key.(string)
		if !strings.HasPrefix(k, prefix) {
			break
		}
		v, live := engine.Open(n.Value.([]byte), now)
		if !live {
			continue
		}
		out = append(out, engine.KV{Key: k, Value: append([]byte(nil), v...)})
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

// above returns the first node with a key strictly greater than key.
func (e *Engine) above(key string) *redblacktree.Node {
	n, found := e.tree.Ceiling(key)
	if found && n.Key.(string) == key {
		return successor(n)
	}
	return n
}

// below returns the last node with a key strictly less than key.
func (e *Engine) below(key string) *redblacktree.Node {
	n, found := e.tree.Floor(key)
	if found && n.Key.(string) == key {
		return predecessor(n)
	}
	return n
}

func successor(n *redblacktree.Node) *redblacktree.Node {
	if n.Right != nil {
		n = n.Right
		for n.Left != nil {
			n = n.Left
		}
		return n
	}
	p := n.Parent
	for p != nil && n == p.Right {
		n, p = p, p.Parent
	}
	return p
}

func predecessor(n *redblacktree.Node) *redblacktree.Node {
	if n.Left != nil {
		n = n.Left
		for n.Right != nil {
			n = n.Right
		}
		return n
	}
	p := n.Parent
	for p != nil && n == p.Left {
		n, p = p, p.Parent
	}
	return p
}

func (e *Engine) URL() string {
	return "memory://" + e.id
}

// Close drops all data.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.tree.Clear()
	return nil
}

var _ engine.Engine = (*Engine)(nil)
