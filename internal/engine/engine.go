// Package engine defines the ordered key-value engines behind the kv
// storage backend.
package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("engine: key not found")
	ErrClosed   = errors.New("engine: closed")
)

// Consistency selects how fresh a point read must be. Embedded engines
// always read their own writes; the level matters for replicated engines.
type Consistency int

const (
	Strong Consistency = iota
	Eventual
)

// KV is one scanned pair. Both fields are copies owned by the caller.
type KV struct {
	Key   string
	Value []byte
}

// ScanOptions bounds a prefix scan.
type ScanOptions struct {
	// After is an exclusive cursor: the scan resumes past it in scan
	// direction. Empty starts at the first (or, reversed, the last) key.
	After   string
	Reverse bool
	// Limit caps the number of pairs returned; zero means unlimited.
	Limit int
}

// Engine is an ordered byte-keyed store with prefix scans and atomic
// batches. Keys compare as raw bytes.
type Engine interface {
	// Get returns ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, key string, c Consistency) ([]byte, error)
	// Put writes a value; a positive ttl expires it.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Scan returns one page of live pairs whose key starts with prefix.
	Scan(ctx context.Context, prefix string, opts ScanOptions) ([]KV, error)
	// Batch applies writes and deletes atomically.
	Batch(ctx context.Context, sets map[string][]byte, deletes []string) error
	URL() string
	Close() error
}

// PrefixEnd returns the exclusive upper bound for a prefix scan.
// It increments the last byte of the prefix; returns nil if all bytes overflow.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // all bytes overflowed, no upper bound
}

// envelopeSize is the length of the expiry header written by Seal.
const envelopeSize = 8

// Seal prefixes value with its expiry deadline in unix nanoseconds, zero
// meaning never. Engines without native TTL store sealed values.
func Seal(value []byte, ttl time.Duration, now time.Time) []byte {
	out := make([]byte, envelopeSize+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(out, uint64(now.Add(ttl).UnixNano()))
	}
	copy(out[envelopeSize:], value)
	return out
}

// Open strips the expiry header. live is false when the value expired or the
// envelope is malformed.
func Open(sealed []byte, now time.Time) (value []byte, live bool) {
	if len(sealed) < envelopeSize {
		return nil, false
	}
	deadline := binary.BigEndian.Uint64(sealed)
	if deadline != 0 && int64(deadline) <= now.UnixNano() {
		return nil, false
	}
	return sealed[envelopeSize:], true
}

// Janitor periodically runs a sweep function until stopped.
type Janitor struct {
	stopCh chan struct{}
	done   chan struct{}
}

// StartJanitor runs sweep every interval in a background goroutine.
func StartJanitor(interval time.Duration, sweep func()) *Janitor {
	j := &Janitor{stopCh: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(j.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-j.stopCh:
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()
	return j
}

// Stop ends the janitor and waits for a running sweep to finish. It is safe
// on a nil Janitor.
func (j *Janitor) Stop() {
	if j == nil {
		return
	}
	close(j.stopCh)
	<-j.done
}
