package localstore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Area is a flat string-to-string storage area in the manner of the
// browser Web Storage API.
type Area interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	// Keys returns every key starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	URL() string
	Close() error
}

// MemoryArea keeps entries in a map for the life of the process.
type MemoryArea struct {
	mu    sync.RWMutex
	items map[string]string
	id    string
}

// NewMemoryArea creates an empty in-memory area.
func NewMemoryArea() *MemoryArea {
	return &MemoryArea{items: make(map[string]string), id: uuid.NewString()}
}

func (a *MemoryArea) Get(ctx context.Context, key string) (string, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.items[key]
	return v, ok, nil
}

func (a *MemoryArea) Set(ctx context.Context, key, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items[key] = value
	return nil
}

func (a *MemoryArea) Remove(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.items, key)
	return nil
}

func (a *MemoryArea) Keys(ctx context.Context, prefix string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var keys []string
	for k := range a.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (a *MemoryArea) URL() string {
	return "localstore://memory/" + a.id
}

func (a *MemoryArea) Close() error {
	return nil
}

var _ Area = (*MemoryArea)(nil)
