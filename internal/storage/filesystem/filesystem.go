// Package filesystem stores each item as a JSON file under a root
// directory, one directory level per key component.
package filesystem

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/storekit/storekit/internal/storage"
)

// ItemExt is the file extension of stored items.
const ItemExt = ".json"

// nameMark is appended to directory names that would otherwise end in
// ItemExt and collide with a sibling item file.
const nameMark = "~"

// Options configures a Store.
type Options[T any] struct {
	Root  string
	Codec storage.Codec[T]
	// Sandboxed marks a deployment where the filesystem is read-only no
	// matter what the permission bits say.
	Sandboxed bool
	Logger    *logrus.Logger
}

// Store implements storage.Module on a directory tree.
type Store[T any] struct {
	rootPath  string
	codec     storage.Codec[T]
	sandboxed bool
	logger    *logrus.Logger
}

// New creates a filesystem store. The root directory is created lazily on
// the first write.
func New[T any](opts Options[T]) (*Store[T], error) {
	if opts.Root == "" {
		return nil, storage.NewError(storage.ErrNotConfigured.Code, "Filesystem root is not set")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, storage.NewErrorWithCause("InvalidRoot", "Failed to resolve root directory", err)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Store[T]{
		rootPath:  root,
		codec:     storage.CodecOrDefault(opts.Codec),
		sandboxed: opts.Sandboxed,
		logger:    opts.Logger,
	}, nil
}

// Root returns the absolute root directory.
func (s *Store[T]) Root() string {
	return s.rootPath
}

func (s *Store[T]) URL(ctx context.Context) (string, error) {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(s.rootPath)}).String(), nil
}

// IsWritable checks write permission on the nearest existing directory at
// or above the one that holds the item file. The root key checks the root.
func (s *Store[T]) IsWritable(ctx context.Context, key storage.Key) (bool, error) {
	if s.sandboxed {
		return false, nil
	}
	path, err := s.dirPath(key)
	if err != nil {
		return false, err
	}
	if !key.IsRoot() {
		path = filepath.Dir(path)
	}

	for {
		if _, err := os.Stat(path); err == nil {
			return writable(path), nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
		parent := filepath.Dir(path)
		if parent == path {
			return false, nil
		}
		path = parent
	}
}

func (s *Store[T]) HasItem(ctx context.Context, key storage.Key) (bool, error) {
	if key.IsRoot() {
		return false, nil
	}
	path, err := s.itemPath(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (s *Store[T]) GetItem(ctx context.Context, key storage.Key) (T, bool, error) {
	var zero T
	if key.IsRoot() {
		return zero, false, nil
	}
	path, err := s.itemPath(key)
	if err != nil {
		return zero, false, err
	}
	return s.readItem(path)
}

// SetItem writes the item through a temporary file and an atomic rename.
// ExpireIn is not supported and ignored.
func (s *Store[T]) SetItem(ctx context.Context, key storage.Key, value T, opts ...storage.SetOption) error {
	if key.IsRoot() {
		return storage.NewError(storage.ErrInvalidKey.Code, "The root key cannot hold an item")
	}
	path, err := s.itemPath(key)
	if err != nil {
		return err
	}
	data, err := s.codec.Marshal(value)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return storage.NewErrorWithCause("WriteItem", "Failed to write item", err)
	}

	s.logger.WithField("key", key.String()).Debug("Item written")
	return nil
}

// RemoveItem deletes the item file and prunes directories left empty,
// stopping at the root.
func (s *Store[T]) RemoveItem(ctx context.Context, key storage.Key) error {
	if key.IsRoot() {
		return nil
	}
	path, err := s.itemPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return storage.NewErrorWithCause("RemoveItem", "Failed to remove item", err)
	}
	s.pruneEmptyDirs(filepath.Dir(path))
	return nil
}

// ListItems walks the directory below prefix in key order.
func (s *Store[T]) ListItems(ctx context.Context, prefix storage.Key, opts ...storage.ListOption) iter.Seq2[storage.Entry[T], error] {
	dir, err := s.dirPath(prefix)
	if err != nil {
		return storage.ErrSeq[T](err)
	}
	parts, _ := storage.EncodeParts(prefix)
	o := storage.ApplyListOptions(opts...)

	return func(yield func(storage.Entry[T], error) bool) {
		s.walk(ctx, dir, parts, o.Reverse, yield)
	}
}

// ClearItems removes the item at prefix and the directory holding its
// descendants. Clearing the root empties it but keeps the directory.
func (s *Store[T]) ClearItems(ctx context.Context, prefix storage.Key) error {
	dir, err := s.dirPath(prefix)
	if err != nil {
		return err
	}

	if prefix.IsRoot() {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				return storage.NewErrorWithCause("ClearItems", "Failed to clear items", err)
			}
		}
		return nil
	}

	if err := os.Remove(dir + ItemExt); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storage.NewErrorWithCause("ClearItems", "Failed to remove item", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return storage.NewErrorWithCause("ClearItems", "Failed to clear items", err)
	}
	s.pruneEmptyDirs(filepath.Dir(dir))
	return nil
}

// Close releases nothing; the store holds no open handles.
func (s *Store[T]) Close() error {
	return nil
}

// itemPath returns <root>/<parts...>.json.
func (s *Store[T]) itemPath(key storage.Key) (string, error) {
	dir, err := s.dirPath(key)
	if err != nil {
		return "", err
	}
	return dir + ItemExt, nil
}

// dirPath returns <root>/<names...>, the directory holding descendants.
func (s *Store[T]) dirPath(key storage.Key) (string, error) {
	parts, err := storage.EncodeParts(key)
	if err != nil {
		return "", err
	}
	elems := make([]string, 0, len(parts)+1)
	elems = append(elems, s.rootPath)
	for _, p := range parts {
		elems = append(elems, encodeName(p))
	}
	return filepath.Join(elems...), nil
}

// needsMark reports whether part, ignoring trailing marks, ends in ItemExt.
func needsMark(part string) bool {
	return strings.HasSuffix(strings.TrimRight(part, nameMark), ItemExt)
}

// encodeName maps an encoded key component to its file name. No directory
// name ends in ItemExt, so directories and item files never collide.
func encodeName(part string) string {
	if needsMark(part) {
		return part + nameMark
	}
	return part
}

// decodeName reverses encodeName.
func decodeName(name string) string {
	if needsMark(name) && strings.HasSuffix(name, nameMark) {
		return strings.TrimSuffix(name, nameMark)
	}
	return name
}

func (s *Store[T]) readItem(path string) (T, bool, error) {
	var zero T
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	v, err := s.codec.Unmarshal(data)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// walk yields every item below dir. Names are visited in sorted order; an
// item comes before its descendants, or after them when reversed.
func (s *Store[T]) walk(ctx context.Context, dir string, parts []string, reverse bool, yield func(storage.Entry[T], error) bool) bool {
	if err := ctx.Err(); err != nil {
		yield(storage.Entry[T]{}, err)
		return false
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	if err != nil {
		yield(storage.Entry[T]{}, err)
		return false
	}

	type node struct{ item, dir bool }
	nodes := make(map[string]*node)
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir():
		case e.Type().IsRegular() && strings.HasSuffix(name, ItemExt):
			name = strings.TrimSuffix(name, ItemExt)
		default:
			continue
		}
		n, ok := nodes[name]
		if !ok {
			n = &node{}
			nodes[name] = n
		}
		if e.IsDir() {
			n.dir = true
		} else {
			n.item = true
		}
	}

	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(decodeName(a), decodeName(b))
	})
	if reverse {
		slices.Reverse(names)
	}

	for _, name := range names {
		n := nodes[name]
		childParts := append(slices.Clone(parts), decodeName(name))
		if n.dir && reverse {
			if !s.walk(ctx, filepath.Join(dir, name), childParts, reverse, yield) {
				return false
			}
		}
		if n.item {
			v, ok, err := s.readItem(filepath.Join(dir, name+ItemExt))
			if err != nil {
				yield(storage.Entry[T]{}, err)
				return false
			}
			if ok && !yield(storage.Entry[T]{Key: storage.DecodeParts(childParts), Value: v}, nil) {
				return false
			}
		}
		if n.dir && !reverse {
			if !s.walk(ctx, filepath.Join(dir, name), childParts, reverse, yield) {
				return false
			}
		}
	}
	return true
}

// pruneEmptyDirs removes dir and its ancestors while they are empty,
// never touching the root itself.
func (s *Store[T]) pruneEmptyDirs(dir string) {
	for dir != s.rootPath && strings.HasPrefix(dir, s.rootPath+string(filepath.Separator)) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	var (
		tempFile *os.File
		err      error
	)
	// A concurrent prune may remove dir between MkdirAll and CreateTemp.
	for attempt := 0; attempt < 3; attempt++ {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		tempFile, err = os.CreateTemp(dir, ".tmp_")
		if !errors.Is(err, fs.ErrNotExist) {
			break
		}
	}
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	if _, err := tempFile.Write(data); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	return os.Rename(tempFile.Name(), path)
}

var (
	_ storage.Module[any] = (*Store[any])(nil)
	_ storage.Copier      = (*Store[any])(nil)
	_ storage.Mover       = (*Store[any])(nil)
)
