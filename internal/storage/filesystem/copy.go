package filesystem

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/storekit/storekit/internal/storage"
)

// CopyItems copies the item file at from and its directory tree to to,
// replacing whatever was under to. Overlap checks rule out the root on
// either side.
func (s *Store[T]) CopyItems(ctx context.Context, from, to storage.Key) error {
	if done, err := storage.CheckCopyPrefixes(from, to); done || err != nil {
		return err
	}
	fromDir, toDir, err := s.copyPaths(from, to)
	if err != nil {
		return err
	}
	if err := s.ClearItems(ctx, to); err != nil {
		return err
	}

	if err := copyFile(fromDir+ItemExt, toDir+ItemExt); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storage.NewErrorWithCause("CopyItems", "Failed to copy item", err)
	}

	err = filepath.WalkDir(fromDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == fromDir {
				return filepath.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ItemExt) {
			return nil
		}
		rel, err := filepath.Rel(fromDir, path)
		if err != nil {
			return err
		}
		return copyFile(path, filepath.Join(toDir, rel))
	})
	if err != nil {
		return storage.NewErrorWithCause("CopyItems", "Failed to copy items", err)
	}

	s.logger.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Debug("Items copied")
	return nil
}

// MoveItems renames the item file and directory tree at from to to,
// replacing whatever was under to, then prunes emptied parents of from.
func (s *Store[T]) MoveItems(ctx context.Context, from, to storage.Key) error {
	if done, err := storage.CheckCopyPrefixes(from, to); done || err != nil {
		return err
	}
	fromDir, toDir, err := s.copyPaths(from, to)
	if err != nil {
		return err
	}
	if err := s.ClearItems(ctx, to); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(toDir), 0755); err != nil {
		return storage.NewErrorWithCause("MoveItems", "Failed to create directory", err)
	}

	if err := os.Rename(fromDir+ItemExt, toDir+ItemExt); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storage.NewErrorWithCause("MoveItems", "Failed to move item", err)
	}
	if err := os.Rename(fromDir, toDir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storage.NewErrorWithCause("MoveItems", "Failed to move items", err)
	}
	s.pruneEmptyDirs(filepath.Dir(fromDir))
	s.pruneEmptyDirs(filepath.Dir(toDir))

	s.logger.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Debug("Items moved")
	return nil
}

func (s *Store[T]) copyPaths(from, to storage.Key) (string, string, error) {
	fromDir, err := s.dirPath(from)
	if err != nil {
		return "", "", err
	}
	toDir, err := s.dirPath(to)
	if err != nil {
		return "", "", err
	}
	return fromDir, toDir, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return writeFileAtomic(dst, data)
}
