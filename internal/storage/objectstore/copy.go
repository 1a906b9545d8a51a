package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/storekit/storekit/internal/storage"
)

// CopyItems copies objects server-side, replacing whatever was under to.
func (s *Store[T]) CopyItems(ctx context.Context, from, to storage.Key) error {
	if done, err := storage.CheckCopyPrefixes(from, to); done || err != nil {
		return err
	}
	if s.readOnly {
		return storage.ErrReadOnly
	}
	if err := s.ClearItems(ctx, to); err != nil {
		return err
	}

	fromItem, _ := s.objectKey(from)
	toItem, _ := s.objectKey(to)
	if err := s.copyObject(ctx, fromItem, toItem, true); err != nil {
		return err
	}

	fromPrefix, _ := s.descendantPrefix(from)
	toPrefix, _ := s.descendantPrefix(to)
	copied := 0
	for k, err := range s.objectKeys(ctx, fromPrefix, maxDeleteBatch) {
		if err != nil {
			return err
		}
		if err := s.copyObject(ctx, k, toPrefix+strings.TrimPrefix(k, fromPrefix), false); err != nil {
			return err
		}
		copied++
	}

	s.logger.WithFields(logrus.Fields{
		"from":    from.String(),
		"to":      to.String(),
		"objects": copied,
	}).Debug("Items copied")
	return nil
}

// MoveItems copies server-side, then clears the source.
func (s *Store[T]) MoveItems(ctx context.Context, from, to storage.Key) error {
	if done, err := storage.CheckCopyPrefixes(from, to); done || err != nil {
		return err
	}
	if err := s.CopyItems(ctx, from, to); err != nil {
		return err
	}
	return s.ClearItems(ctx, from)
}

// copyObject copies one object inside the bucket. With missingOK a
// missing source is not an error.
func (s *Store[T]) copyObject(ctx context.Context, src, dst string, missingOK bool) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(copySource(s.bucket, src)),
	})
	if missingOK && isNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to copy object %s: %w", src, err)
	}
	return nil
}

// copySource builds the URL-encoded "bucket/key" copy source.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return bucket + "/" + strings.Join(segments, "/")
}
