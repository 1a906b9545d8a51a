// Package objectstore implements the storage module contract on an
// S3-compatible bucket, one JSON object per item.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/storekit/storekit/internal/storage"
)

// objectExt is appended to every item object key.
const objectExt = ".json"

// maxDeleteBatch is the S3 limit on keys per DeleteObjects call.
const maxDeleteBatch = 1000

// API is the subset of *s3.Client used by Store (for testing)
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ClientConfig describes an S3-compatible endpoint.
type ClientConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewClient creates an S3 client for an S3-compatible endpoint using
// path-style addressing.
func NewClient(cfg ClientConfig) *s3.Client {
	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true // Use path-style URLs for compatibility
	})
}

// Options configures a Store.
type Options[T any] struct {
	Client API
	Bucket string
	// Prefix is prepended to every object key.
	Prefix   string
	ReadOnly bool
	Codec    storage.Codec[T]
	Logger   *logrus.Logger
}

// Store keeps items as objects in a bucket.
type Store[T any] struct {
	client   API
	bucket   string
	prefix   string
	readOnly bool
	codec    storage.Codec[T]
	logger   *logrus.Logger
}

// New creates a Store.
func New[T any](opts Options[T]) (*Store[T], error) {
	if opts.Client == nil || opts.Bucket == "" {
		return nil, storage.NewError(storage.ErrNotConfigured.Code, "Object store client and bucket are required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Store[T]{
		client:   opts.Client,
		bucket:   opts.Bucket,
		prefix:   strings.Trim(opts.Prefix, "/"),
		readOnly: opts.ReadOnly,
		codec:    storage.CodecOrDefault(opts.Codec),
		logger:   opts.Logger,
	}, nil
}

func (s *Store[T]) URL(ctx context.Context) (string, error) {
	return (&url.URL{Scheme: "s3", Host: s.bucket, Path: "/" + s.prefix}).String(), nil
}

func (s *Store[T]) IsWritable(ctx context.Context, key storage.Key) (bool, error) {
	return !s.readOnly, nil
}

func (s *Store[T]) HasItem(ctx context.Context, key storage.Key) (bool, error) {
	if key.IsRoot() {
		return false, nil
	}
	k, err := s.objectKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to head object: %w", err)
	}
	return true, nil
}

func (s *Store[T]) GetItem(ctx context.Context, key storage.Key) (T, bool, error) {
	var zero T
	if key.IsRoot() {
		return zero, false, nil
	}
	k, err := s.objectKey(key)
	if err != nil {
		return zero, false, err
	}
	return s.get(ctx, k)
}

// SetItem uploads the serialized value. ExpireIn is ignored; bucket
// lifecycle rules are the place for expiry.
func (s *Store[T]) SetItem(ctx context.Context, key storage.Key, value T, opts ...storage.SetOption) error {
	if key.IsRoot() {
		return storage.NewError(storage.ErrInvalidKey.Code, "The root key cannot hold an item")
	}
	if s.readOnly {
		return storage.ErrReadOnly
	}
	k, err := s.objectKey(key)
	if err != nil {
		return err
	}
	data, err := s.codec.Marshal(value)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(k),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"bucket": s.bucket,
		"key":    k,
	}).Debug("Item uploaded")
	return nil
}

func (s *Store[T]) RemoveItem(ctx context.Context, key storage.Key) error {
	if key.IsRoot() {
		return nil
	}
	if s.readOnly {
		return storage.ErrReadOnly
	}
	k, err := s.objectKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// ListItems pages through ListObjectsV2. Buckets list in ascending order
// only, so a reversed listing gathers all keys first.
func (s *Store[T]) ListItems(ctx context.Context, prefix storage.Key, opts ...storage.ListOption) iter.Seq2[storage.Entry[T], error] {
	p, err := s.descendantPrefix(prefix)
	if err != nil {
		return storage.ErrSeq[T](err)
	}
	o := storage.ApplyListOptions(opts...)

	return func(yield func(storage.Entry[T], error) bool) {
		emit := func(k string) bool {
			v, ok, err := s.get(ctx, k)
			if err != nil {
				yield(storage.Entry[T]{}, err)
				return false
			}
			if !ok {
				return true
			}
			return yield(storage.Entry[T]{Key: s.decodeObjectKey(k), Value: v}, nil)
		}

		var gathered []string
		for k, err := range s.objectKeys(ctx, p, o.PageSize) {
			if err != nil {
				yield(storage.Entry[T]{}, err)
				return
			}
			if o.Reverse {
				gathered = append(gathered, k)
				continue
			}
			if !emit(k) {
				return
			}
		}
		slices.Reverse(gathered)
		for _, k := range gathered {
			if !emit(k) {
				return
			}
		}
	}
}

// ClearItems deletes the item at prefix and every descendant with batched
// DeleteObjects calls.
func (s *Store[T]) ClearItems(ctx context.Context, prefix storage.Key) error {
	if s.readOnly {
		return storage.ErrReadOnly
	}
	p, err := s.descendantPrefix(prefix)
	if err != nil {
		return err
	}

	var batch []types.ObjectIdentifier
	if !prefix.IsRoot() {
		self, _ := s.objectKey(prefix)
		batch = append(batch, types.ObjectIdentifier{Key: aws.String(self)})
	}
	for k, err := range s.objectKeys(ctx, p, maxDeleteBatch) {
		if err != nil {
			return err
		}
		batch = append(batch, types.ObjectIdentifier{Key: aws.String(k)})
		if len(batch) == maxDeleteBatch {
			if err := s.deleteBatch(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return s.deleteBatch(ctx, batch)
}

// Close releases nothing; the client is shared.
func (s *Store[T]) Close() error {
	return nil
}

func (s *Store[T]) deleteBatch(ctx context.Context, batch []types.ObjectIdentifier) error {
	if len(batch) == 0 {
		return nil
	}
	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to delete objects: %w", err)
	}
	if len(out.Errors) > 0 {
		e := out.Errors[0]
		return fmt.Errorf("failed to delete %d objects, first %s: %s",
			len(out.Errors), aws.ToString(e.Key), aws.ToString(e.Message))
	}
	return nil
}

func (s *Store[T]) get(ctx context.Context, k string) (T, bool, error) {
	var zero T
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
	})
	if isNotFound(err) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return zero, false, fmt.Errorf("failed to read object: %w", err)
	}
	v, err := s.codec.Unmarshal(data)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// objectKeys yields the keys of item objects under p in ascending order.
func (s *Store[T]) objectKeys(ctx context.Context, p string, pageSize int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket:  aws.String(s.bucket),
			Prefix:  aws.String(p),
			MaxKeys: aws.Int32(int32(min(pageSize, maxDeleteBatch))),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield("", fmt.Errorf("failed to list objects: %w", err))
				return
			}
			for _, obj := range page.Contents {
				k := aws.ToString(obj.Key)
				if !strings.HasSuffix(k, objectExt) {
					continue
				}
				if !yield(k, nil) {
					return
				}
			}
		}
	}
}

// objectKey returns [<prefix>/]<path>.json.
func (s *Store[T]) objectKey(key storage.Key) (string, error) {
	path, err := storage.EncodePath(key)
	if err != nil {
		return "", err
	}
	return s.join(path) + objectExt, nil
}

// descendantPrefix returns the object key prefix shared by all descendants.
func (s *Store[T]) descendantPrefix(key storage.Key) (string, error) {
	path, err := storage.EncodePath(key)
	if err != nil {
		return "", err
	}
	p := s.join(path)
	if p == "" {
		return "", nil
	}
	return p + "/", nil
}

func (s *Store[T]) decodeObjectKey(k string) storage.Key {
	k = strings.TrimSuffix(k, objectExt)
	if s.prefix != "" {
		k = strings.TrimPrefix(k, s.prefix+"/")
	}
	return storage.DecodePath(k)
}

func (s *Store[T]) join(path string) string {
	switch {
	case s.prefix == "":
		return path
	case path == "":
		return s.prefix
	default:
		return s.prefix + "/" + path
	}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

var (
	_ storage.Module[any] = (*Store[any])(nil)
	_ storage.Copier      = (*Store[any])(nil)
	_ storage.Mover       = (*Store[any])(nil)
)
