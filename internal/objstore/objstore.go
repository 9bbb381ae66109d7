// Package objstore stores uploaded and generated images in a gocloud.dev
// bucket. The bucket URL picks the backend: file://, mem:// or s3://.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/playperu/hiddencatch/internal/hiddencatch"
)

// ErrSigningUnsupported is returned by SignedURL when the backend cannot
// issue signed URLs (local and in-memory buckets).
var ErrSigningUnsupported = errors.New("signed urls not supported by bucket")

type Store struct {
	bk  *blob.Bucket
	ttl time.Duration
}

// Open opens the bucket at url. ttl is the default lifetime of signed URLs.
func Open(ctx context.Context, url string, ttl time.Duration) (*Store, error) {
	bk, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opening bucket %s: %w", url, err)
	}
	return New(bk, ttl), nil
}

func New(bk *blob.Bucket, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{bk: bk, ttl: ttl}
}

func (s *Store) Close() error {
	return s.bk.Close()
}

func sanitizeKey(key string) string {
	return strings.TrimLeft(key, "/")
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bk.ReadAll(ctx, sanitizeKey(key))
	if err != nil {
		return nil, classify(err, "reading", key)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	err := s.bk.WriteAll(ctx, sanitizeKey(key), data, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return classify(err, "writing", key)
	}
	return nil
}

// Attributes returns the stored content type and size of key.
func (s *Store) Attributes(ctx context.Context, key string) (contentType string, size int64, err error) {
	attrs, err := s.bk.Attributes(ctx, sanitizeKey(key))
	if err != nil {
		return "", 0, classify(err, "stat", key)
	}
	return attrs.ContentType, attrs.Size, nil
}

// SignedURL issues a URL granting method (GET or PUT) on key. A non-positive
// expiry uses the store default.
func (s *Store) SignedURL(ctx context.Context, key, method string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = s.ttl
	}
	u, err := s.bk.SignedURL(ctx, sanitizeKey(key), &blob.SignedURLOptions{Method: method, Expiry: expiry})
	if err != nil {
		if gcerrors.Code(err) == gcerrors.Unimplemented {
			return "", ErrSigningUnsupported
		}
		return "", classify(err, "signing", key)
	}
	return u, nil
}

// TTL is the default signed URL lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Check reports whether the bucket is reachable.
func (s *Store) Check(ctx context.Context) error {
	ok, err := s.bk.IsAccessible(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("bucket not accessible")
	}
	return nil
}

func classify(err error, op, key string) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%s %s: %w", op, key, hiddencatch.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w: %w", op, key, hiddencatch.ErrStorageFailed, err)
}
