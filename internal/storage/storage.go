// Package storage provides the blob store used for key backups.
package storage

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// Bucket drivers selected by BACKUP_BUCKET_URL scheme.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	apperrors "github.com/allisson/e2ee/internal/errors"
)

// ErrBlobNotFound indicates no blob exists at the requested path.
var ErrBlobNotFound = apperrors.Wrap(apperrors.ErrNotFound, "blob not found")

// BlobStore is a flat path to bytes store.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Close() error
}

// BucketStore implements BlobStore over a gocloud.dev bucket.
type BucketStore struct {
	bucket *blob.Bucket
}

// OpenBucketStore opens the bucket at url, e.g. "file:///var/lib/e2ee/backups" or "mem://".
// For file:// buckets the directory is created when missing.
func OpenBucketStore(ctx context.Context, url string) (*BucketStore, error) {
	bucket, err := blob.OpenBucket(ctx, withCreateDir(url))
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	return &BucketStore{bucket: bucket}, nil
}

// NewBucketStore wraps an already opened bucket.
func NewBucketStore(bucket *blob.Bucket) *BucketStore {
	return &BucketStore{bucket: bucket}
}

// Put writes data at path, replacing any existing blob.
func (s *BucketStore) Put(ctx context.Context, path string, data []byte) error {
	opts := &blob.WriterOptions{ContentType: "application/json"}
	if err := s.bucket.WriteAll(ctx, path, data, opts); err != nil {
		return fmt.Errorf("failed to write blob %q: %w", path, err)
	}
	return nil
}

// Get reads the blob at path. Missing blobs return ErrBlobNotFound.
func (s *BucketStore) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, path)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read blob %q: %w", path, err)
	}
	return data, nil
}

// Exists reports whether a blob exists at path.
func (s *BucketStore) Exists(ctx context.Context, path string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, path)
	if err != nil {
		return false, fmt.Errorf("failed to stat blob %q: %w", path, err)
	}
	return ok, nil
}

// Close releases the bucket.
func (s *BucketStore) Close() error {
	return s.bucket.Close()
}
