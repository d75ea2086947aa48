// Package storage holds the image-store collaborator the report service
// writes uploads through. The core only depends on the ImageStore interface;
// MinIO is the production implementation.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ImageStore persists uploaded report images and returns a stable reference.
type ImageStore interface {
	Put(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error)
}

// MinioStore stores images in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// MinioOptions configures a MinioStore.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinioStore connects to the object store and ensures the bucket exists.
func NewMinioStore(ctx context.Context, opts MinioOptions, logger *zap.Logger) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connect: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}

	logger.Info("Connected to object storage",
		zap.String("endpoint", opts.Endpoint),
		zap.String("bucket", opts.Bucket))
	return &MinioStore{client: client, bucket: opts.Bucket, logger: logger}, nil
}

// Put uploads an image under a collision-free object name and returns its reference.
func (s *MinioStore) Put(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	object := uuid.NewString() + path.Ext(filename)
	_, err := s.client.PutObject(ctx, s.bucket, object, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", object, err)
	}
	return "/" + s.bucket + "/" + object, nil
}

// MemoryStore is an in-process ImageStore for tests.
type MemoryStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Objects: make(map[string][]byte)}
}

// Put stores the image bytes in memory.
func (s *MemoryStore) Put(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	ref := "/memory/" + uuid.NewString() + path.Ext(filename)
	s.mu.Lock()
	s.Objects[ref] = data
	s.mu.Unlock()
	return ref, nil
}
