package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"attendance/internal/config"
)

// PhotoStore keeps attendance photos in an S3-compatible bucket.
type PhotoStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewPhotoStore connects to the MinIO endpoint from cfg.
func NewPhotoStore(cfg config.StorageConfig, logger *slog.Logger) (*PhotoStore, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("missing one or more required settings: MINIO_ENDPOINT, MINIO_ACCESS_KEY, MINIO_SECRET_KEY")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	logger.Info("connected to MinIO endpoint", "endpoint", cfg.Endpoint, "bucket", cfg.PhotoBucket)
	return &PhotoStore{client: client, bucket: cfg.PhotoBucket, logger: logger}, nil
}

// EnsureBucket creates the photo bucket when it is missing.
func (s *PhotoStore) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("error checking bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put stores data under key. An existing object is left untouched.
func (s *PhotoStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		s.logger.Info("photo already stored, skipping write", "key", key)
		return nil
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("failed to check for existing object: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to store photo: %w", err)
	}
	s.logger.Debug("stored attendance photo", "key", key, "bytes", len(data))
	return nil
}

// Delete removes the object under key. A missing object is not an error.
func (s *PhotoStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove photo: %w", err)
	}
	s.logger.Debug("removed attendance photo", "key", key)
	return nil
}

// Open streams a stored photo. The caller closes the returned reader.
func (s *PhotoStore) Open(ctx context.Context, key string) (io.ReadCloser, minio.ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, minio.ObjectInfo{}, fmt.Errorf("failed to get photo: %w", err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, minio.ObjectInfo{}, fmt.Errorf("failed to stat photo: %w", err)
	}
	return obj, info, nil
}
