package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/noah-isme/imgdrop/pkg/config"
)

const minioMetaSniffed = "Sniffed-Content-Type"

// MinioStore keeps artifacts as objects in an S3 compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the endpoint and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, cfg config.MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads the object with its sniffed content type.
func (s *MinioStore) Put(ctx context.Context, id string, data []byte, contentType string) error {
	if !validKey(id) {
		return ErrInvalidKey
	}
	meta := newMetadata(data, contentType)
	_, err := s.client.PutObject(ctx, s.bucket, id, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  meta.ContentType,
		UserMetadata: map[string]string{minioMetaSniffed: meta.ContentType},
	})
	if err != nil {
		return fmt.Errorf("minio put %s: %w", id, err)
	}
	return nil
}

// Get downloads the whole object.
func (s *MinioStore) Get(ctx context.Context, id string) ([]byte, error) {
	if !validKey(id) {
		return nil, ErrNotFound
	}
	obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(id, err)
	}
	defer obj.Close() //nolint:errcheck
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.translate(id, err)
	}
	return data, nil
}

// ContentTypeOf reads the object's stored content type.
func (s *MinioStore) ContentTypeOf(ctx context.Context, id string) (string, error) {
	if !validKey(id) {
		return "", ErrNotFound
	}
	info, err := s.client.StatObject(ctx, s.bucket, id, minio.StatObjectOptions{})
	if err != nil {
		return "", s.translate(id, err)
	}
	if sniffed := info.UserMetadata[minioMetaSniffed]; sniffed != "" {
		return sniffed, nil
	}
	if info.ContentType != "" {
		return info.ContentType, nil
	}
	data, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return SniffContentType(data), nil
}

// Delete removes the object; S3 deletes are already idempotent.
func (s *MinioStore) Delete(ctx context.Context, id string) error {
	if !validKey(id) {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, id, minio.RemoveObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return nil
		}
		return fmt.Errorf("minio delete %s: %w", id, err)
	}
	return nil
}

func (s *MinioStore) translate(id string, err error) error {
	if isMinioNotFound(err) {
		return ErrNotFound
	}
	return fmt.Errorf("minio read %s: %w", id, err)
}

func isMinioNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return true
	}
	return false
}
