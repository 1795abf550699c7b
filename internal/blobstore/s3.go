package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stratumhq/stratum/internal/record/domain"
)

// S3Config connects an S3-compatible endpoint (AWS, MinIO, ...).
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// S3Store maps container to bucket and path to object key. Buckets are not
// created here; provisioning them is the operator's job.
type S3Store struct {
	client *minio.Client
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: s3 client: %v", domain.ErrStoreUnavailable, err)
	}
	return &S3Store{client: client}, nil
}

func (s *S3Store) Put(ctx context.Context, container, path string, data []byte, metadata map[string]string) (int64, error) {
	info, err := s.client.PutObject(ctx, container, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: metadata,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: s3 put %s: %v", domain.ErrStoreUnavailable, path, err)
	}
	return info.Size, nil
}

func (s *S3Store) Get(ctx context.Context, container, path string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, container, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(path, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapError(path, err)
	}
	return data, nil
}

func (s *S3Store) Delete(ctx context.Context, container, path string) error {
	err := s.client.RemoveObject(ctx, container, path, minio.RemoveObjectOptions{})
	if err != nil {
		mapped := s.mapError(path, err)
		if errors.Is(mapped, domain.ErrNotFound) {
			return nil
		}
		return mapped
	}
	return nil
}

func (s *S3Store) mapError(path string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey", "NoSuchBucket":
			return domain.ErrNotFound
		}
	}
	return fmt.Errorf("%w: s3 %s: %v", domain.ErrStoreUnavailable, path, err)
}
