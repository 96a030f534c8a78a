package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"proteinmap/pkg/utils"
)

// Images stores dish photos in an S3-compatible bucket.
type Images interface {
	Put(ctx context.Context, dishID string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

type MinioImages struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinioImages(ctx context.Context, cfg utils.StorageConfig) (*MinioImages, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
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

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
	}
	return &MinioImages{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// AllowedContentType reports whether ct is an accepted photo format.
func AllowedContentType(ct string) bool {
	_, ok := extensions[ct]
	return ok
}

// ObjectKey returns a fresh key under the dish's prefix.
func ObjectKey(dishID, contentType string) string {
	return path.Join("dishes", dishID, uuid.NewString()+extensions[contentType])
}

func (m *MinioImages) Put(ctx context.Context, dishID string, r io.Reader, size int64, contentType string) (string, error) {
	key := ObjectKey(dishID, contentType)
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

func (m *MinioImages) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func (m *MinioImages) URL(key string) string {
	if key == "" {
		return ""
	}
	return m.publicURL + "/" + key
}
