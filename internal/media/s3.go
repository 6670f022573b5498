package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures the object-storage backend. PublicBaseURL is the
// prefix clients fetch objects from, typically a CDN in front of the bucket.
type S3Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// S3Store keeps uploads in an S3-compatible bucket.
type S3Store struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 endpoint and bucket required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check s3 bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create s3 bucket: %w", err)
		}
	}

	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}
	return &S3Store{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

func (s *S3Store) Upload(ctx context.Context, params UploadParams) (string, error) {
	ext, err := extensionFor(params.ContentType)
	if err != nil {
		return "", err
	}
	name, err := randomObjectName(ext)
	if err != nil {
		return "", err
	}
	key := strings.Trim(params.Kind, "/") + "/" + name

	_, err = s.client.PutObject(ctx, s.bucket, key, params.Reader, params.Size, minio.PutObjectOptions{
		ContentType: params.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload s3 object: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

func (s *S3Store) Remove(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return fmt.Errorf("url %q is not managed by this store", url)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove s3 object: %w", err)
	}
	return nil
}

var _ Store = (*S3Store)(nil)
