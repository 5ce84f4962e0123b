package artifact

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const (
	defaultBucket      = "reports"
	defaultContentType = "text/plain; charset=utf-8"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	contentType     string
	useSSL          bool
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		bucket:      defaultBucket,
		contentType: defaultContentType,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

type minioStorage struct {
	cfg    *minioConfig
	client *minio.Client
}

// NewMinioStorage keeps artifacts as objects of an S3 compatible bucket, created on first use.
func NewMinioStorage(ctx context.Context, opts ...MinioOpts) (Storage, error) {
	cfg := newConfig(opts...)
	if cfg.endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint required")
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.bucket, err)
		}
		zap.S().Named("artifact").Infof("created bucket %s", cfg.bucket)
	}

	return &minioStorage{cfg: cfg, client: client}, nil
}

func (s *minioStorage) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.cfg.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: s.cfg.contentType,
	})
	return err
}

func (s *minioStorage) Get(ctx context.Context, key string, dst io.Writer) error {
	object, err := s.client.GetObject(ctx, s.cfg.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return translate(err)
	}
	defer object.Close()

	objInfo, err := object.Stat()
	if err != nil {
		return translate(err)
	}

	n, err := io.Copy(dst, object)
	if err != nil {
		return err
	}
	if n != objInfo.Size {
		return fmt.Errorf("failed to read the entire artifact. expected bytes %d received %d", objInfo.Size, n)
	}
	return nil
}

func (s *minioStorage) Delete(ctx context.Context, key string) error {
	return translateDelete(s.client.RemoveObject(ctx, s.cfg.bucket, key, minio.RemoveObjectOptions{}))
}

func (s *minioStorage) Type() string {
	return "minio"
}

func translate(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}

func translateDelete(err error) error {
	if err == nil || minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return nil
	}
	return err
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		if bucket != "" {
			c.bucket = bucket
		}
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}

func WithContentType(contentType string) MinioOpts {
	return func(c *minioConfig) {
		c.contentType = contentType
	}
}
