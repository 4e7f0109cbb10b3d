package relay

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures a MinioSink.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string

	// TLS overrides the client TLS configuration when UseSSL is set.
	TLS *tls.Config
}

// MinioSink uploads clips to an S3-compatible bucket.
type MinioSink struct {
	client   *minio.Client
	bucket   string
	region   string
	cameraID string
	logger   *slog.Logger
}

// NewMinioSink creates the client. It does not contact the server; call
// EnsureBucket for that.
func NewMinioSink(cfg S3Config, cameraID string, logger *slog.Logger) (*MinioSink, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("relay: s3 endpoint and bucket are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.UseSSL && cfg.TLS != nil {
		tr, err := minio.DefaultTransport(true)
		if err != nil {
			return nil, fmt.Errorf("relay: s3 transport: %w", err)
		}
		tr.TLSClientConfig = cfg.TLS
		opts.Transport = tr
	}

	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("relay: create s3 client: %w", err)
	}

	return &MinioSink{
		client:   client,
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		cameraID: cameraID,
		logger:   logger,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (m *MinioSink) EnsureBucket(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("relay: check bucket %s: %w", m.bucket, err)
	}
	if ok {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return fmt.Errorf("relay: create bucket %s: %w", m.bucket, err)
	}
	m.logger.Info("relay bucket created", "bucket", m.bucket)
	return nil
}

// PutVideo implements VideoSink.
func (m *MinioSink) PutVideo(ctx context.Context, name string, r io.Reader, size int64) error {
	key := ObjectKey(m.cameraID, name, newObjectID(time.Now()))
	info, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("relay: put %s: %w", key, err)
	}
	if info.Size != size {
		return fmt.Errorf("relay: put %s: stored %d of %d bytes", key, info.Size, size)
	}
	m.logger.Debug("clip uploaded", "object", key, "size", size)
	return nil
}
