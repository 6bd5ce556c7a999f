package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/storage"
)

// DefaultBucket is used when Config.Bucket is empty.
const DefaultBucket = "docpipe-raw"

// ErrMissingEndpoint indicates the archive was configured without an endpoint.
var ErrMissingEndpoint = errors.New("minio endpoint is required")

// Config holds connection settings for the raw archive.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (c Config) bucket() string {
	if b := strings.TrimSpace(c.Bucket); b != "" {
		return b
	}
	return DefaultBucket
}

// Validate checks that the config can produce a client.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return ErrMissingEndpoint
	}
	return nil
}

// Archive implements storage.Archive on a MinIO or S3 compatible bucket.
type Archive struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

var _ storage.Archive = (*Archive)(nil)

// Option configures an Archive.
type Option func(*Archive) error

// WithLogger sets the logger. If nil, uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// NewArchive connects to the configured endpoint and creates the bucket if needed.
func NewArchive(ctx context.Context, cfg Config, opts ...Option) (storage.Archive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(strings.TrimSpace(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	a := &Archive{
		client: client,
		bucket: cfg.bucket(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "archive", "bucket", a.bucket)

	exists, err := client.BucketExists(ctx, a.bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: check bucket: %w", storage.ErrStoreUnavailable, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%w: create bucket: %w", storage.ErrStoreUnavailable, err)
		}
		a.logger.Info("created archive bucket")
	}
	return a, nil
}

// Put uploads data unless the fingerprint is already archived.
func (a *Archive) Put(ctx context.Context, fp core.Fingerprint, data io.Reader, size int64, contentType string) error {
	exists, err := a.Exists(ctx, fp)
	if err != nil {
		return err
	}
	if exists {
		a.logger.Debug("raw document already archived", "fingerprint", fp.Short())
		return nil
	}

	key := storage.ArchiveKey(fp)
	info, err := a.client.PutObject(ctx, a.bucket, key, data, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", storage.ErrStoreUnavailable, key, err)
	}
	a.logger.Debug("archived raw document", "fingerprint", fp.Short(), "size", info.Size)
	return nil
}

// Exists reports whether the raw bytes for fp are archived.
func (a *Archive) Exists(ctx context.Context, fp core.Fingerprint) (bool, error) {
	_, err := a.client.StatObject(ctx, a.bucket, storage.ArchiveKey(fp), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat: %w", storage.ErrStoreUnavailable, err)
}
