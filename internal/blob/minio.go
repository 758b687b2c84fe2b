package blob

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Minio stores blobs as objects of one bucket keyed by blob id.
type Minio struct {
	client *minio.Client
	bucket string
	log    zerolog.Logger
}

func NewMinio(cfg MinioConfig, log zerolog.Logger) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Minio{client: client, bucket: cfg.Bucket, log: log.With().Str("component", "blob").Logger()}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (m *Minio) EnsureBucket(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if ok {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	return nil
}

func (m *Minio) WriteToFileSystem(ctx context.Context, ids []string, destPath string, alias map[string]string) error {
	var errs []error
	for _, id := range ids {
		if !validID(id) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidID, id))
			continue
		}
		dest := filepath.Join(destPath, targetName(id, alias))
		if err := m.client.FGetObject(ctx, m.bucket, id, dest, minio.GetObjectOptions{}); err != nil {
			m.log.Error().Err(err).Str("blob", id).Str("dest", dest).Msg("blob copy failed")
			errs = append(errs, fmt.Errorf("copy %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Minio) RemoveFile(ctx context.Context, id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if err := m.client.RemoveObject(ctx, m.bucket, id, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}
