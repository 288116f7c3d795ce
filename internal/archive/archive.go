// Package archive provides optional off-box mirroring of finished artifacts
// to an S3-compatible object store.
package archive

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/audiofetch/audiofetch/internal/config"
)

// Mirror uploads completed MP3 artifacts to a bucket. Uploads are
// best-effort: a failed mirror never fails the download job.
type Mirror struct {
	client *minio.Client
	bucket string
}

// NewFromConfig builds a Mirror from configuration. Returns (nil, nil) when
// no archive endpoint is configured, which disables mirroring.
func NewFromConfig(cfg *config.Config) (*Mirror, error) {
	if cfg.ArchiveEndpoint == "" {
		return nil, nil
	}

	if cfg.ArchiveAccessKey == "" || cfg.ArchiveSecretKey == "" {
		return nil, fmt.Errorf("ARCHIVE_ACCESS_KEY and ARCHIVE_SECRET_KEY are required when ARCHIVE_ENDPOINT is set")
	}

	u, err := url.Parse(cfg.ArchiveEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid ARCHIVE_ENDPOINT '%s': %w (expected format: https://hostname:port)", cfg.ArchiveEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid ARCHIVE_ENDPOINT scheme '%s': must be http or https", u.Scheme)
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, ""),
		Secure: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create archive client: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"endpoint": u.Host,
		"bucket":   cfg.ArchiveBucket,
	}).Info("Artifact archive enabled")

	return &Mirror{client: client, bucket: cfg.ArchiveBucket}, nil
}

// Upload mirrors the artifact at path to the configured bucket, keyed by
// its base filename.
func (m *Mirror) Upload(ctx context.Context, path string) error {
	objectName := filepath.Base(path)

	info, err := m.client.FPutObject(ctx, m.bucket, objectName, path, minio.PutObjectOptions{
		ContentType: "audio/mpeg",
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact %s: %w", objectName, err)
	}

	logrus.WithFields(logrus.Fields{
		"object": objectName,
		"size":   info.Size,
	}).Debug("Mirrored artifact to archive")

	return nil
}
