package storage

import (
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/services/storage/aws_client"
)

// NewArchiveStorageService creates the StorageService attachments are
// mirrored to. Cloudflare R2 is used when an account id is configured,
// otherwise AWS S3 or the configured S3-compatible endpoint.
func NewArchiveStorageService(cfg *config.ArchiveConfig) (interfaces.StorageService, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}

	awsCfg := aws_client.NewS3Config(cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if cfg.R2AccountID != "" {
		awsCfg = aws_client.NewR2Config(cfg.R2AccountID, cfg.AccessKeyID, cfg.AccessKeySecret)
	}

	client, err := aws_client.NewS3Client(awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create archive client")
	}

	return NewStorageService(client, StorageConfig{BucketName: cfg.Bucket}), nil
}
