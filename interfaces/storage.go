package interfaces

import (
	"context"

	"github.com/customeros/mailsync/internal/models"
)

// BlobSink persists attachments as files under a working directory. Reset
// clears the directory and is called once per run before the first Store.
type BlobSink interface {
	Reset(ctx context.Context, dir string) error
	Store(ctx context.Context, blob models.AttachmentBlob, dir string) (models.StoredFile, error)
}

type StorageService interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	GetPublicURL(key string) string
}
