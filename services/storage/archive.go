package storage

import (
	"context"
	"path"
	"path/filepath"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

// ArchivingBlobSink stores attachments through the wrapped sink and mirrors
// every stored file to object storage. A failed upload is logged and does
// not fail the store.
type ArchivingBlobSink struct {
	sink    interfaces.BlobSink
	storage interfaces.StorageService
	log     logger.Logger
}

func NewArchivingBlobSink(sink interfaces.BlobSink, storage interfaces.StorageService, log logger.Logger) *ArchivingBlobSink {
	return &ArchivingBlobSink{sink: sink, storage: storage, log: log}
}

var _ interfaces.BlobSink = (*ArchivingBlobSink)(nil)

func (s *ArchivingBlobSink) Reset(ctx context.Context, dir string) error {
	return s.sink.Reset(ctx, dir)
}

func (s *ArchivingBlobSink) Store(ctx context.Context, blob models.AttachmentBlob, dir string) (models.StoredFile, error) {
	stored, err := s.sink.Store(ctx, blob, dir)
	if err != nil {
		return stored, err
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "ArchivingBlobSink.Store")
	defer span.Finish()
	tracing.TagComponentService(span)

	key := ArchiveKey(stored)
	span.SetTag("key", key)
	if err := s.storage.Upload(ctx, key, blob.Content, blob.ContentType); err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("Failed to archive attachment %s as %s: %v", blob.Name, key, err)
	}
	return stored, nil
}

// ArchiveKey groups archived attachments by the UTC day of their item.
func ArchiveKey(stored models.StoredFile) string {
	return path.Join("attachments", stored.ItemTimestamp.UTC().Format("2006/01/02"), filepath.Base(stored.Path))
}
