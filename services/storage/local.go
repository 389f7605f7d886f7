package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

// LocalBlobSink writes attachments into a local directory. File names are
// {item timestamp}_{sanitized base}_{counter}{ext}; the counter restarts on
// Reset, so two attachments with the same name never overwrite each other.
type LocalBlobSink struct {
	log     logger.Logger
	counter int
}

func NewLocalBlobSink(log logger.Logger) *LocalBlobSink {
	return &LocalBlobSink{log: log}
}

var _ interfaces.BlobSink = (*LocalBlobSink)(nil)

// Reset empties dir, creating it when missing.
func (s *LocalBlobSink) Reset(ctx context.Context, dir string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "LocalBlobSink.Reset")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("dir", dir)

	s.counter = 0

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(os.MkdirAll(dir, 0o755), "failed to create download directory")
		}
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to read download directory")
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			tracing.TraceErr(span, err)
			return errors.Wrapf(err, "failed to delete %s", path)
		}
		s.log.Debugf("Deleted stale download %s", path)
	}
	return nil
}

func (s *LocalBlobSink) Store(ctx context.Context, blob models.AttachmentBlob, dir string) (models.StoredFile, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "LocalBlobSink.Store")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("attachment", blob.Name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		tracing.TraceErr(span, err)
		return models.StoredFile{}, errors.Wrap(err, "failed to create download directory")
	}

	s.counter++
	path := filepath.Join(dir, storedFileName(blob, s.counter))

	if err := os.WriteFile(path, blob.Content, 0o644); err != nil {
		tracing.TraceErr(span, err)
		return models.StoredFile{}, errors.Wrapf(err, "failed to save attachment %s", blob.Name)
	}

	s.log.Infof("Saved attachment: %s", path)
	return models.StoredFile{
		Path:          path,
		OriginalName:  blob.Name,
		ItemTimestamp: blob.ItemTimestamp,
	}, nil
}

func storedFileName(blob models.AttachmentBlob, counter int) string {
	name := utils.SanitizeFileName(blob.Name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base = "attachment"
	}
	return fmt.Sprintf("%s_%s_%d%s", utils.FormatWatermark(blob.ItemTimestamp), base, counter, ext)
}
