package watermark

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type fileStore struct {
	path string
	log  logger.Logger
}

// NewFileStore keeps the watermark as a single YYYY-MM-DD_HH-MM-SS line in
// path.
func NewFileStore(path string, log logger.Logger) interfaces.WatermarkStore {
	return &fileStore{path: path, log: log}
}

// Read returns nil when the file is missing, empty or malformed.
func (s *fileStore) Read(ctx context.Context) (*time.Time, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "WatermarkFileStore.Read")
	defer span.Finish()
	tracing.TagComponentService(span)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Infof("No watermark at %s, processing all items", s.path)
			return nil, nil
		}
		tracing.TraceErr(span, err)
		s.log.Warnf("Unable to read watermark %s, treating as absent: %v", s.path, err)
		return nil, nil
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		s.log.Warnf("Watermark file %s is empty, treating as absent", s.path)
		return nil, nil
	}

	ts, err := utils.ParseWatermark(value)
	if err != nil {
		s.log.Warnf("Malformed watermark %q in %s, treating as absent: %v", value, s.path, err)
		return nil, nil
	}
	return &ts, nil
}

// Write replaces the file atomically: the value goes to a temporary file in
// the same directory which is then renamed over the target.
func (s *fileStore) Write(ctx context.Context, ts time.Time) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "WatermarkFileStore.Write")
	defer span.Finish()
	tracing.TagComponentService(span)

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to create watermark directory")
	}

	tmp, err := os.CreateTemp(dir, ".watermark-*")
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to create temporary watermark file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(utils.FormatWatermark(ts) + "\n"); err != nil {
		tmp.Close()
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to write watermark")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to sync watermark")
	}
	if err := tmp.Close(); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to close watermark")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to replace watermark")
	}

	span.LogKV("watermark", utils.FormatWatermark(ts))
	return nil
}

func (s *fileStore) Reset(ctx context.Context) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "WatermarkFileStore.Reset")
	defer span.Finish()
	tracing.TagComponentService(span)

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to remove watermark")
	}
	return nil
}
