package watermark

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type dbStore struct {
	source string
	repo   interfaces.SyncStateRepository
}

// NewDatabaseStore keeps the watermark in the sync_states row of source.
func NewDatabaseStore(source string, repo interfaces.SyncStateRepository) interfaces.WatermarkStore {
	return &dbStore{source: source, repo: repo}
}

func (s *dbStore) Read(ctx context.Context) (*time.Time, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WatermarkDatabaseStore.Read")
	defer span.Finish()
	tracing.TagComponentService(span)

	state, err := s.repo.GetSyncState(ctx, s.source)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if state == nil || state.Watermark.IsZero() {
		return nil, nil
	}
	ts := utils.TruncateToSecond(state.Watermark)
	return &ts, nil
}

func (s *dbStore) Write(ctx context.Context, ts time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WatermarkDatabaseStore.Write")
	defer span.Finish()
	tracing.TagComponentService(span)

	err := s.repo.SaveSyncState(ctx, &models.SyncState{
		Source:    s.source,
		Watermark: utils.TruncateToSecond(ts),
	})
	tracing.TraceErr(span, err)
	return err
}

func (s *dbStore) Reset(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WatermarkDatabaseStore.Reset")
	defer span.Finish()
	tracing.TagComponentService(span)

	err := s.repo.DeleteSyncState(ctx, s.source)
	tracing.TraceErr(span, err)
	return err
}
