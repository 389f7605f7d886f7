package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

type syncRunRepository struct {
	db *gorm.DB
}

func NewSyncRunRepository(db *gorm.DB) interfaces.SyncRunRepository {
	return &syncRunRepository{db: db}
}

func (r *syncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncRunRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagRunId(span, run.RunID)

	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

// GetLatest returns the most recently started run, nil if none.
func (r *syncRunRepository) GetLatest(ctx context.Context) (*models.SyncRun, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncRunRepository.GetLatest")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var run models.SyncRun
	err := r.db.WithContext(ctx).Order("started_at DESC").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get latest sync run: %w", err)
	}
	return &run, nil
}

func (r *syncRunRepository) List(ctx context.Context, limit int) ([]models.SyncRun, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncRunRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if limit <= 0 {
		limit = 20
	}

	var runs []models.SyncRun
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	return runs, nil
}
