package interfaces

import (
	"context"

	"github.com/customeros/mailsync/internal/models"
)

type TableSyncer interface {
	Sync(ctx context.Context, table *models.ConsolidatedTable, identifierColumn string) (*models.UpsertResult, error)
}

type SyncService interface {
	Run(ctx context.Context) (*models.RunSummary, error)
}
