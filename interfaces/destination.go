package interfaces

import (
	"context"

	"github.com/customeros/mailsync/internal/models"
)

type Destination interface {
	Ping(ctx context.Context) error
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]models.Column, error)
	// Select reads the given columns of every row matching where. An empty
	// where selects all rows.
	Select(ctx context.Context, table string, columns []string, where string, args ...any) ([]models.Row, error)
	UpdateRow(ctx context.Context, table, idColumn string, id any, values map[string]any) error
	InsertRows(ctx context.Context, table string, rows []map[string]any) error
	ReplaceRows(ctx context.Context, table string, rows []map[string]any) error
}

type SyncStateRepository interface {
	GetSyncState(ctx context.Context, source string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	DeleteSyncState(ctx context.Context, source string) error
}

type SyncRunRepository interface {
	Create(ctx context.Context, run *models.SyncRun) error
	GetLatest(ctx context.Context) (*models.SyncRun, error)
	List(ctx context.Context, limit int) ([]models.SyncRun, error)
}
