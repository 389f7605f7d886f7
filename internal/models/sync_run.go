package models

import (
	"time"

	"github.com/lib/pq"

	"github.com/customeros/mailsync/internal/enum"
)

// SyncRun is the persisted outcome of one orchestrator run.
type SyncRun struct {
	ID              string         `gorm:"column:id;type:varchar(36);primaryKey"`
	RunID           string         `gorm:"column:run_id;type:varchar(50);uniqueIndex;not null"`
	Status          enum.RunStatus `gorm:"column:status;type:varchar(20);not null"`
	StartedAt       time.Time      `gorm:"column:started_at;type:timestamp;not null"`
	FinishedAt      time.Time      `gorm:"column:finished_at;type:timestamp"`
	ItemsConsidered int            `gorm:"column:items_considered;not null;default:0"`
	ItemsSkipped    int            `gorm:"column:items_skipped;not null;default:0"`
	ItemsFailed     int            `gorm:"column:items_failed;not null;default:0"`
	FilesParsed     int            `gorm:"column:files_parsed;not null;default:0"`
	FilesFailed     int            `gorm:"column:files_failed;not null;default:0"`
	Inserted        int            `gorm:"column:inserted;not null;default:0"`
	Updated         int            `gorm:"column:updated;not null;default:0"`
	FailedRows      int            `gorm:"column:failed_rows;not null;default:0"`
	FailedTables    pq.StringArray `gorm:"column:failed_tables;type:text[]"`
	Watermark       *time.Time     `gorm:"column:watermark;type:timestamp"`
	Error           string         `gorm:"column:error;type:text"`
	Details         JSONMap        `gorm:"column:details;type:jsonb"`
	CreatedAt       time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}
