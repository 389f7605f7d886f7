package models

import (
	"time"
)

// SyncState holds the watermark of one mail source when the watermark is
// kept in the database instead of a file.
type SyncState struct {
	ID        string    `gorm:"column:id;type:varchar(36);primaryKey"`
	Source    string    `gorm:"column:source;type:varchar(255);uniqueIndex;not null"`
	Watermark time.Time `gorm:"column:watermark;type:timestamp;not null"`
	LastSync  time.Time `gorm:"column:last_sync;type:timestamp;not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (SyncState) TableName() string {
	return "sync_states"
}
