package repository

import (
	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
)

type Repositories struct {
	Destination         interfaces.Destination
	SyncStateRepository interfaces.SyncStateRepository
	SyncRunRepository   interfaces.SyncRunRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Destination:         NewDestinationRepository(db),
		SyncStateRepository: NewSyncStateRepository(db),
		SyncRunRepository:   NewSyncRunRepository(db),
	}
}

// MigrateDB creates the bookkeeping tables. Destination tables are never
// created or altered.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.SyncState{},
		&models.SyncRun{},
	)
}
