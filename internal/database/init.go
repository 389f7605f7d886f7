package database

import (
	"gorm.io/gorm"

	"github.com/customeros/mailsync/config"
)

// InitDatabase opens the destination database described by cfg. The same
// connection also holds the sync_states and sync_runs bookkeeping tables.
func InitDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	return NewConnection(&DatabaseConfig{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		DBName:          cfg.DBName,
		Password:        cfg.Password,
		Schema:          cfg.Schema,
		MaxConn:         cfg.MaxConn,
		MaxIdleConn:     cfg.MaxIdleConn,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		LogLevel:        cfg.LogLevel,
		SSLMode:         cfg.SSLMode,
		SqlitePath:      cfg.SqlitePath,
	})
}
