package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/customeros/mailsync/internal/enum"
)

type DatabaseConfig struct {
	Driver          enum.DestinationDriver
	Host            string
	Port            string
	User            string
	DBName          string
	Password        string
	Schema          string
	MaxConn         int
	MaxIdleConn     int
	ConnMaxLifetime int
	LogLevel        string
	SSLMode         string
	SqlitePath      string
}

func NewConnection(dbConfig *DatabaseConfig) (*gorm.DB, error) {
	if err := validateConfig(dbConfig); err != nil {
		return nil, err
	}

	dialector, err := newDialector(dbConfig)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(dbConfig.LogLevel)),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if dbConfig.Driver == enum.DestinationSqlite {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}

	sqlDB.SetMaxIdleConns(orDefault(dbConfig.MaxIdleConn, 2))
	sqlDB.SetMaxOpenConns(orDefault(dbConfig.MaxConn, 10))
	sqlDB.SetConnMaxLifetime(time.Duration(orDefault(dbConfig.ConnMaxLifetime, 60)) * time.Minute)

	return db, nil
}

func newDialector(dbConfig *DatabaseConfig) (gorm.Dialector, error) {
	switch dbConfig.Driver {
	case enum.DestinationSqlite:
		if dir := filepath.Dir(dbConfig.SqlitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(err, "failed to create sqlite directory")
			}
		}
		return sqlite.Open(dbConfig.SqlitePath), nil
	default:
		portInt, err := strconv.Atoi(dbConfig.Port)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %w", err)
		}
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			dbConfig.Host, portInt, dbConfig.User, dbConfig.Password, dbConfig.DBName, dbConfig.SSLMode,
		)
		if dbConfig.Schema != "" {
			dsn += " search_path=" + dbConfig.Schema
		}
		return postgres.Open(dsn), nil
	}
}

func validateConfig(config *DatabaseConfig) error {
	if config == nil {
		return errors.New("database config is nil")
	}
	if config.Driver == "" {
		config.Driver = enum.DestinationPostgres
	}
	switch config.Driver {
	case enum.DestinationSqlite:
		if config.SqlitePath == "" {
			return errors.New("sqlite path config is empty")
		}
		return nil
	case enum.DestinationPostgres:
	default:
		return errors.Errorf("unsupported database driver %q", config.Driver)
	}

	switch {
	case config.Host == "":
		return errors.New("database host config is empty")
	case config.Port == "":
		return errors.New("database port config is empty")
	case config.User == "":
		return errors.New("database user config is empty")
	case config.DBName == "":
		return errors.New("database name config is empty")
	case config.SSLMode == "":
		return errors.New("database SSLMode config is empty")
	}
	return nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToUpper(level) {
	case "SILENT":
		return logger.Silent
	case "ERROR":
		return logger.Error
	case "INFO", "DEBUG":
		return logger.Info
	default:
		return logger.Warn
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
