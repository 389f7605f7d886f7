package config

import (
	"log"
	"path/filepath"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	cron_config "github.com/customeros/mailsync/internal/cron/config"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *DatabaseConfig
	ImapConfig     *ImapConfig
	SmtpConfig     *SmtpConfig
	ArchiveConfig  *ArchiveConfig
	EventsConfig   *EventsConfig
	CronConfig     *cron_config.Config
}

func newConfig() *Config {
	return &Config{
		AppConfig:      &AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &DatabaseConfig{},
		ImapConfig:     &ImapConfig{},
		SmtpConfig:     &SmtpConfig{},
		ArchiveConfig:  &ArchiveConfig{},
		EventsConfig:   &EventsConfig{},
		CronConfig:     &cron_config.Config{},
	}
}

func InitConfig() (*Config, error) {
	config := newConfig()

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, errors.Wrap(err, "error loading mailsync config")
	}

	config.applyDefaults()

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.AppConfig.DownloadDir == "" {
		c.AppConfig.DownloadDir = filepath.Join(c.AppConfig.WorkDir, "file_downloads")
	}
	if c.AppConfig.WatermarkFile == "" {
		c.AppConfig.WatermarkFile = filepath.Join(c.AppConfig.WorkDir, "latest.txt")
	}
	c.AppConfig.SyncMode = enum.GetSyncMode(c.AppConfig.SyncMode.String())
}

// Validate checks the settings needed by a sync run. Settings only used by
// optional collaborators are checked where those are built.
func (c *Config) Validate() error {
	switch {
	case c.ImapConfig.Server == "":
		return errors.New("IMAP_SERVER is required")
	case c.ImapConfig.Username == "":
		return errors.New("IMAP_USERNAME is required")
	case c.AppConfig.IdentifierColumn == "":
		return errors.New("SYNC_IDENTIFIER_COLUMN must not be empty")
	case !c.AppConfig.SyncMode.IsValid():
		return errors.Errorf("SYNC_MODE must be upsert or replace, got %q", c.AppConfig.SyncMode)
	}

	switch c.AppConfig.WatermarkBackend {
	case enum.WatermarkBackendFile, enum.WatermarkBackendDatabase:
	default:
		return errors.Errorf("WATERMARK_BACKEND must be file or database, got %q", c.AppConfig.WatermarkBackend)
	}

	switch c.DatabaseConfig.Driver {
	case enum.DestinationPostgres:
		if c.DatabaseConfig.Host == "" || c.DatabaseConfig.DBName == "" || c.DatabaseConfig.User == "" {
			return errors.New("POSTGRES_HOST, POSTGRES_DB_NAME and POSTGRES_USER are required for the postgres destination")
		}
	case enum.DestinationSqlite:
		if c.DatabaseConfig.SqlitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite destination")
		}
	default:
		return errors.Errorf("unsupported DESTINATION_DRIVER %q", c.DatabaseConfig.Driver)
	}

	return nil
}
