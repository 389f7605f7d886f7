package config

import (
	"github.com/customeros/mailsync/internal/enum"
)

type AppConfig struct {
	SenderFilter     string                `env:"SYNC_SENDER_FILTER"`
	SubjectFilter    string                `env:"SYNC_SUBJECT_FILTER"`
	IdentifierColumn string                `env:"SYNC_IDENTIFIER_COLUMN" envDefault:"id"`
	WorkDir          string                `env:"SYNC_WORK_DIR" envDefault:"./data"`
	DownloadDir      string                `env:"SYNC_DOWNLOAD_DIR"`
	SyncMode         enum.SyncMode         `env:"SYNC_MODE" envDefault:"upsert"`
	WatermarkBackend enum.WatermarkBackend `env:"WATERMARK_BACKEND" envDefault:"file"`
	WatermarkFile    string                `env:"WATERMARK_FILE"`
	WatermarkSource  string                `env:"WATERMARK_SOURCE" envDefault:"default"`
	StatusPort       string                `env:"STATUS_PORT" envDefault:"12223"`
	APIKey           string                `env:"API_KEY"`
}

type ImapConfig struct {
	Server   string `env:"IMAP_SERVER"`
	Port     int    `env:"IMAP_PORT" envDefault:"993"`
	TLS      bool   `env:"IMAP_TLS" envDefault:"true"`
	Username string `env:"IMAP_USERNAME"`
	Password string `env:"IMAP_PASSWORD"`
	Folder   string `env:"IMAP_FOLDER" envDefault:"INBOX"`
	// Upper bound on messages fetched per run, oldest first.
	MaxItems int `env:"IMAP_MAX_ITEMS" envDefault:"500"`
}

type SmtpConfig struct {
	Server   string             `env:"SMTP_SERVER"`
	Port     int                `env:"SMTP_PORT" envDefault:"587"`
	Username string             `env:"SMTP_USERNAME"`
	Password string             `env:"SMTP_PASSWORD"`
	Security enum.EmailSecurity `env:"SMTP_SECURITY" envDefault:"startTLS"`
	From     string             `env:"NOTIFY_FROM"`
	To       []string           `env:"NOTIFY_TO" envSeparator:","`
	Subject  string             `env:"NOTIFY_SUBJECT" envDefault:"Data Sync Completed"`
}

type DatabaseConfig struct {
	Driver          enum.DestinationDriver `env:"DESTINATION_DRIVER" envDefault:"postgres"`
	Host            string                 `env:"POSTGRES_HOST"`
	Port            string                 `env:"POSTGRES_PORT" envDefault:"5432"`
	User            string                 `env:"POSTGRES_USER"`
	DBName          string                 `env:"POSTGRES_DB_NAME"`
	Password        string                 `env:"POSTGRES_PASSWORD"`
	Schema          string                 `env:"POSTGRES_SCHEMA" envDefault:"public"`
	MaxConn         int                    `env:"POSTGRES_DB_MAX_CONN" envDefault:"10"`
	MaxIdleConn     int                    `env:"POSTGRES_DB_MAX_IDLE_CONN" envDefault:"2"`
	ConnMaxLifetime int                    `env:"POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string                 `env:"POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string                 `env:"POSTGRES_SSL_MODE" envDefault:"require"`
	SqlitePath      string                 `env:"SQLITE_PATH" envDefault:"./data/mailsync.db"`
}

type ArchiveConfig struct {
	Enabled         bool   `env:"ARCHIVE_ENABLED" envDefault:"false"`
	Bucket          string `env:"ARCHIVE_BUCKET" envDefault:"attachments"`
	Region          string `env:"ARCHIVE_REGION" envDefault:"auto"`
	Endpoint        string `env:"ARCHIVE_ENDPOINT"`
	R2AccountID     string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"ARCHIVE_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ARCHIVE_ACCESS_KEY_SECRET"`
}

type EventsConfig struct {
	RabbitMQURL string `env:"RABBITMQ_URL"`
	Exchange    string `env:"RABBITMQ_EXCHANGE" envDefault:"mailsync"`
	RoutingKey  string `env:"RABBITMQ_ROUTING_KEY" envDefault:"sync.run.completed"`
}
