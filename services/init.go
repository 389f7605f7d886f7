package services

import (
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/services/events"
	"github.com/customeros/mailsync/services/imap"
	"github.com/customeros/mailsync/services/notify"
	"github.com/customeros/mailsync/services/orchestrator"
	"github.com/customeros/mailsync/services/parser"
	"github.com/customeros/mailsync/services/smtp"
	"github.com/customeros/mailsync/services/storage"
	"github.com/customeros/mailsync/services/upsert"
	"github.com/customeros/mailsync/services/watermark"
)

type Services struct {
	EventsService  *events.EventsService
	MailSource     interfaces.MailSource
	WatermarkStore interfaces.WatermarkStore
	SyncService    interfaces.SyncService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	eventsService, err := events.NewEventsService(cfg.EventsConfig, log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect events publisher")
	}

	sink, err := newBlobSink(cfg, log)
	if err != nil {
		eventsService.Close()
		return nil, err
	}

	mailSource := imap.NewIMAPService(cfg.ImapConfig, log)
	watermarkStore := NewWatermarkStore(cfg, log, repos)

	syncService := orchestrator.NewSyncService(orchestrator.Options{
		SenderFilter:     cfg.AppConfig.SenderFilter,
		SubjectFilter:    cfg.AppConfig.SubjectFilter,
		IdentifierColumn: cfg.AppConfig.IdentifierColumn,
		DownloadDir:      cfg.AppConfig.DownloadDir,
		Mode:             cfg.AppConfig.SyncMode,
	}, orchestrator.Dependencies{
		Source:      mailSource,
		Sink:        sink,
		Parser:      parser.NewParserService(log),
		Syncer:      upsert.NewUpsertService(repos.Destination, cfg.AppConfig.SyncMode, log),
		Watermark:   watermarkStore,
		Destination: repos.Destination,
		Runs:        repos.SyncRunRepository,
		Notifier:    newNotifier(cfg, log, eventsService),
	}, log)

	return &Services{
		EventsService:  eventsService,
		MailSource:     mailSource,
		WatermarkStore: watermarkStore,
		SyncService:    syncService,
	}, nil
}

// NewWatermarkStore picks the file or database watermark backend.
func NewWatermarkStore(cfg *config.Config, log logger.Logger, repos *repository.Repositories) interfaces.WatermarkStore {
	if cfg.AppConfig.WatermarkBackend == enum.WatermarkBackendDatabase {
		return watermark.NewDatabaseStore(cfg.AppConfig.WatermarkSource, repos.SyncStateRepository)
	}
	return watermark.NewFileStore(cfg.AppConfig.WatermarkFile, log)
}

func newBlobSink(cfg *config.Config, log logger.Logger) (interfaces.BlobSink, error) {
	local := storage.NewLocalBlobSink(log)
	if !cfg.ArchiveConfig.Enabled {
		return local, nil
	}

	archive, err := storage.NewArchiveStorageService(cfg.ArchiveConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize attachment archive")
	}
	log.Infof("Archiving attachments to bucket %s", cfg.ArchiveConfig.Bucket)
	return storage.NewArchivingBlobSink(local, archive, log), nil
}

// newNotifier fans the run summary out to every configured channel. The
// summary is always logged.
func newNotifier(cfg *config.Config, log logger.Logger, eventsService *events.EventsService) interfaces.Notifier {
	notifiers := notify.Multi{notify.Log{Logger: log}}
	if cfg.SmtpConfig.Server != "" {
		notifiers = append(notifiers, smtp.NewSMTPNotifier(cfg.SmtpConfig, log))
	} else {
		log.Warn("SMTP_SERVER not set, summary e-mails are disabled")
	}
	if eventsService != nil && eventsService.Publisher != nil {
		notifiers = append(notifiers, eventsService.Publisher)
	}
	return notifiers
}

func (s *Services) Close() {
	if s == nil {
		return
	}
	if s.MailSource != nil {
		s.MailSource.Close()
	}
	s.EventsService.Close()
}
