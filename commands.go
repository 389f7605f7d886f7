package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/internal/database"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
	"github.com/customeros/mailsync/server"
	"github.com/customeros/mailsync/services"
)

const (
	exitFailure      = 1
	exitConnectivity = 2
)

// bootstrap holds what every command needs.
type bootstrap struct {
	cfg          *config.Config
	log          logger.Logger
	db           *gorm.DB
	repos        *repository.Repositories
	tracerCloser io.Closer
}

func newBootstrap() (*bootstrap, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, err
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Printf("Could not initialize jaeger tracer: %v", err)
	} else {
		opentracing.SetGlobalTracer(tracer)
	}

	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return nil, errors.Wrap(err, "database initialization failed")
	}

	return &bootstrap{
		cfg:          cfg,
		log:          appLogger,
		db:           db,
		repos:        repository.InitRepositories(db),
		tracerCloser: closer,
	}, nil
}

func (b *bootstrap) Close() {
	if sqlDB, err := b.db.DB(); err == nil {
		sqlDB.Close()
	}
	if b.tracerCloser != nil {
		b.tracerCloser.Close()
	}
	b.log.Sync()
}

// exitError maps an aborted run onto the process exit code.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	if mserrors.IsConnectivity(err) {
		return cli.Exit(err.Error(), exitConnectivity)
	}
	return cli.Exit(err.Error(), exitFailure)
}

func runCommand(c *cli.Context) error {
	b, err := newBootstrap()
	if err != nil {
		return exitError(err)
	}
	defer b.Close()

	if mode := c.String("mode"); mode != "" {
		b.cfg.AppConfig.SyncMode = enum.GetSyncMode(mode)
	}

	if err := repository.MigrateDB(b.db); err != nil {
		return exitError(errors.Wrap(err, "failed to migrate bookkeeping tables"))
	}

	svcs, err := services.InitServices(b.cfg, b.log, b.repos)
	if err != nil {
		return exitError(err)
	}
	defer svcs.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	span, ctx := tracing.StartTracerSpan(ctx, "mailsync.run")
	defer span.Finish()
	tracing.TagComponentCli(span)

	summary, err := svcs.SyncService.Run(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return exitError(err)
	}

	b.log.Infof("Run %s complete: %d updated, %d inserted, %d failed tables",
		summary.RunID, summary.Updated, summary.Inserted, len(summary.FailedTables))
	return nil
}

func scheduleCommand(_ *cli.Context) error {
	b, err := newBootstrap()
	if err != nil {
		return exitError(err)
	}
	defer b.Close()

	if err := repository.MigrateDB(b.db); err != nil {
		return exitError(errors.Wrap(err, "failed to migrate bookkeeping tables"))
	}

	svcs, err := services.InitServices(b.cfg, b.log, b.repos)
	if err != nil {
		return exitError(err)
	}

	srv := server.NewServer(b.cfg, b.log, b.repos, svcs, nil)
	return exitError(srv.Run())
}

func migrateCommand(_ *cli.Context) error {
	b, err := newBootstrap()
	if err != nil {
		return exitError(err)
	}
	defer b.Close()

	if err := repository.MigrateDB(b.db); err != nil {
		return exitError(errors.Wrap(err, "database migration failed"))
	}
	b.log.Info("Database migration completed successfully")
	return nil
}

func watermarkShowCommand(c *cli.Context) error {
	b, err := newBootstrap()
	if err != nil {
		return exitError(err)
	}
	defer b.Close()

	ts, err := services.NewWatermarkStore(b.cfg, b.log, b.repos).Read(context.Background())
	if err != nil {
		return exitError(err)
	}
	if ts == nil {
		fmt.Fprintln(c.App.Writer, "no watermark, the next run processes every item")
		return nil
	}
	fmt.Fprintln(c.App.Writer, utils.FormatWatermark(*ts))
	return nil
}

func watermarkResetCommand(c *cli.Context) error {
	b, err := newBootstrap()
	if err != nil {
		return exitError(err)
	}
	defer b.Close()

	if err := services.NewWatermarkStore(b.cfg, b.log, b.repos).Reset(context.Background()); err != nil {
		return exitError(err)
	}
	fmt.Fprintln(c.App.Writer, "watermark reset")
	return nil
}
