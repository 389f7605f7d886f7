package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailsync/api"
	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/internal/cron"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services"
)

const shutdownTimeout = 15 * time.Second

// Server runs the sync on a cron schedule and exposes the status API.
type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, log logger.Logger, repos *repository.Repositories, svcs *services.Services, tracerCloser io.Closer) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          log,
		router:       router,
		services:     svcs,
		repositories: repos,
		cronManager:  cron.NewCronManager(cfg.CronConfig, log, svcs.SyncService),
		tracerCloser: tracerCloser,
		httpServer: &http.Server{
			Addr:              ":" + cfg.AppConfig.StatusPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Initialize() {
	if s.config.AppConfig.APIKey == "" {
		s.log.Warn("API_KEY not set, /v1 endpoints will reject every request")
	}
	api.RegisterRoutes(s.router, s.repositories.SyncRunRepository, s.cronManager, s.config.AppConfig.APIKey)
}

func (s *Server) Run() error {
	s.Initialize()

	if err := s.cronManager.Start(); err != nil {
		return err
	}

	go func() {
		defer tracing.RecoverAndLogToJaeger(s.log)
		s.log.Infof("Starting status server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	}()
	s.log.Info("Mailsync scheduler is running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer tracing.RecoverAndLogToJaeger(s.log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	s.log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	}

	// waits for an in-flight run to finish
	s.cronManager.Stop()
	s.services.Close()

	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}
	s.log.Info("Shutdown complete")
	return nil
}
