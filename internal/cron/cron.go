package cron

import (
	"context"
	"os"
	"sync"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/customeros/mailsync/interfaces"
	cron_config "github.com/customeros/mailsync/internal/cron/config"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

const (
	jobHeartbeat = "heartbeat"
	jobSync      = "sync"
)

type CronManager struct {
	cfg    *cron_config.Config
	log    logger.Logger
	cron   *cronv3.Cron
	sync   interfaces.SyncService
	stopCh chan struct{}
	jobIDs map[string]cronv3.EntryID
	// syncLock keeps scheduled and manually triggered runs of this process
	// from overlapping.
	syncLock sync.Mutex
}

func NewCronManager(cfg *cron_config.Config, log logger.Logger, syncService interfaces.SyncService) *CronManager {
	return &CronManager{
		cfg:    cfg,
		log:    log,
		sync:   syncService,
		stopCh: make(chan struct{}),
		jobIDs: make(map[string]cronv3.EntryID),
	}
}

// Start registers the jobs and starts the scheduler.
func (cm *CronManager) Start() error {
	cm.log.Info("Starting cron manager")
	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

// Stop waits for running jobs to finish.
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		<-ctx.Done()
	}
	close(cm.stopCh)
}

func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	if cm.cfg.CronScheduleHeartbeat != "" {
		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "local"
		}
		id, err := c.AddFunc(cm.cfg.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from %s", hostname)
		})
		if err != nil {
			cm.log.Errorf("Could not add heartbeat cron job: %v", err)
			return err
		}
		cm.jobIDs[jobHeartbeat] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cm.cfg.CronScheduleHeartbeat)
	}

	if cm.cfg.CronScheduleSync != "" {
		id, err := c.AddFunc(cm.cfg.CronScheduleSync, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.syncMailbox()
		})
		if err != nil {
			cm.log.Errorf("Could not add sync cron job: %v", err)
			return err
		}
		cm.jobIDs[jobSync] = id
		cm.log.Infof("Registered sync job with schedule: %s", cm.cfg.CronScheduleSync)
	}
	return nil
}

func (cm *CronManager) syncMailbox() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.syncMailbox")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if _, err := cm.RunSync(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Scheduled sync failed: %v", err)
		return
	}
	cm.log.Info("Scheduled sync completed")
}

// RunSync runs the orchestrator once unless a run is already in progress in
// this process, in which case it returns ErrRunInProgress.
func (cm *CronManager) RunSync(ctx context.Context) (*models.RunSummary, error) {
	if !cm.syncLock.TryLock() {
		return nil, mserrors.ErrRunInProgress
	}
	defer cm.syncLock.Unlock()
	return cm.sync.Run(ctx)
}
