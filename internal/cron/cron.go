package cron

import (
	"context"
	"os"
	"sync"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/customeros/mailvault/interfaces"
	cron_config "github.com/customeros/mailvault/internal/cron/config"
	er "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/tracing"
)

const (
	// GroupArchive is the group for archive sync related jobs
	GroupArchive = "archive"
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupArchive: new(sync.Mutex),
	},
}

type CronManager struct {
	log     logger.Logger
	cron    *cronv3.Cron
	stopCh  chan struct{}
	jobIDs  map[string]cronv3.EntryID
	archive interfaces.ArchiveService
	storage interfaces.ArchiveStorage
}

func NewCronManager(log logger.Logger, archive interfaces.ArchiveService, storage interfaces.ArchiveStorage) *CronManager {
	return &CronManager{
		log:     log,
		stopCh:  make(chan struct{}),
		jobIDs:  make(map[string]cronv3.EntryID),
		archive: archive,
		storage: storage,
	}
}

// Start initializes and starts the cron scheduler
func (cm *CronManager) Start() {
	cm.log.Info("Starting cron manager")
	// Create a new cron with seconds field enabled and panic recovery
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger), // Skip if still running
			cronv3.Recover(cronv3.DefaultLogger),            // Default recovery as backup
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		// Wait for jobs to finish
		<-ctx.Done()
	}
	close(cm.stopCh)
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	// Load cron config from environment variables
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	// Register heartbeat job
	if cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	// Incremental mailbox sync job
	if cronConfig.CronScheduleMailboxSync != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleMailboxSync, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupArchive].Lock()
			defer jobLocks.locks[GroupArchive].Unlock()
			cm.runMailboxSync()
		})
		if err != nil {
			cm.log.Fatalf("Could not add mailbox sync cron job: %v", err)
		}
		cm.jobIDs["mailbox_sync"] = id
		cm.log.Infof("Registered mailbox sync job with schedule: %s", cronConfig.CronScheduleMailboxSync)
	}

	// Temp sweep job
	if cronConfig.CronScheduleTempSweep != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleTempSweep, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.runTempSweep()
		})
		if err != nil {
			cm.log.Fatalf("Could not add temp sweep cron job: %v", err)
		}
		cm.jobIDs["temp_sweep"] = id
		cm.log.Infof("Registered temp sweep job with schedule: %s", cronConfig.CronScheduleTempSweep)
	}
}

func (cm *CronManager) runMailboxSync() {
	cm.log.Info("Running scheduled mailbox sync")

	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.runMailboxSync")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	summary, err := cm.archive.SyncMailbox(ctx)
	if err != nil {
		if err == er.ErrAlreadyRunning {
			cm.log.Info("Mailbox sync already in progress, skipping scheduled run")
			return
		}
		tracing.TraceErr(span, err)
		cm.log.Errorf("Scheduled mailbox sync failed: %v", err)
		return
	}

	cm.log.Infof("Scheduled mailbox sync done: %d synced, %d skipped, %d errors",
		summary.Synced, summary.Skipped, summary.Errors)
}

func (cm *CronManager) runTempSweep() {
	cm.log.Info("Running scheduled temp sweep")

	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.runTempSweep")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if err := cm.storage.SweepTemp(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Temp sweep failed: %v", err)
	}
}
