package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jordanlanch/reportdb/pkg/deadletter"
	"github.com/jordanlanch/reportdb/pkg/export"
	"github.com/jordanlanch/reportdb/pkg/logger"
)

// CronManager runs worker-side maintenance jobs
type CronManager struct {
	cron    *cron.Cron
	exports *export.Service
	dlq     *deadletter.Store
	log     logger.Logger
}

// NewCronManager creates a new cron manager
func NewCronManager(exports *export.Service, dlq *deadletter.Store, log logger.Logger) *CronManager {
	return &CronManager{
		cron:    cron.New(),
		exports: exports,
		dlq:     dlq,
		log:     log,
	}
}

// SetupJobs configures all scheduled maintenance jobs
func (cm *CronManager) SetupJobs() error {
	cm.log.Info("Setting up cron jobs...")

	// Hourly: remove expired export files and their records
	_, err := cm.cron.AddFunc("0 * * * *", func() {
		cm.log.Info("🕐 Running expired export cleanup job...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		removed, err := cm.exports.DeleteExpired(ctx, time.Now().UTC(), 500)
		if err != nil {
			cm.log.Error("❌ Expired export cleanup failed", "error", err)
			return
		}
		cm.log.Info("✅ Expired export cleanup completed", "removed", removed)
	})
	if err != nil {
		return err
	}

	// Daily at 3 AM: drop dead-letter index entries whose data expired
	_, err = cm.cron.AddFunc("0 3 * * *", func() {
		cm.log.Info("🕐 Running dead-letter sweep job...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		removed, err := cm.dlq.Sweep(ctx)
		if err != nil {
			cm.log.Error("❌ Dead-letter sweep failed", "error", err)
			return
		}
		cm.log.Info("✅ Dead-letter sweep completed", "removed", removed)
	})
	if err != nil {
		return err
	}

	cm.log.Info("✅ Cron jobs configured successfully")
	cm.log.Info("  - Hourly: expired export cleanup")
	cm.log.Info("  - Daily at 3 AM: dead-letter index sweep")

	return nil
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.log.Info("🚀 Starting cron scheduler...")
	cm.cron.Start()
}

// Stop stops the cron scheduler
func (cm *CronManager) Stop() {
	cm.log.Info("🛑 Stopping cron scheduler...")
	cm.cron.Stop()
}
