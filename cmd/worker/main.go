package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jordanlanch/reportdb/config"
	"github.com/jordanlanch/reportdb/pkg/cache"
	"github.com/jordanlanch/reportdb/pkg/database"
	"github.com/jordanlanch/reportdb/pkg/deadletter"
	"github.com/jordanlanch/reportdb/pkg/distribution"
	"github.com/jordanlanch/reportdb/pkg/email"
	"github.com/jordanlanch/reportdb/pkg/export"
	"github.com/jordanlanch/reportdb/pkg/jobs"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/metadata"
	"github.com/jordanlanch/reportdb/pkg/query"
	"github.com/jordanlanch/reportdb/pkg/schedule"
	"github.com/jordanlanch/reportdb/pkg/store/postgres"
	"github.com/jordanlanch/reportdb/pkg/tasks"
)

func main() {
	cfg := config.Load()
	appLog := logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

	db, err := database.NewClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Stores
	metadataStore := postgres.NewMetadataStore(db.DB)
	reportStore := postgres.NewReportStore(db.DB)
	scheduleStore := postgres.NewScheduleStore(db.DB)
	executionStore := postgres.NewExecutionStore(db.DB)
	exportStore := postgres.NewExportStore(db.DB)
	runner := postgres.NewQueryRunner(db.DB, cfg.TaskSoftTimeout)

	// Core services
	resolver := metadata.NewResolver(metadataStore)
	compiler := query.NewCompiler()
	generator := export.NewGenerator(reportStore, resolver, compiler, runner, cfg.ExportRoot, appLog)

	enqueuer := tasks.NewEnqueuer(asynqClient, tasks.EnqueuerConfig{
		ScheduleMaxRetry: cfg.ScheduleRetries,
		ExportMaxRetry:   cfg.ExportRetries,
		SoftTimeout:      cfg.TaskSoftTimeout,
		HardDeadline:     cfg.TaskHardTimeout,
	}, appLog)
	exportService := export.NewService(exportStore, generator, enqueuer, cfg.ExportRoot, cfg.ExportExpiry, appLog)
	signer := export.NewLinkSigner(cfg.DownloadSecret, cfg.DownloadBaseURL)

	// Distribution channels
	mailer := email.NewService(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName, appLog)
	limiter := cache.NewSendLimiter(redisClient)
	localChannel := distribution.NewLocalChannel(cfg.ExportRoot, appLog)
	emailChannel := distribution.NewEmailChannel(mailer, limiter, signer, cfg.ExportRoot,
		cfg.MaxAttachmentBytes, cfg.EmailGlobalPerHour, cfg.EmailPerUserPerHour, appLog)
	webhookChannel := distribution.NewWebhookChannel(&http.Client{Timeout: 30 * time.Second}, appLog)
	dispatcher := distribution.NewDispatcher(localChannel, emailChannel, webhookChannel, appLog)

	executor := schedule.NewExecutor(scheduleStore, executionStore, exportStore, generator, dispatcher, cfg.ExportExpiry, appLog)

	// Dead-letter store and task handlers
	dlq := deadletter.NewStore(redisClient, cfg.DLQRetention, cfg.DLQMaxEntries, appLog)
	handlers := tasks.NewHandlers(executor, exportService, dlq, appLog)

	backoff := tasks.NewBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    cfg.WorkerCount,
		RetryDelayFunc: backoff.RetryDelayFunc,
	})
	mux := asynq.NewServeMux()
	handlers.Register(mux)

	// Due-schedule poller
	clock := schedule.NewClock()
	poller := schedule.NewPoller(scheduleStore, enqueuer, clock, cfg.PollerInterval, appLog)
	pollerCtx, stopPoller := context.WithCancel(context.Background())
	go poller.Start(pollerCtx)

	// Maintenance jobs
	cronManager := jobs.NewCronManager(exportService, dlq, appLog)
	if err := cronManager.SetupJobs(); err != nil {
		log.Fatalf("❌ Failed to setup cron jobs: %v", err)
	}
	cronManager.Start()

	log.Printf("🚀 ReportDB worker starting (concurrency: %d)", cfg.WorkerCount)
	log.Printf("⏰ Poller interval: %s", cfg.PollerInterval)
	log.Printf("🔁 Retry: schedules %d, exports %d (base %s, max %s)",
		cfg.ScheduleRetries, cfg.ExportRetries, cfg.RetryBaseDelay, cfg.RetryMaxDelay)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("❌ Failed to start worker: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down worker...")
	stopPoller()
	cronManager.Stop()
	srv.Shutdown()
	log.Println("✅ Worker gracefully stopped")
}
