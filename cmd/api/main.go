package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordanlanch/reportdb/config"
	"github.com/jordanlanch/reportdb/pkg/api/handlers"
	"github.com/jordanlanch/reportdb/pkg/cache"
	"github.com/jordanlanch/reportdb/pkg/database"
	"github.com/jordanlanch/reportdb/pkg/export"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/metadata"
	custommiddleware "github.com/jordanlanch/reportdb/pkg/middleware"
	"github.com/jordanlanch/reportdb/pkg/query"
	"github.com/jordanlanch/reportdb/pkg/report"
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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
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
	queryService := query.NewService(resolver, compiler, runner, appLog)
	reportService := report.NewService(reportStore, metadataStore, appLog)

	enqueuer := tasks.NewEnqueuer(asynqClient, tasks.EnqueuerConfig{
		ScheduleMaxRetry: cfg.ScheduleRetries,
		ExportMaxRetry:   cfg.ExportRetries,
		SoftTimeout:      cfg.TaskSoftTimeout,
		HardDeadline:     cfg.TaskHardTimeout,
	}, appLog)

	generator := export.NewGenerator(reportStore, resolver, compiler, runner, cfg.ExportRoot, appLog)
	exportService := export.NewService(exportStore, generator, enqueuer, cfg.ExportRoot, cfg.ExportExpiry, appLog)
	signer := export.NewLinkSigner(cfg.DownloadSecret, cfg.DownloadBaseURL)

	clock := schedule.NewClock()
	scheduleService := schedule.NewService(scheduleStore, executionStore, reportStore, clock, appLog)

	// Echo
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[%s] %s - Status: %d", c.Request().Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())

	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	e.Use(globalRateLimiter.RateLimitMiddleware())

	// Health and metrics (public)
	e.GET("/health", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":   "unhealthy",
				"database": "down",
			})
		}
		if _, err := redisClient.Redis.Ping(c.Request().Context()).Result(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"cache":  "down",
			})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"status":   "healthy",
			"database": "up",
			"cache":    "up",
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Handlers
	reportHandler := handlers.NewReportHandler(reportService)
	queryHandler := handlers.NewQueryHandler(queryService)
	exportHandler := handlers.NewExportHandler(exportService, signer)
	scheduleHandler := handlers.NewScheduleHandler(scheduleService)

	v1 := e.Group("/api/v1")

	// Download is reachable with a signed link, so it sits outside the
	// identity group; the handler enforces token or header itself.
	v1.GET("/exports/:id/download", exportHandler.Download)

	protected := v1.Group("", handlers.IdentityMiddleware())
	{
		reportsGroup := protected.Group("/reports")
		{
			reportsGroup.POST("", reportHandler.Create)
			reportsGroup.GET("", reportHandler.List)
			reportsGroup.GET("/:id", reportHandler.Get)
			reportsGroup.PATCH("/:id", reportHandler.Update)
			reportsGroup.DELETE("/:id", reportHandler.Delete)
		}

		queryGroup := protected.Group("/query")
		{
			queryGroup.POST("/run", queryHandler.Run)
			queryGroup.POST("/count", queryHandler.Count)
		}

		exportsGroup := protected.Group("/exports")
		{
			exportsGroup.POST("", exportHandler.Create)
			exportsGroup.GET("", exportHandler.List)
			exportsGroup.GET("/:id", exportHandler.Get)
		}

		schedulesGroup := protected.Group("/schedules")
		{
			schedulesGroup.POST("", scheduleHandler.Create)
			schedulesGroup.GET("", scheduleHandler.List)
			schedulesGroup.GET("/:id", scheduleHandler.Get)
			schedulesGroup.PATCH("/:id", scheduleHandler.Update)
			schedulesGroup.DELETE("/:id", scheduleHandler.Delete)
			schedulesGroup.POST("/:id/pause", scheduleHandler.Pause)
			schedulesGroup.POST("/:id/resume", scheduleHandler.Resume)
			schedulesGroup.GET("/:id/executions", scheduleHandler.Executions)
		}
	}

	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 ReportDB API starting on %s", address)
	log.Printf("🛡️  Rate limiting: %d req/min (burst: %d)", cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	log.Printf("📁 Export root: %s (expiry: %s)", cfg.ExportRoot, cfg.ExportExpiry)

	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}
