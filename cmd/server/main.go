package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/application/channelsync"
	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/pms/channelsync/internal/infrastructure/cache"
	"github.com/pms/channelsync/internal/infrastructure/config"
	"github.com/pms/channelsync/internal/infrastructure/connector"
	"github.com/pms/channelsync/internal/infrastructure/event"
	"github.com/pms/channelsync/internal/infrastructure/logger"
	"github.com/pms/channelsync/internal/infrastructure/persistence"
	"github.com/pms/channelsync/internal/infrastructure/queue"
	"github.com/pms/channelsync/internal/infrastructure/scheduler"
	"github.com/pms/channelsync/internal/infrastructure/telemetry"
	"github.com/pms/channelsync/internal/interfaces/http/handler"
	"github.com/pms/channelsync/internal/interfaces/http/middleware"
	"github.com/pms/channelsync/internal/interfaces/http/router"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting PMS channel sync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Int("backends", len(cfg.Backends)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		Level:             logger.ParseLevel(cfg.Telemetry.LogsLevel),
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer func() {
		if err := loggerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()
	log = logger.Tee(log, loggerProvider.Core())

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileTypes:      cfg.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if cfg.Profiling.SpanProfiles && profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()
	meter := meterProvider.Meter(telemetry.TracerName)

	syncMetrics, err := telemetry.NewSyncMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.App.Env == "development",
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        "postgresql",
	}, log)
	if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Repositories
	bindingRepo := persistence.NewGormBindingRepository(db.DB)
	entityStore := persistence.NewGormEntityStore(db.DB)
	availabilityRepo := persistence.NewGormAvailabilityRepository(db.DB)
	restrictionRepo := persistence.NewGormRestrictionRepository(db.DB)
	pricelistRepo := persistence.NewGormPricelistItemRepository(db.DB)
	issueRepo := persistence.NewGormIssueRepository(db.DB)
	taskRepo := queue.NewGormTaskRepository(db.DB)
	taskQueue := queue.NewQueue(taskRepo, cfg.Queue.MaxRetries)

	deliveryStore, err := cache.NewDeliveryStore(ctx, cfg.Redis, cfg.Sync.WebhookDedupeStrict, log)
	if err != nil {
		log.Fatal("Failed to create webhook delivery store", zap.Error(err))
	}
	defer func() {
		if err := deliveryStore.Close(); err != nil {
			log.Error("Error closing delivery store", zap.Error(err))
		}
	}()

	// Backends and pipelines
	registry := channelsync.NewRegistry()
	if err := channelsync.RegisterDefaultPipelines(registry); err != nil {
		log.Fatal("Failed to register pipelines", zap.Error(err))
	}
	connectors, err := connector.Build(cfg.Backends, syncMetrics)
	if err != nil {
		log.Fatal("Failed to build backend connectors", zap.Error(err))
	}
	for _, conn := range connectors {
		registry.RegisterConnector(conn)
		log.Info("Backend registered",
			zap.String("backend_id", conn.Backend().ID),
			zap.String("kind", string(conn.Backend().Kind)),
		)
	}

	// Issue notifications
	notifier := event.NewBroadcaster(log)
	notifier.Subscribe(event.NewLogNotifier(log))
	if cfg.Broker.Enabled {
		amqpNotifier := event.NewAMQPNotifier(event.AMQPConfig{
			URL:      cfg.Broker.URL,
			Exchange: cfg.Broker.Exchange,
		}, log)
		defer func() {
			if err := amqpNotifier.Close(); err != nil {
				log.Error("Error closing AMQP notifier", zap.Error(err))
			}
		}()
		notifier.Subscribe(amqpNotifier)
		log.Info("Issue notifications published to AMQP", zap.String("exchange", cfg.Broker.Exchange))
	}

	// Application services
	var defaultPlanID uuid.UUID
	if cfg.Sync.DefaultAvailPlanID != "" {
		defaultPlanID, err = uuid.Parse(cfg.Sync.DefaultAvailPlanID)
		if err != nil {
			log.Fatal("Invalid sync.default_avail_plan_id", zap.Error(err))
		}
	}

	issueService := channelsync.NewIssueService(issueRepo, notifier, syncMetrics, log)
	importer := channelsync.NewRecordImporter(registry, bindingRepo, entityStore, issueService, syncMetrics, log)
	exporter := channelsync.NewRecordExporter(registry, bindingRepo, entityStore, issueService, syncMetrics, log)
	batchExporter := channelsync.NewBatchExporter(registry, exporter, bindingRepo, entityStore, taskQueue, log)
	timeSeries := channelsync.NewTimeSeriesExporter(registry, bindingRepo, availabilityRepo, restrictionRepo,
		pricelistRepo, issueService, syncMetrics, log)
	resolver := channelsync.NewResolver(channelsync.ResolverConfig{
		DefaultPlanID: defaultPlanID,
		ExportDelay:   time.Minute,
	}, availabilityRepo, bindingRepo, registry, taskQueue, log)
	calendar := channelsync.NewCalendarImporter(registry, importer, bindingRepo, entityStore, resolver, issueService, log)
	planner := channelsync.NewExportPlanner(registry, batchExporter, taskQueue, cfg.Sync.ExportWindowDays, log)
	webhooks := channelsync.NewWebhookService(channelsync.WebhookConfig{
		DedupeTTL: cfg.Sync.WebhookDedupeTTL,
	}, registry, taskQueue, deliveryStore, log)
	taskHandlers := channelsync.NewTaskHandlers(importer, exporter, timeSeries, calendar, issueService, log)

	// Worker pool
	if cfg.Queue.Enabled {
		pool := queue.NewPool(taskRepo, queue.PoolConfig{
			Workers:          cfg.Queue.Workers,
			PollInterval:     cfg.Queue.PollInterval,
			BatchSize:        cfg.Queue.BatchSize,
			JobTimeout:       cfg.Queue.JobTimeout,
			StaleAfter:       cfg.Queue.StaleAfter,
			Backoff:          shared.BackoffPolicy{Base: cfg.Queue.BackoffBase, Max: cfg.Queue.BackoffMax},
			CleanupEnabled:   cfg.Queue.CleanupEnabled,
			CleanupRetention: cfg.Queue.CleanupRetention,
		}, log)
		for kind, fn := range taskHandlers.Handlers() {
			pool.Register(kind, queue.HandlerFunc(fn))
		}
		pool.OnDead(taskHandlers.DeadLetter)

		if err := pool.Start(ctx); err != nil {
			log.Fatal("Failed to start worker pool", zap.Error(err))
		}
		defer func() {
			if err := pool.Stop(context.Background()); err != nil {
				log.Error("Error stopping worker pool", zap.Error(err))
			}
		}()
		log.Info("Worker pool started",
			zap.Int("workers", cfg.Queue.Workers),
			zap.Duration("poll_interval", cfg.Queue.PollInterval),
		)
	}

	// Periodic exports
	cronTrigger, err := scheduler.NewCronTrigger(scheduler.CronTriggerConfig{
		ExportSchedule: cfg.Sync.ExportCronSchedule,
		StatsSchedule:  "@every 1m",
		JobTimeout:     cfg.Queue.JobTimeout,
	}, planner, log)
	if err != nil {
		log.Fatal("Failed to create cron trigger", zap.Error(err))
	}
	cronTrigger.WithQueueStats(taskRepo, syncMetrics)
	if err := cronTrigger.Start(ctx); err != nil {
		log.Fatal("Failed to start cron trigger", zap.Error(err))
	}
	defer func() {
		if err := cronTrigger.Stop(context.Background()); err != nil {
			log.Error("Error stopping cron trigger", zap.Error(err))
		}
	}()

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine, err := router.NewEngine(router.EngineConfig{
		Logger: log,
		Meter:  meter,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		Profiling:            profiler.IsEnabled(),
		TrustedProxies:       cfg.HTTP.TrustedProxies,
		MaxWebhookBytes:      cfg.HTTP.MaxWebhookBytes,
		WebhookRatePerSecond: cfg.HTTP.WebhookRatePerSecond,
		WebhookBurst:         cfg.HTTP.WebhookBurst,
	}, router.Handlers{
		System: handler.NewSystemHandler(cfg.App.Name, version, map[string]handler.Pinger{
			"database": handler.PingFunc(db.Ping),
		}),
		Webhook: handler.NewWebhookHandler(webhooks),
		Issue:   handler.NewIssueHandler(issueService),
		Task:    handler.NewTaskHandler(channelsync.NewTaskAdmin(taskRepo, log)),
		Backend: handler.NewBackendHandler(planner),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
