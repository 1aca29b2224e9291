package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/channels"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/clock"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/handlers"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/runner"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/schedule"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/statushub"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/store"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/config"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/database"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/monitoring"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/redis"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/server"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("crier")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Crier (Publishing Orchestrator)")

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("crier", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("crier", version.Version, version.GitCommit)

	// Create custom metrics
	attempts := metricsCollector.NewCounter("publish_attempts_total", "Publish attempts by channel and outcome", []string{"channel", "outcome"})
	statusEvents := metricsCollector.NewCounter("status_events_total", "Status events propagated", []string{"scope", "status"})
	queueDepth := metricsCollector.NewGauge("due_queue_depth", "Jobs waiting in the scheduling index", []string{}).WithLabelValues()

	// Stores: postgres when DATABASE_URL is set, in-memory otherwise
	var (
		contentStore  store.ContentRepository
		jobStore      store.JobStore
		scheduleStore store.ScheduleStore
	)
	if dbURL := config.GetEnv("DATABASE_URL", ""); dbURL != "" {
		dbCfg := database.DefaultConfig()
		dbCfg.URL = dbURL
		db := database.MustConnect(dbCfg, logger)
		defer db.Close()

		if err := database.ApplySchema(context.Background(), db, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}

		pg := store.NewPostgres(db)
		contentStore, jobStore, scheduleStore = pg, pg, pg
		healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		mem := store.NewMemory()
		contentStore, jobStore, scheduleStore = mem, mem, mem
	}

	// Status hub
	hub := statushub.NewHub(logger)
	go hub.Run()

	// Snapshot store: redis when configured, in-memory otherwise
	var snapshots statushub.SnapshotStore = statushub.NewMemorySnapshots()
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		redisClient, err := redis.NewClientFromURL(context.Background(), redisURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()

		snapshotTTL := config.GetEnvDuration("SNAPSHOT_TTL", 24*time.Hour)
		snapshots = statushub.NewRedisSnapshots(redisClient, snapshotTTL)
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	}

	// Kafka firehose: optional
	var sink statushub.EventSink
	if brokersEnv := config.GetEnv("KAFKA_BROKERS", ""); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		clientID := config.GetEnv("KAFKA_CLIENT_ID", "crier")
		producer, err := statushub.NewProducer(brokers, clientID, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize Kafka producer")
		}
		defer producer.Close()

		sink = producer
		healthChecker.AddCheck("kafka", monitoring.KafkaHealthCheck(producer.GetClient()))
	}

	propagator := statushub.NewPropagator(hub, snapshots, sink, statusEvents, logger)

	// Channel adapters from environment: CHANNEL_BRIDGES=instagram=http://...,linkedin=http://...
	registry := channels.NewRegistry()
	bridges := config.GetEnv("CHANNEL_BRIDGES", "")
	if bridges == "" {
		logger.Warn("CHANNEL_BRIDGES not set, no channel adapters registered")
	}
	breakerCfg := channels.DefaultBreakerConfig()
	for _, pair := range strings.Split(bridges, ",") {
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok {
			logger.WithField("entry", pair).Fatal("CHANNEL_BRIDGES entries must be channel=url")
		}
		adapter := channels.NewWebhook(channels.WebhookConfig{
			Channel:     name,
			URL:         url,
			Token:       config.GetEnv("CHANNEL_BRIDGE_TOKEN", ""),
			Timeout:     config.GetEnvDuration("CHANNEL_PUBLISH_TIMEOUT", 30*time.Second),
			ConnRetries: config.GetEnvInt("CHANNEL_CONN_RETRIES", 2),
		})
		if err := registry.Register(channels.WithBreaker(adapter, breakerCfg, logger)); err != nil {
			logger.WithError(err).Fatal("Failed to register channel adapter")
		}
	}
	logger.WithField("channels", registry.IDs()).Info("Channel adapters registered")

	// Scheduling core
	clk := clock.Real{}
	index := schedule.NewIndex(clk)
	if _, err := schedule.RestoreIndex(context.Background(), jobStore, index, logger); err != nil {
		logger.WithError(err).Fatal("Failed to restore scheduling index")
	}
	coordinator := schedule.NewCoordinator(jobStore, scheduleStore, index, clk, logger)

	jobRunner := runner.New(jobStore, contentStore, registry, index, propagator, clk, runner.Config{
		RetryBackoffBase: config.GetEnvDuration("RETRY_BACKOFF_BASE", 30*time.Second),
		RetryBackoffMax:  config.GetEnvDuration("RETRY_BACKOFF_MAX", 15*time.Minute),
		PublishTimeout:   config.GetEnvDuration("PUBLISH_TIMEOUT", 60*time.Second),
		Attempts:         attempts,
	}, logger)

	dispatcher := runner.NewDispatcher(runner.DispatcherConfig{
		Runner:     jobRunner,
		Index:      index,
		Clock:      clk,
		Logger:     logger,
		Interval:   config.GetEnvDuration("DISPATCH_INTERVAL", time.Second),
		QueueDepth: queueDepth,
	})
	dispatcher.Start()

	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"CHANNEL_BRIDGES": bridges,
	}))
	healthChecker.AddCheck("scheduler", func() monitoring.CheckResult {
		depth := index.Len()
		result := monitoring.CheckResult{Status: monitoring.StatusHealthy}
		if next, ok := index.NextDue(); ok && clk.Now().Sub(next) > time.Minute {
			result.Status = monitoring.StatusDegraded
			result.Message = fmt.Sprintf("oldest due job is %s overdue with %d queued", clk.Now().Sub(next).Round(time.Second), depth)
		}
		return result
	})

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "crier", healthChecker, metricsCollector)

	apiHandlers := handlers.New(handlers.Config{
		Content:    contentStore,
		Jobs:       jobStore,
		Schedules:  scheduleStore,
		Registry:   registry,
		Index:      index,
		Coord:      coordinator,
		Propagator: propagator,
		Hub:        hub,
		Clock:      clk,
		Logger:     logger,
		MaxRetries: config.GetEnvInt("DEFAULT_MAX_RETRIES", 2),
	})
	apiHandlers.RegisterRoutes(router)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("crier", "18030")
	if err := server.Start(serverConfig, router, logger, dispatcher.Stop, hub.Stop); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
