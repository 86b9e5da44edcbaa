// Package main provides the entrypoint for the vonatfigyelo API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api"
	"github.com/vonatfigyelo/vonatfigyelo/internal/api/handler"
	"github.com/vonatfigyelo/vonatfigyelo/internal/api/middleware"
	"github.com/vonatfigyelo/vonatfigyelo/internal/app"
	"github.com/vonatfigyelo/vonatfigyelo/internal/auth"
	"github.com/vonatfigyelo/vonatfigyelo/internal/dispatcher"
	"github.com/vonatfigyelo/vonatfigyelo/internal/notification"
	"github.com/vonatfigyelo/vonatfigyelo/internal/scheduler"
	"github.com/vonatfigyelo/vonatfigyelo/internal/telemetry"
	"github.com/vonatfigyelo/vonatfigyelo/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "vonatfigyelo-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting vonatfigyelo API")

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryCfg := telemetry.ConfigFromEnv(serviceName, Version)
	tp, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if telemetryCfg.Enabled {
		log.Info().Str("otlp_endpoint", telemetryCfg.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	appMetrics, err := telemetry.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	cfg := app.ConfigFromEnv()
	mavServices, err := app.NewMAV(cfg, appMetrics, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up MÁV clients")
	}

	repo, pool, err := app.OpenStore(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open notification store")
	}
	if pool != nil {
		defer pool.Close()
	}

	jwtCfg, fromEnv := auth.ConfigFromEnv()
	if !fromEnv {
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	tokens := auth.NewJWTService(jwtCfg)

	ops := handler.OpsConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Upstreams: mavServices.Upstreams,
		Caches:    mavServices.CacheStats,
	}
	if pool != nil {
		ops.Database = pool
	}

	// With Pub/Sub the worker owns the timers and the API only announces
	// changes. Without it this process schedules and dispatches itself.
	var timers notification.Scheduler
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		topic := os.Getenv("PUBSUB_TOPIC")
		if topic == "" {
			topic = "notification-schedules"
		}
		publisher, err := worker.NewPublisher(ctx, worker.PublisherConfig{
			ProjectID: projectID,
			Topic:     topic,
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Pub/Sub publisher")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Pub/Sub publisher")
			}
		}()
		timers = publisher
		log.Info().Str("project", projectID).Str("topic", topic).Msg("schedule changes go to Pub/Sub")
	} else {
		messenger, err := app.NewMessenger(cfg, mavServices.Upstreams, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up messaging")
		}
		sched := scheduler.New(scheduler.Config{
			Store:    repo,
			Location: mavServices.Location,
			Logger:   log,
			Metrics:  appMetrics,
		})
		sched.SetHandler(dispatcher.New(dispatcher.Config{
			Trains:    mavServices.Trains,
			Scheduler: sched,
			Store:     repo,
			Messenger: messenger,
			Logger:    log,
			Metrics:   appMetrics,
		}))
		if err := sched.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start scheduler")
		}
		defer sched.Stop()
		timers = sched
		ops.ScheduledJobs = func() int { return len(sched.Keys()) }
		log.Info().Msg("scheduler running in-process")
	}

	router := api.NewRouter(api.RouterConfig{
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     httpMetrics,
		Tokens:      tokens,
		Stations:    mavServices.Stations,
		Timetables:  mavServices.Timetables,
		Trains:      mavServices.Trains,
		Notifications: notification.NewService(notification.ServiceConfig{
			Repository: repo,
			Scheduler:  timers,
			Logger:     log,
		}),
		Ops: ops,
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
