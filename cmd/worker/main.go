// Package main provides the entrypoint for the vonatfigyelo worker. The worker
// owns the notification timers: it loads every stored notification, applies
// schedule events from Pub/Sub and keeps the MÁV caches warm.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/app"
	"github.com/vonatfigyelo/vonatfigyelo/internal/dispatcher"
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
	const serviceName = "vonatfigyelo-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting vonatfigyelo worker")

	// The worker also exposes a health endpoint for Cloud Run.
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, Version))
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

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	cfg := app.ConfigFromEnv()
	mavServices, err := app.NewMAV(cfg, metrics, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up MÁV clients")
	}
	messenger, err := app.NewMessenger(cfg, mavServices.Upstreams, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up messaging")
	}

	repo, pool, err := app.OpenStore(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open notification store")
	}
	if pool != nil {
		defer pool.Close()
	}

	sched := scheduler.New(scheduler.Config{
		Store:    repo,
		Location: mavServices.Location,
		Logger:   log,
		Metrics:  metrics,
	})
	sched.SetHandler(dispatcher.New(dispatcher.Config{
		Trains:    mavServices.Trains,
		Scheduler: sched,
		Store:     repo,
		Messenger: messenger,
		Logger:    log,
		Metrics:   metrics,
	}))
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	warmCfg := worker.DefaultWarmConfig()
	if stations := os.Getenv("WARM_STATIONS"); stations != "" {
		warmCfg.Stations = worker.ParseWarmStations(stations)
	}
	warmJob := worker.NewWarmJob(worker.WarmJobConfig{
		Config:     warmCfg,
		Logger:     log,
		Directory:  mavServices.Stations,
		Timetables: mavServices.Timetables,
		Trains:     mavServices.Trains,
	})

	go runWarmJob(ctx, warmJob, warmInterval(log), log)

	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		subscription := os.Getenv("PUBSUB_SUBSCRIPTION")
		if subscription == "" {
			subscription = "notification-schedules-worker"
		}
		events := worker.NewEventHandler(worker.EventHandlerConfig{
			Store:     repo,
			Scheduler: sched,
			WarmJob:   warmJob,
			Logger:    log,
		})
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: subscription,
			Events:           events,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Pub/Sub handler")
		}
		defer func() {
			if err := handler.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Pub/Sub client")
			}
		}()

		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Pub/Sub handler stopped")
				stop()
			}
		}()
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set, schedule changes are only picked up on restart")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":        "healthy",
			"version":       Version,
			"scheduledJobs": len(sched.Keys()),
			"warm":          warmJob.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

// warmInterval reads WARM_INTERVAL. Zero disables periodic warming.
func warmInterval(log zerolog.Logger) time.Duration {
	raw := os.Getenv("WARM_INTERVAL")
	if raw == "" {
		return 30 * time.Minute
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.Warn().Str("value", raw).Msg("invalid WARM_INTERVAL, warming once")
		return 0
	}
	return d
}

// runWarmJob warms the caches at startup and then every interval.
func runWarmJob(ctx context.Context, job *worker.WarmJob, interval time.Duration, log zerolog.Logger) {
	job.Run(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if result := job.Run(ctx); result.Failed > 0 {
				log.Warn().
					Int("failed", result.Failed).
					Int("successful", result.Successful).
					Msg("periodic cache warm had failures")
			}
		}
	}
}
