// Package app assembles the components shared by the API and worker processes.
package app

import (
	"context"
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // the network timezone must resolve in minimal containers

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/vonatfigyelo/vonatfigyelo/internal/cache"
	"github.com/vonatfigyelo/vonatfigyelo/internal/database"
	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
	"github.com/vonatfigyelo/vonatfigyelo/internal/mav/elvira"
	"github.com/vonatfigyelo/vonatfigyelo/internal/mav/vonatinfo"
	"github.com/vonatfigyelo/vonatfigyelo/internal/messaging"
	"github.com/vonatfigyelo/vonatfigyelo/internal/messaging/telegram"
	"github.com/vonatfigyelo/vonatfigyelo/internal/notification"
	"github.com/vonatfigyelo/vonatfigyelo/internal/provider/resilience"
	"github.com/vonatfigyelo/vonatfigyelo/internal/realtime"
	"github.com/vonatfigyelo/vonatfigyelo/internal/telemetry"
	"github.com/vonatfigyelo/vonatfigyelo/internal/timetable"
)

// Config holds the settings shared by both processes.
type Config struct {
	Timezone         string
	ElviraBaseURL    string
	VonatinfoBaseURL string

	TelegramToken    string
	TelegramAdminIDs string
}

// ConfigFromEnv reads MAV_TIMEZONE, ELVIRA_BASE_URL, VONATINFO_BASE_URL,
// TELEGRAM_BOT_TOKEN and TELEGRAM_ADMIN_CHAT_IDS.
func ConfigFromEnv() Config {
	return Config{
		Timezone:         os.Getenv("MAV_TIMEZONE"),
		ElviraBaseURL:    os.Getenv("ELVIRA_BASE_URL"),
		VonatinfoBaseURL: os.Getenv("VONATINFO_BASE_URL"),
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAdminIDs: os.Getenv("TELEGRAM_ADMIN_CHAT_IDS"),
	}
}

// MAV bundles the cached views of the MÁV upstreams.
type MAV struct {
	Location   *time.Location
	Upstreams  *resilience.Registry
	Stations   *timetable.Directory
	Timetables *timetable.Aggregator
	Trains     *realtime.Tracker
}

// NewMAV creates the upstream clients and the caches in front of them.
func NewMAV(cfg Config, metrics *telemetry.Metrics, logger zerolog.Logger) (*MAV, error) {
	loc, err := mav.LoadTimezone(cfg.Timezone, logger)
	if err != nil {
		return nil, err
	}

	registry := resilience.NewRegistry()

	elviraClient := elvira.NewClient(elvira.ClientConfig{
		BaseURL:    cfg.ElviraBaseURL,
		HTTPClient: upstreamClient(elvira.ProviderName, registry, logger),
		Metrics:    metrics,
		Logger:     logger,
	})
	vonatinfoClient := vonatinfo.NewClient(vonatinfo.ClientConfig{
		BaseURL:    cfg.VonatinfoBaseURL,
		HTTPClient: upstreamClient(vonatinfo.ProviderName, registry, logger),
		Metrics:    metrics,
		Logger:     logger,
	})

	directory := timetable.NewDirectory(timetable.DirectoryConfig{
		Provider: elviraClient,
		Logger:   logger,
		Recorder: metrics,
	})

	return &MAV{
		Location:  loc,
		Upstreams: registry,
		Stations:  directory,
		Timetables: timetable.NewAggregator(timetable.Config{
			Provider:  elviraClient,
			Directory: directory,
			Location:  loc,
			Logger:    logger,
			Recorder:  metrics,
		}),
		Trains: realtime.NewTracker(realtime.Config{
			Provider: vonatinfoClient,
			Logger:   logger,
			Recorder: metrics,
		}),
	}, nil
}

// CacheStats reports every cache in front of the upstreams.
func (m *MAV) CacheStats() []cache.Stats {
	stats := []cache.Stats{m.Stations.Stats(), m.Trains.Stats()}
	return append(stats, m.Timetables.Stats()...)
}

// NewMessenger returns the Telegram bot client, or a logging stand-in when no
// bot token is configured.
func NewMessenger(cfg Config, registry *resilience.Registry, logger zerolog.Logger) (messaging.Service, error) {
	if cfg.TelegramToken == "" {
		logger.Warn().Msg("TELEGRAM_BOT_TOKEN not set, messages are only logged")
		return messaging.NewLogSender(logger), nil
	}
	admins, err := telegram.ParseChatIDs(cfg.TelegramAdminIDs)
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_ADMIN_CHAT_IDS: %w", err)
	}

	rc := resilience.DefaultConfig(telegram.ProviderName)
	rc.MaxRetries = 1
	rc.Registry = registry
	return telegram.NewClient(telegram.ClientConfig{
		Token:        cfg.TelegramToken,
		AdminChatIDs: admins,
		HTTPClient:   resilience.NewClient(rc),
		Logger:       logger,
	}), nil
}

// OpenStore connects to PostgreSQL when one is configured and falls back to
// the in-memory store otherwise. The returned pool is nil for the fallback.
func OpenStore(ctx context.Context, logger zerolog.Logger) (notification.Repository, *pgxpool.Pool, error) {
	if !database.Enabled() {
		logger.Warn().Msg("no database configured, notifications are kept in memory")
		return notification.NewInMemoryRepository(), nil, nil
	}

	cfg := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	repo := notification.NewPostgresRepository(pool, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("database", cfg.Database).Msg("database connected")
	return repo, pool, nil
}

func upstreamClient(name string, registry *resilience.Registry, logger zerolog.Logger) *resilience.Client {
	cfg := resilience.DefaultConfig(name)
	cfg.Registry = registry
	cfg.Breaker.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn().Str("upstream", name).Str("from", from.String()).Str("to", to.String()).
			Msg("circuit breaker state changed")
	}
	return resilience.NewClient(cfg)
}
