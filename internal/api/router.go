// Package api provides the HTTP API of vonatfigyelo.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/handler"
	"github.com/vonatfigyelo/vonatfigyelo/internal/api/middleware"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Tokens validates the bearer tokens of the notification endpoints.
	Tokens middleware.TokenValidator

	Stations      handler.StationDirectory
	Timetables    handler.Timetables
	Trains        handler.LiveTrains
	Notifications handler.NotificationService
	Ops           handler.OpsConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "vonatfigyelo-api"
	}

	// Order matters: client address, ids and spans first so later
	// middleware can log them.
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))

	opsHandler := handler.NewOpsHandler(cfg.Ops)
	stationHandler := handler.NewStationHandler(cfg.Stations, cfg.Timetables, cfg.Logger)
	realtimeHandler := handler.NewRealtimeHandler(cfg.Trains, cfg.Logger)
	notificationHandler := handler.NewNotificationHandler(cfg.Notifications, cfg.Logger)

	upstreamRateLimit := middleware.RateLimitByIP(middleware.UpstreamRateLimit)
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(standardRateLimit).Get("/status", opsHandler.SystemStatus)
		})

		// Timetable lookups may hit Elvira on a cache miss.
		r.Group(func(r chi.Router) {
			r.Use(upstreamRateLimit)
			r.Get("/stations", stationHandler.ListStations)
			r.Get("/stations/{code}", stationHandler.GetStation)
			r.Get("/stations/{code}/timetable", stationHandler.GetTimetable)
			r.Get("/trains/{vehicleId}/stops", stationHandler.GetStops)
		})

		// The live feed is one cached snapshot for everyone.
		r.Route("/realtime", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/trains", realtimeHandler.ListTrains)
			r.Get("/trains/{code}", realtimeHandler.GetTrain)
			r.Get("/nearby", realtimeHandler.Nearby)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Tokens))
			r.Use(middleware.RateLimitByChat(middleware.ChatRateLimit))
			r.Get("/", notificationHandler.ListNotifications)
			r.Post("/", notificationHandler.CreateNotification)
			r.Get("/{id}", notificationHandler.GetNotification)
			r.Delete("/{id}", notificationHandler.DeleteNotification)
		})
	})

	return r
}
