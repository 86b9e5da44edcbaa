// Package realtime tracks the trains currently running on the network.
package realtime

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/cache"
	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
	"github.com/vonatfigyelo/vonatfigyelo/internal/mav/vonatinfo"
	"github.com/vonatfigyelo/vonatfigyelo/pkg/geo"
)

// Provider fetches the live train feed.
type Provider interface {
	ActiveTrains(ctx context.Context) (*vonatinfo.Snapshot, error)
}

// Config holds configuration for the tracker.
type Config struct {
	Provider Provider
	Logger   zerolog.Logger

	// TTL is how long a snapshot is reused. Default: 20 seconds
	TTL time.Duration

	Recorder cache.Recorder
	Now      func() time.Time
}

// Tracker serves cached snapshots of the live feed.
type Tracker struct {
	provider Provider
	logger   zerolog.Logger
	cache    *cache.Cache[struct{}, *vonatinfo.Snapshot]
}

// NewTracker creates a realtime tracker.
func NewTracker(cfg Config) *Tracker {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 20 * time.Second
	}
	return &Tracker{
		provider: cfg.Provider,
		logger:   cfg.Logger.With().Str("component", "realtime").Logger(),
		cache: cache.New[struct{}, *vonatinfo.Snapshot](cache.Config{
			Name:     "realtime.trains",
			TTL:      ttl,
			Recorder: cfg.Recorder,
			Now:      cfg.Now,
		}),
	}
}

// GetActiveTrains returns the current snapshot. Callers must not modify it.
func (t *Tracker) GetActiveTrains(ctx context.Context) ([]mav.RealtimeTrain, error) {
	snapshot, err := t.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Trains, nil
}

// FindByCode looks a running train up by its code, ignoring case and surrounding blanks.
func (t *Tracker) FindByCode(ctx context.Context, code string) (mav.RealtimeTrain, bool, error) {
	trains, err := t.GetActiveTrains(ctx)
	if err != nil {
		return mav.RealtimeTrain{}, false, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, train := range trains {
		if train.Code == code {
			return train, true, nil
		}
	}
	return mav.RealtimeTrain{}, false, nil
}

// NearbyOptions narrows a Nearby query. Zero values select the defaults.
type NearbyOptions struct {
	// Operators to include. Default: MÁV and GYSEV
	Operators []mav.Operator

	// MaxDistanceKm excludes trains at or beyond this distance. Default: 100
	MaxDistanceKm float64

	// Limit caps the number of results. Default: 6
	Limit int
}

// NearbyTrain is a running train with its distance from the query point.
type NearbyTrain struct {
	mav.RealtimeTrain
	DistanceKm float64 `json:"distanceKm"`
}

// Nearby returns the running trains closest to point, nearest first.
func (t *Tracker) Nearby(ctx context.Context, point geo.Point, opts NearbyOptions) ([]NearbyTrain, error) {
	if len(opts.Operators) == 0 {
		opts.Operators = []mav.Operator{mav.OperatorMAV, mav.OperatorGYSEV}
	}
	if opts.MaxDistanceKm <= 0 {
		opts.MaxDistanceKm = 100
	}
	if opts.Limit <= 0 {
		opts.Limit = 6
	}

	trains, err := t.GetActiveTrains(ctx)
	if err != nil {
		return nil, err
	}

	nearby := make([]NearbyTrain, 0)
	for _, train := range trains {
		if !slices.Contains(opts.Operators, train.Operator) {
			continue
		}
		d := geo.DistanceKm(point, geo.Point{Lat: train.Coordinates.Lat, Lon: train.Coordinates.Lon})
		if d >= opts.MaxDistanceKm {
			continue
		}
		nearby = append(nearby, NearbyTrain{RealtimeTrain: train, DistanceKm: d})
	}

	sort.SliceStable(nearby, func(i, j int) bool { return nearby[i].DistanceKm < nearby[j].DistanceKm })
	if len(nearby) > opts.Limit {
		nearby = nearby[:opts.Limit]
	}
	return nearby, nil
}

// Stats returns cache occupancy.
func (t *Tracker) Stats() cache.Stats {
	return t.cache.Stats()
}

// Snapshot returns the cached feed snapshot with its fetch time.
// Callers must not modify it.
func (t *Tracker) Snapshot(ctx context.Context) (*vonatinfo.Snapshot, error) {
	return t.cache.Get(ctx, struct{}{}, func(ctx context.Context) (*vonatinfo.Snapshot, error) {
		s, err := t.provider.ActiveTrains(ctx)
		if err != nil {
			return nil, err
		}
		t.logger.Debug().Int("trains", len(s.Trains)).Int("skipped", s.SkippedRecords).Msg("realtime snapshot refreshed")
		return s, nil
	})
}
