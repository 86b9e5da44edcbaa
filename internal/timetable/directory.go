// Package timetable serves station timetables from the Elvira upstream:
// the station directory, per-day schedules and multi-day windows, all cached.
package timetable

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/cache"
	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
)

// StationProvider lists the upstream station catalogue.
type StationProvider interface {
	StationList(ctx context.Context) ([]mav.StationRecord, error)
}

// DirectoryConfig holds configuration for the station directory.
type DirectoryConfig struct {
	Provider StationProvider
	Logger   zerolog.Logger

	// TTL is how long the catalogue is cached. Default: 2 hours
	TTL time.Duration

	Recorder cache.Recorder
	Now      func() time.Time
}

// Directory is the cached set of canonical railway stations.
type Directory struct {
	provider StationProvider
	logger   zerolog.Logger
	cache    *cache.Cache[struct{}, *stationIndex]
}

type stationIndex struct {
	byCode map[string]mav.Station
	byName map[string]mav.Station
}

// NewDirectory creates a station directory.
func NewDirectory(cfg DirectoryConfig) *Directory {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 2 * time.Hour
	}
	return &Directory{
		provider: cfg.Provider,
		logger:   cfg.Logger.With().Str("component", "station_directory").Logger(),
		cache: cache.New[struct{}, *stationIndex](cache.Config{
			Name:     "stations",
			TTL:      ttl,
			Recorder: cfg.Recorder,
			Now:      cfg.Now,
		}),
	}
}

// List returns every canonical station keyed by code. Aliases and stations
// without train service are excluded. The returned map is the caller's.
func (d *Directory) List(ctx context.Context) (map[string]mav.Station, error) {
	idx, err := d.index(ctx)
	if err != nil {
		return nil, err
	}
	return maps.Clone(idx.byCode), nil
}

// Get looks a station up by code.
func (d *Directory) Get(ctx context.Context, code string) (mav.Station, error) {
	idx, err := d.index(ctx)
	if err != nil {
		return mav.Station{}, err
	}
	s, ok := idx.byCode[code]
	if !ok {
		return mav.Station{}, mav.ErrStationNotFound
	}
	return s, nil
}

// FindByName matches a station name exactly, ignoring case.
func (d *Directory) FindByName(ctx context.Context, name string) (mav.Station, bool, error) {
	idx, err := d.index(ctx)
	if err != nil {
		return mav.Station{}, false, err
	}
	s, ok := idx.byName[strings.ToLower(strings.TrimSpace(name))]
	return s, ok, nil
}

// Canonicalize replaces a Hungarian station reference with its directory entry.
// Timetable rows can point at alias stations; foreign stations and lookups that
// fail are returned unchanged.
func (d *Directory) Canonicalize(ctx context.Context, s mav.Station) mav.Station {
	if s.CountryCode != "HU" {
		return s
	}
	idx, err := d.index(ctx)
	if err != nil {
		d.logger.Debug().Err(err).Str("station", s.Code).Msg("station canonicalization skipped")
		return s
	}
	if canonical, ok := idx.byCode[s.Code]; ok {
		return canonical
	}
	return s
}

// Stats returns cache occupancy.
func (d *Directory) Stats() cache.Stats {
	return d.cache.Stats()
}

func (d *Directory) index(ctx context.Context) (*stationIndex, error) {
	return d.cache.Get(ctx, struct{}{}, d.fetch)
}

func (d *Directory) fetch(ctx context.Context) (*stationIndex, error) {
	records, err := d.provider.StationList(ctx)
	if err != nil {
		return nil, err
	}

	idx := &stationIndex{
		byCode: make(map[string]mav.Station, len(records)),
		byName: make(map[string]mav.Station, len(records)),
	}
	for _, r := range records {
		if !r.IsTrainStation() {
			continue
		}
		idx.byCode[r.Code] = r.Station
		name := strings.ToLower(r.Name)
		if _, dup := idx.byName[name]; !dup {
			idx.byName[name] = r.Station
		}
	}

	d.logger.Info().Int("records", len(records)).Int("stations", len(idx.byCode)).Msg("station directory refreshed")
	return idx, nil
}
