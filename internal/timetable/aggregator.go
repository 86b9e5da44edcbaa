package timetable

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/cache"
	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
)

// ErrInvalidWindow is returned for a window longer than the configured maximum.
var ErrInvalidWindow = errors.New("invalid timetable window")

// Provider is the timetable upstream.
type Provider interface {
	// StationTimetable returns the station's schedule from the given instant
	// until the end of that day.
	StationTimetable(ctx context.Context, stationCode string, from time.Time) (*mav.StationSchedule, error)

	// TrainStops returns the stops of one train run.
	TrainStops(ctx context.Context, vehicleID string) ([]mav.TrainStop, error)
}

// Config holds configuration for the aggregator.
type Config struct {
	Provider Provider

	// Directory canonicalizes alias stations in results. Optional.
	Directory *Directory

	// Location is the timezone days are cut in. Default: Europe/Budapest
	Location *time.Location

	Logger zerolog.Logger

	// DayTTL caches one station-day. Default: 2 hours
	DayTTL time.Duration

	// WindowTTL caches one window query. Default: 30 seconds
	WindowTTL time.Duration

	// DefaultHours applies when a window query passes hours <= 0. Default: 24
	DefaultHours int

	// MaxHours bounds a window query. Default: 168
	MaxHours int

	Recorder cache.Recorder
	Now      func() time.Time
}

type dayKey struct {
	station string
	day     string
}

type windowKey struct {
	station string
	from    int64
	hours   int
}

// Aggregator builds deduplicated, ordered station timetables from per-day fetches.
type Aggregator struct {
	provider     Provider
	directory    *Directory
	loc          *time.Location
	logger       zerolog.Logger
	defaultHours int
	maxHours     int

	days    *cache.Cache[dayKey, []mav.Train]
	windows *cache.Cache[windowKey, []mav.Train]
}

// NewAggregator creates a timetable aggregator.
func NewAggregator(cfg Config) *Aggregator {
	if cfg.Location == nil {
		loc, err := time.LoadLocation(mav.DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
		cfg.Location = loc
	}
	if cfg.DayTTL == 0 {
		cfg.DayTTL = 2 * time.Hour
	}
	if cfg.WindowTTL == 0 {
		cfg.WindowTTL = 30 * time.Second
	}
	if cfg.DefaultHours <= 0 {
		cfg.DefaultHours = 24
	}
	if cfg.MaxHours <= 0 {
		cfg.MaxHours = 7 * 24
	}

	return &Aggregator{
		provider:     cfg.Provider,
		directory:    cfg.Directory,
		loc:          cfg.Location,
		logger:       cfg.Logger.With().Str("component", "timetable").Logger(),
		defaultHours: cfg.DefaultHours,
		maxHours:     cfg.MaxHours,
		days: cache.New[dayKey, []mav.Train](cache.Config{
			Name: "timetable.day", TTL: cfg.DayTTL, Recorder: cfg.Recorder, Now: cfg.Now,
		}),
		windows: cache.New[windowKey, []mav.Train](cache.Config{
			Name: "timetable.window", TTL: cfg.WindowTTL, Recorder: cfg.Recorder, Now: cfg.Now,
		}),
	}
}

// DefaultHours is the window length used when a query passes hours <= 0.
func (a *Aggregator) DefaultHours() int {
	return a.defaultHours
}

// Location returns the timezone days are cut in.
func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// GetDayWindow returns the trains of the local calendar day containing date:
// arrivals and departures merged, ordered by Timing.Before, one entry per train code.
// Callers must not modify the returned slice.
func (a *Aggregator) GetDayWindow(ctx context.Context, stationCode string, date time.Time) ([]mav.Train, error) {
	midnight := a.startOfDay(date)
	key := dayKey{station: stationCode, day: midnight.Format(time.DateOnly)}

	return a.days.Get(ctx, key, func(ctx context.Context) ([]mav.Train, error) {
		schedule, err := a.provider.StationTimetable(ctx, stationCode, midnight)
		if err != nil {
			return nil, err
		}
		trains := a.mergeDay(ctx, schedule)
		a.logger.Debug().Str("station", stationCode).Str("day", key.day).Int("trains", len(trains)).
			Msg("day timetable fetched")
		return trains, nil
	})
}

// GetWindow returns the trains whose effective time falls in [from, from+hours).
// Day timetables are fetched one by one starting with from's day, and no more
// days are fetched once a train at or after the window end has been seen.
// hours <= 0 selects the default window length.
func (a *Aggregator) GetWindow(ctx context.Context, stationCode string, from time.Time, hours int) ([]mav.Train, error) {
	if hours <= 0 {
		hours = a.defaultHours
	}
	if hours > a.maxHours {
		return nil, fmt.Errorf("%w: %d hours exceeds the %d hour maximum", ErrInvalidWindow, hours, a.maxHours)
	}

	from = from.Truncate(time.Minute)
	key := windowKey{station: stationCode, from: from.Unix(), hours: hours}

	return a.windows.Get(ctx, key, func(ctx context.Context) ([]mav.Train, error) {
		return a.collectWindow(ctx, stationCode, from, from.Add(time.Duration(hours)*time.Hour))
	})
}

// GetStops returns the stop list of a train run. It is not cached.
func (a *Aggregator) GetStops(ctx context.Context, vehicleID string) ([]mav.TrainStop, error) {
	stops, err := a.provider.TrainStops(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if a.directory != nil {
		for i := range stops {
			stops[i].Station = a.directory.Canonicalize(ctx, stops[i].Station)
		}
	}
	return stops, nil
}

// Stats returns the occupancy of the day and window caches.
func (a *Aggregator) Stats() []cache.Stats {
	return []cache.Stats{a.days.Stats(), a.windows.Stats()}
}

func (a *Aggregator) collectWindow(ctx context.Context, stationCode string, from, end time.Time) ([]mav.Train, error) {
	first := a.startOfDay(from)
	last := a.startOfDay(end.Add(-time.Nanosecond))
	maxDays := daysBetween(first, last) + 1

	seen := make(map[string]struct{})
	result := make([]mav.Train, 0)

	for i := 0; i < maxDays; i++ {
		day := time.Date(first.Year(), first.Month(), first.Day()+i, 0, 0, 0, 0, a.loc)
		trains, err := a.GetDayWindow(ctx, stationCode, day)
		if err != nil {
			return nil, err
		}

		for _, t := range trains {
			at := t.Time()
			if !at.Before(end) {
				sortTrains(result)
				return result, nil
			}
			if at.Before(from) {
				continue
			}
			if _, dup := seen[t.Code]; dup {
				continue
			}
			seen[t.Code] = struct{}{}
			result = append(result, t)
		}
	}

	sortTrains(result)
	return result, nil
}

func (a *Aggregator) mergeDay(ctx context.Context, schedule *mav.StationSchedule) []mav.Train {
	merged := make([]mav.Train, 0, len(schedule.Arrivals)+len(schedule.Departures))
	merged = append(merged, schedule.Arrivals...)
	merged = append(merged, schedule.Departures...)

	if a.directory != nil {
		for i := range merged {
			merged[i].StartStation = a.directory.Canonicalize(ctx, merged[i].StartStation)
			merged[i].EndStation = a.directory.Canonicalize(ctx, merged[i].EndStation)
		}
	}

	sortTrains(merged)

	seen := make(map[string]struct{}, len(merged))
	out := merged[:0]
	for _, t := range merged {
		if _, dup := seen[t.Code]; dup {
			continue
		}
		seen[t.Code] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (a *Aggregator) startOfDay(t time.Time) time.Time {
	local := t.In(a.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, a.loc)
}

// daysBetween counts calendar days from a to b, both local midnights.
// DST days are 23 or 25 hours long, so the hour count is rounded.
func daysBetween(a, b time.Time) int {
	return int((b.Sub(a).Hours() + 12) / 24)
}

func sortTrains(trains []mav.Train) {
	sort.SliceStable(trains, func(i, j int) bool {
		return trains[i].Before(trains[j].Timing)
	})
}
