package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
)

// StationDirectory is the cached station catalogue.
type StationDirectory interface {
	List(ctx context.Context) (map[string]mav.Station, error)
}

// DayTimetables is the cached per-day timetable source.
type DayTimetables interface {
	GetDayWindow(ctx context.Context, stationCode string, date time.Time) ([]mav.Train, error)
}

// ActiveTrains is the cached live train map.
type ActiveTrains interface {
	GetActiveTrains(ctx context.Context) ([]mav.RealtimeTrain, error)
}

// WarmJob prefetches the caches a burst of fired notifications will hit.
type WarmJob struct {
	config     WarmConfig
	logger     zerolog.Logger
	directory  StationDirectory
	timetables DayTimetables
	trains     ActiveTrains
	now        func() time.Time

	mu   sync.RWMutex
	last *WarmResult
	runs int64
}

// WarmJobConfig holds configuration for creating a WarmJob.
type WarmJobConfig struct {
	Config     WarmConfig
	Logger     zerolog.Logger
	Directory  StationDirectory
	Timetables DayTimetables
	Trains     ActiveTrains
	Now        func() time.Time
}

// NewWarmJob creates a new cache warm job.
func NewWarmJob(cfg WarmJobConfig) *WarmJob {
	config := cfg.Config
	if len(config.Stations) == 0 {
		config.Stations = DefaultWarmStations()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &WarmJob{
		config:     config,
		logger:     cfg.Logger.With().Str("job", "cache_warm").Logger(),
		directory:  cfg.Directory,
		timetables: cfg.Timetables,
		trains:     cfg.Trains,
		now:        cfg.Now,
	}
}

// WarmResult contains the result of a warm run.
type WarmResult struct {
	StartTime  time.Time
	Duration   time.Duration
	Stations   int
	Successful int
	Failed     int
	Errors     []WarmError
}

// WarmError is one failed prefetch.
type WarmError struct {
	Target string
	Error  string
}

// Run warms the directory, the configured station timetables and the live map.
func (j *WarmJob) Run(ctx context.Context) *WarmResult {
	start := j.now()
	result := &WarmResult{StartTime: start, Stations: len(j.config.Stations)}

	j.logger.Info().
		Int("stations", result.Stations).
		Int("concurrency", j.config.Concurrency).
		Msg("starting cache warm job")

	if j.config.WarmDirectory && j.directory != nil {
		j.step(ctx, result, "directory", func(ctx context.Context) error {
			_, err := j.directory.List(ctx)
			return err
		})
	}

	if j.timetables != nil {
		j.warmTimetables(ctx, start, result)
	}

	if j.config.WarmRealtime && j.trains != nil {
		j.step(ctx, result, "realtime", func(ctx context.Context) error {
			_, err := j.trains.GetActiveTrains(ctx)
			return err
		})
	}

	result.Duration = j.now().Sub(start)

	j.mu.Lock()
	j.last = result
	j.runs++
	j.mu.Unlock()

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("cache warm job completed")

	return result
}

func (j *WarmJob) warmTimetables(ctx context.Context, day time.Time, result *WarmResult) {
	stations := make(chan WarmStation, len(j.config.Stations))
	errs := make(chan *WarmError, len(j.config.Stations))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for st := range stations {
				if ctx.Err() != nil {
					errs <- &WarmError{Target: st.Code, Error: ctx.Err().Error()}
					continue
				}
				errs <- j.warmStation(ctx, st, day)
			}
		}()
	}

	for _, st := range j.config.Stations {
		stations <- st
	}
	close(stations)

	go func() {
		wg.Wait()
		close(errs)
	}()

	for e := range errs {
		if e == nil {
			result.Successful++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, *e)
	}
}

func (j *WarmJob) warmStation(ctx context.Context, st WarmStation, day time.Time) *WarmError {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	if _, err := j.timetables.GetDayWindow(ctx, st.Code, day); err != nil {
		j.logger.Warn().Err(err).Str("station", st.Name).Msg("timetable warm failed")
		return &WarmError{Target: st.Code, Error: err.Error()}
	}
	return nil
}

func (j *WarmJob) step(ctx context.Context, result *WarmResult, target string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		j.logger.Warn().Err(err).Str("target", target).Msg("warm step failed")
		result.Failed++
		result.Errors = append(result.Errors, WarmError{Target: target, Error: err.Error()})
		return
	}
	result.Successful++
}

// MetricsSnapshot returns a summary of past runs for the health endpoint.
func (j *WarmJob) MetricsSnapshot() map[string]any {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := map[string]any{"runs": j.runs}
	if j.last != nil {
		out["last_run_at"] = j.last.StartTime
		out["last_duration"] = j.last.Duration.String()
		out["last_successful"] = j.last.Successful
		out["last_failed"] = j.last.Failed
	}
	return out
}
