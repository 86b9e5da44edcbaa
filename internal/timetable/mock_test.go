package timetable_test

import (
	"context"
	"sync"
	"time"

	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
)

// mockProvider serves canned Elvira data and records what was asked for.
type mockProvider struct {
	mu sync.Mutex

	stations    []mav.StationRecord
	stationsErr error

	// days maps a local date (2006-01-02) to that day's schedule.
	days    map[string]*mav.StationSchedule
	dayErr  error
	loc     *time.Location
	fetched []string

	stops     []mav.TrainStop
	stopCalls int

	stationCalls int
}

func (m *mockProvider) StationList(_ context.Context) ([]mav.StationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stationCalls++
	if m.stationsErr != nil {
		return nil, m.stationsErr
	}
	return m.stations, nil
}

func (m *mockProvider) StationTimetable(_ context.Context, _ string, from time.Time) (*mav.StationSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := from.In(m.loc).Format(time.DateOnly)
	m.fetched = append(m.fetched, day)
	if m.dayErr != nil {
		return nil, m.dayErr
	}
	s, ok := m.days[day]
	if !ok {
		return &mav.StationSchedule{}, nil
	}
	// Hand out copies so callers cannot alias the fixture.
	return &mav.StationSchedule{
		Arrivals:   append([]mav.Train(nil), s.Arrivals...),
		Departures: append([]mav.Train(nil), s.Departures...),
	}, nil
}

func (m *mockProvider) TrainStops(_ context.Context, _ string) ([]mav.TrainStop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	return append([]mav.TrainStop(nil), m.stops...), nil
}

func (m *mockProvider) fetchedDays() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetched...)
}

func departing(code string, at time.Time) mav.Train {
	timing, err := mav.NewTiming(at, time.Time{}, time.Time{}, time.Time{}, "")
	if err != nil {
		panic(err)
	}
	return mav.Train{Timing: timing, Code: code}
}

func arriving(code string, at time.Time) mav.Train {
	timing, err := mav.NewTiming(time.Time{}, at, time.Time{}, time.Time{}, "")
	if err != nil {
		panic(err)
	}
	return mav.Train{Timing: timing, Code: code}
}

func codes(trains []mav.Train) []string {
	out := make([]string, 0, len(trains))
	for _, t := range trains {
		out = append(out, t.Code)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingRecorder struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{hits: map[string]int{}, misses: map[string]int{}}
}

func (r *countingRecorder) RecordCacheLookup(name string, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits[name]++
	} else {
		r.misses[name]++
	}
}
