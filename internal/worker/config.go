// Package worker runs the background side of vonatfigyelo: it keeps the
// scheduler in step with schedule events and warms the timetable caches.
package worker

import (
	"strings"
	"time"
)

// WarmStation is a station whose timetable is kept warm.
type WarmStation struct {
	// Code is the Elvira station code.
	Code string

	// Name is for logs only.
	Name string
}

// WarmConfig holds configuration for the cache warm job.
type WarmConfig struct {
	// Stations are the timetables to prefetch for the current day.
	// If empty, uses DefaultWarmStations.
	Stations []WarmStation

	// Concurrency is the number of concurrent timetable fetches.
	// Default: 3
	Concurrency int

	// Timeout is the timeout for each fetch.
	// Default: 30 seconds
	Timeout time.Duration

	// WarmDirectory prefetches the station catalogue.
	WarmDirectory bool

	// WarmRealtime prefetches the live train map.
	WarmRealtime bool
}

// DefaultWarmConfig returns the default warm configuration.
func DefaultWarmConfig() WarmConfig {
	return WarmConfig{
		Stations:      DefaultWarmStations(),
		Concurrency:   3,
		Timeout:       30 * time.Second,
		WarmDirectory: true,
		WarmRealtime:  true,
	}
}

// DefaultWarmStations returns the Budapest termini, where most commuter
// notifications start or end.
func DefaultWarmStations() []WarmStation {
	return []WarmStation{
		{Code: "005510017", Name: "Budapest-Keleti"},
		{Code: "005510009", Name: "Budapest-Nyugati"},
		{Code: "005510033", Name: "Budapest-Déli"},
	}
}

// ParseWarmStations parses a comma separated list of station codes.
func ParseWarmStations(s string) []WarmStation {
	var out []WarmStation
	for _, code := range strings.Split(s, ",") {
		code = strings.TrimSpace(code)
		if code != "" {
			out = append(out, WarmStation{Code: code, Name: code})
		}
	}
	return out
}
