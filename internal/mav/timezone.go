package mav

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LoadTimezone resolves the configured network timezone. An empty name selects
// DefaultTimezone; an unknown one is logged and also falls back to it.
func LoadTimezone(name string, logger zerolog.Logger) (*time.Location, error) {
	if name != "" {
		loc, err := time.LoadLocation(name)
		if err == nil {
			return loc, nil
		}
		logger.Error().Err(err).Str("timezone", name).Str("fallback", DefaultTimezone).
			Msg("invalid timezone, using default")
	}

	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("loading default timezone: %w", err)
	}
	return loc, nil
}
