package mav_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
)

func TestLoadTimezone(t *testing.T) {
	loc, err := mav.LoadTimezone("", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, mav.DefaultTimezone, loc.String())

	loc, err = mav.LoadTimezone("UTC", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	loc, err = mav.LoadTimezone("Mars/Olympus_Mons", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, mav.DefaultTimezone, loc.String())
}
