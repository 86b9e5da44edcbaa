package notification_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonatfigyelo/vonatfigyelo/internal/notification"
)

func TestSchedule_WeeklyRoundTrip(t *testing.T) {
	in := notification.Weekly{Days: []int{1, 3, 5}, Time: "07:30"}

	data, err := notification.MarshalSchedule(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"weekly","days":[1,3,5],"time":"07:30"}`, string(data))

	out, err := notification.UnmarshalSchedule(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSchedule_OnceRoundTrip(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Budapest")
	require.NoError(t, err)
	in := notification.Once{Date: time.Date(2024, 3, 1, 7, 30, 0, 0, loc)}

	data, err := notification.MarshalSchedule(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"once","date":"2024-03-01T07:30:00+01:00"}`, string(data))

	out, err := notification.UnmarshalSchedule(data)
	require.NoError(t, err)
	once, ok := out.(notification.Once)
	require.True(t, ok)
	assert.True(t, in.Date.Equal(once.Date))
}

func TestUnmarshalSchedule_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown type", `{"type":"daily"}`},
		{"missing type", `{"days":[1]}`},
		{"once without date", `{"type":"once"}`},
		{"not json", `weekly`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := notification.UnmarshalSchedule([]byte(tt.data))
			assert.ErrorIs(t, err, notification.ErrInvalidSchedule)
		})
	}
}

func TestWeekly_Validate(t *testing.T) {
	assert.NoError(t, notification.Weekly{Days: []int{0, 6}, Time: "23:59"}.Validate())
	assert.ErrorIs(t, notification.Weekly{Time: "07:30"}.Validate(), notification.ErrInvalidSchedule)
	assert.ErrorIs(t, notification.Weekly{Days: []int{7}, Time: "07:30"}.Validate(), notification.ErrInvalidSchedule)
	assert.ErrorIs(t, notification.Weekly{Days: []int{1}, Time: "24:00"}.Validate(), notification.ErrInvalidSchedule)
	assert.ErrorIs(t, notification.Once{}.Validate(), notification.ErrInvalidSchedule)
}

func TestWeekly_Clock(t *testing.T) {
	h, m, err := notification.Weekly{Time: "7:05"}.Clock()
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 5, m)
}

func TestWeekly_Normalized(t *testing.T) {
	w := notification.Weekly{Days: []int{5, 1, 3, 1}, Time: "07:30"}.Normalized()
	assert.Equal(t, []int{1, 3, 5}, w.Days)
}

func TestNotification_JSON(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	in := notification.Notification{
		ID:        7,
		Train:     "2613",
		Schedule:  notification.Weekly{Days: []int{1, 2}, Time: "06:45"},
		ChatID:    42,
		CreatedAt: created,
		UpdatedAt: created,
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out notification.Notification
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Train, out.Train)
	assert.Equal(t, in.ChatID, out.ChatID)
	assert.Equal(t, in.Schedule, out.Schedule)
	assert.False(t, out.IsOnce())
}
