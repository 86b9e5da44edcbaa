// Package notification stores train status notifications and keeps their
// scheduled jobs in step with the stored records.
package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"time"
)

// Notification errors.
var (
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidSchedule marks a schedule that cannot be turned into a fire rule.
	ErrInvalidSchedule = errors.New("invalid notification schedule")
)

// ScheduleType discriminates the Schedule variants.
type ScheduleType string

const (
	ScheduleOnce   ScheduleType = "once"
	ScheduleWeekly ScheduleType = "weekly"
)

// Schedule says when a notification fires. It is either Once or Weekly.
type Schedule interface {
	Type() ScheduleType
	Validate() error
}

// Once fires a single time, at the minute of Date.
type Once struct {
	Date time.Time
}

// Type implements Schedule.
func (Once) Type() ScheduleType { return ScheduleOnce }

// Validate implements Schedule.
func (o Once) Validate() error {
	if o.Date.IsZero() {
		return fmt.Errorf("%w: once schedule without date", ErrInvalidSchedule)
	}
	return nil
}

// Weekly fires on the listed weekdays (0 is Sunday, 6 is Saturday) at Time, "HH:MM".
type Weekly struct {
	Days []int
	Time string
}

// Type implements Schedule.
func (Weekly) Type() ScheduleType { return ScheduleWeekly }

var clockPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// Validate implements Schedule.
func (w Weekly) Validate() error {
	if len(w.Days) == 0 {
		return fmt.Errorf("%w: weekly schedule without days", ErrInvalidSchedule)
	}
	for _, d := range w.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: weekday %d out of range 0-6", ErrInvalidSchedule, d)
		}
	}
	if _, _, err := w.Clock(); err != nil {
		return err
	}
	return nil
}

// Clock parses Time.
func (w Weekly) Clock() (hour, minute int, err error) {
	m := clockPattern.FindStringSubmatch(w.Time)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidSchedule, w.Time)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// Normalized returns a copy with sorted, distinct days.
func (w Weekly) Normalized() Weekly {
	days := slices.Clone(w.Days)
	slices.Sort(days)
	return Weekly{Days: slices.Compact(days), Time: w.Time}
}

// Notification asks for the live status of one train to be sent to a chat.
type Notification struct {
	// ID is assigned by the store on first save.
	ID int64

	// Train is the train code as the realtime feed reports it.
	Train string

	Schedule Schedule

	// ChatID is the recipient chat.
	ChatID int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOnce reports whether the notification fires a single time.
func (n *Notification) IsOnce() bool {
	return n.Schedule != nil && n.Schedule.Type() == ScheduleOnce
}

type scheduleJSON struct {
	Type ScheduleType `json:"type"`
	Date *time.Time   `json:"date,omitempty"`
	Days []int        `json:"days,omitempty"`
	Time string       `json:"time,omitempty"`
}

// MarshalSchedule encodes a schedule in its tagged JSON form, e.g.
// {"type":"weekly","days":[1,3,5],"time":"07:30"}.
func MarshalSchedule(s Schedule) ([]byte, error) {
	switch v := s.(type) {
	case Once:
		return json.Marshal(scheduleJSON{Type: ScheduleOnce, Date: &v.Date})
	case Weekly:
		return json.Marshal(scheduleJSON{Type: ScheduleWeekly, Days: v.Days, Time: v.Time})
	default:
		return nil, fmt.Errorf("%w: unknown schedule %T", ErrInvalidSchedule, s)
	}
}

// UnmarshalSchedule decodes the tagged JSON form.
func UnmarshalSchedule(data []byte) (Schedule, error) {
	var raw scheduleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	switch raw.Type {
	case ScheduleOnce:
		if raw.Date == nil {
			return nil, fmt.Errorf("%w: once schedule without date", ErrInvalidSchedule)
		}
		return Once{Date: *raw.Date}, nil
	case ScheduleWeekly:
		return Weekly{Days: raw.Days, Time: raw.Time}, nil
	default:
		return nil, fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, raw.Type)
	}
}

type notificationJSON struct {
	ID        int64           `json:"id"`
	Train     string          `json:"train"`
	Schedule  json.RawMessage `json:"schedule"`
	ChatID    int64           `json:"chatId"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// MarshalJSON implements json.Marshaler.
func (n Notification) MarshalJSON() ([]byte, error) {
	schedule, err := MarshalSchedule(n.Schedule)
	if err != nil {
		return nil, err
	}
	return json.Marshal(notificationJSON{
		ID:        n.ID,
		Train:     n.Train,
		Schedule:  schedule,
		ChatID:    n.ChatID,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var raw notificationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	schedule, err := UnmarshalSchedule(raw.Schedule)
	if err != nil {
		return err
	}
	*n = Notification{
		ID:        raw.ID,
		Train:     raw.Train,
		Schedule:  schedule,
		ChatID:    raw.ChatID,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}
	return nil
}
