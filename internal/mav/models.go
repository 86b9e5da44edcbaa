// Package mav holds the domain model shared by the MÁV timetable and realtime
// providers: stations, scheduled trains, stops and live train positions.
package mav

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MÁV provider errors.
var (
	// ErrUpstreamUnavailable is returned when an upstream API cannot be reached
	// or answers with an unusable response. Callers may retry later.
	ErrUpstreamUnavailable = errors.New("mav upstream unavailable")

	// ErrStationNotFound is returned when a station code is not in the directory.
	ErrStationNotFound = errors.New("station not found")

	// ErrInvalidVehicleID is returned for a vehicle id that is not an Elvira trip id.
	ErrInvalidVehicleID = errors.New("invalid vehicle id")
)

// UpstreamDataError describes a single upstream record that could not be mapped.
// It is scoped to that record; the surrounding fetch still succeeds.
type UpstreamDataError struct {
	// Source names the feed the record came from (e.g. "elvira", "vonatinfo").
	Source string

	// Record identifies the offending record, usually its train number.
	Record string

	// Reason says what was wrong with it.
	Reason string
}

func (e *UpstreamDataError) Error() string {
	return fmt.Sprintf("%s: malformed record %q: %s", e.Source, e.Record, e.Reason)
}

// ModalityTrain is the Elvira modality code of railway stations.
// Buses (200) and suburban lines (109) use other codes.
const ModalityTrain = 100

// DefaultTimezone is the wall-clock zone the MÁV network runs on.
const DefaultTimezone = "Europe/Budapest"

// Station is a canonical railway station.
type Station struct {
	// Code is the Elvira station number code. It identifies the station.
	Code string `json:"code"`

	// Name is the display name (e.g. "Budapest-Keleti").
	Name string `json:"name"`

	// CountryCode is the ISO country code, "HU" for domestic stations.
	CountryCode string `json:"countryCode,omitempty"`
}

// StationRecord is a station catalogue entry as the upstream lists it,
// before aliases and non-train stations are filtered out.
type StationRecord struct {
	Station
	IsAlias    bool
	Modalities []int
}

// IsTrainStation reports whether the record is a canonical railway station.
func (r StationRecord) IsTrainStation() bool {
	if r.IsAlias {
		return false
	}
	for _, m := range r.Modalities {
		if m == ModalityTrain {
			return true
		}
	}
	return false
}

// Kind tells which scheduled instant defines a train's position in a timetable.
// Arriving sorts before departing when two trains share the same instant.
type Kind int

const (
	// KindArriving is a train that terminates at the station.
	KindArriving Kind = iota
	// KindDeparting is a train that leaves the station.
	KindDeparting
)

func (k Kind) String() string {
	if k == KindArriving {
		return "arriving"
	}
	return "departing"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Timing is the scheduled and estimated timing of a train at one station.
// It is only built through NewTiming, which decides the Kind once.
type Timing struct {
	Kind Kind `json:"kind"`

	// Start is the scheduled departure. Set for departing trains.
	Start time.Time `json:"start,omitzero"`

	// Arrive is the scheduled arrival. Set for arriving trains, and for
	// departing trains that also stop here.
	Arrive time.Time `json:"arrive,omitzero"`

	EstimatedStart  time.Time `json:"estimatedStart,omitzero"`
	EstimatedArrive time.Time `json:"estimatedArrive,omitzero"`

	// Track is the platform track, empty if unknown.
	Track string `json:"track,omitempty"`
}

// NewTiming classifies a record by its scheduled instants. A record with a
// scheduled start is departing, one with only a scheduled arrival is arriving.
// A record with neither is rejected.
func NewTiming(start, arrive, estimatedStart, estimatedArrive time.Time, track string) (Timing, error) {
	t := Timing{
		Start:           start,
		Arrive:          arrive,
		EstimatedStart:  estimatedStart,
		EstimatedArrive: estimatedArrive,
		Track:           track,
	}
	switch {
	case !start.IsZero():
		t.Kind = KindDeparting
	case !arrive.IsZero():
		t.Kind = KindArriving
	default:
		return Timing{}, errors.New("neither scheduled start nor arrival present")
	}
	return t, nil
}

// Time returns the instant that orders the train in a timetable:
// the scheduled start of a departing train or the scheduled arrival of an arriving one.
func (t Timing) Time() time.Time {
	if t.Kind == KindDeparting {
		return t.Start
	}
	return t.Arrive
}

// Before orders timings by Time, arriving before departing on ties.
func (t Timing) Before(o Timing) bool {
	if !t.Time().Equal(o.Time()) {
		return t.Time().Before(o.Time())
	}
	return t.Kind < o.Kind
}

// Train is a scheduled train as seen from one station's timetable.
type Train struct {
	Timing

	// Code is the train number. Unique within a timetable window.
	Code string `json:"code"`

	StartStation Station `json:"startStation"`
	EndStation   Station `json:"endStation"`

	// CurrentDelay is the delay in minutes reported by the timetable feed.
	CurrentDelay int `json:"currentDelay"`

	// VehicleID is the upstream trip id used to look up the stop list.
	VehicleID string `json:"vehicleId,omitempty"`
}

// StationSchedule is one fetch of a station's timetable, split the way the
// upstream reports it. A through train can appear in both lists.
type StationSchedule struct {
	Arrivals   []Train
	Departures []Train
}

// TrainStop is one stop of a train's run.
type TrainStop struct {
	Timing
	Station Station `json:"station"`
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// RealtimeTrain is a running train as reported by the live map feed.
type RealtimeTrain struct {
	// Code is the train number without operator prefix, upper-cased.
	Code        string      `json:"code"`
	Operator    Operator    `json:"operator"`
	Delay       int         `json:"delay"`
	Coordinates Coordinates `json:"coordinates"`
	Relation    string      `json:"relation"`
	ElviraID    string      `json:"elviraId,omitempty"`
}

// Operator is a railway company running trains on the network.
type Operator string

const (
	OperatorGYSEV Operator = "GYSEV"
	OperatorHEV   Operator = "HEV"
	OperatorMAV   Operator = "MAV"
)

// operatorPrefixes maps each operator to the prefix of its raw train numbers.
var operatorPrefixes = map[Operator]string{
	OperatorGYSEV: "43",
	OperatorHEV:   "36",
	OperatorMAV:   "55",
}

// ParseOperator resolves the operator name used by the realtime feed.
func ParseOperator(name string) (Operator, bool) {
	op := Operator(strings.ToUpper(strings.TrimSpace(name)))
	_, ok := operatorPrefixes[op]
	return op, ok
}

// StripOperatorPrefix removes the operator's prefix from a raw train number
// and upper-cases the rest.
func StripOperatorPrefix(op Operator, raw string) (string, error) {
	prefix, ok := operatorPrefixes[op]
	if !ok {
		return "", fmt.Errorf("unknown operator %q", op)
	}
	if !strings.HasPrefix(raw, prefix) || len(raw) == len(prefix) {
		return "", fmt.Errorf("train number %q lacks %s prefix %q", raw, op, prefix)
	}
	return strings.ToUpper(raw[len(prefix):]), nil
}
