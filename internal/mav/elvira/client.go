// Package elvira is a client for the MÁV Elvira timetable and station catalogue API.
package elvira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
	"github.com/vonatfigyelo/vonatfigyelo/internal/provider/resilience"
	"github.com/vonatfigyelo/vonatfigyelo/internal/telemetry"
)

const (
	// ProviderName identifies this upstream.
	ProviderName = "elvira"

	// DefaultBaseURL is the production Elvira API.
	DefaultBaseURL = "https://jegy-a.mav.hu/IK_API_PROD/api"
)

// ClientConfig holds configuration for the Elvira client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to production).
	BaseURL string

	// HTTPClient is the resilient client to use (optional).
	HTTPClient *resilience.Client

	// Metrics is optional.
	Metrics *telemetry.Metrics

	Logger zerolog.Logger
}

// Client fetches stations and timetables from Elvira. Records that cannot be
// mapped are dropped with a warning; only transport and response-level
// failures fail a call, as mav.ErrUpstreamUnavailable.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
}

// NewClient creates a new Elvira client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultConfig(ProviderName))
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With().Str("upstream", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// StationList fetches the whole station catalogue, aliases and bus stops included.
func (c *Client) StationList(ctx context.Context) ([]mav.StationRecord, error) {
	var resp stationListResponse
	if err := c.post(ctx, "stations", "/OfferRequestApi/GetStationList", stationListRequest{CacheHash: ""}, &resp); err != nil {
		return nil, err
	}

	records := make([]mav.StationRecord, 0, len(resp.Stations))
	for _, s := range resp.Stations {
		rec := mav.StationRecord{
			Station: toStation(s),
			IsAlias: s.IsAlias,
		}
		for _, m := range s.Modalities {
			rec.Modalities = append(rec.Modalities, m.Code)
		}
		records = append(records, rec)
	}
	return records, nil
}

// StationTimetable fetches a station's arrivals and departures from the given
// instant until the end of that day.
func (c *Client) StationTimetable(ctx context.Context, stationCode string, from time.Time) (*mav.StationSchedule, error) {
	req := timetableRequest{
		Type:              "StationInfo",
		StationNumberCode: stationCode,
		TravelDate:        from.UTC().Format(time.RFC3339),
		MinCount:          "0",
		MaxCount:          "9999999",
	}

	var resp timetableResponse
	if err := c.post(ctx, "timetable", "/InformationApi/GetTimetable", req, &resp); err != nil {
		return nil, err
	}
	if resp.StationSchedulerDetails == nil {
		return nil, fmt.Errorf("%w: timetable response without station schedule", mav.ErrUpstreamUnavailable)
	}

	return &mav.StationSchedule{
		Arrivals:   c.toTrains(resp.StationSchedulerDetails.ArrivalScheduler),
		Departures: c.toTrains(resp.StationSchedulerDetails.DepartureScheduler),
	}, nil
}

// TrainStops fetches the stop list of a train run by its vehicle id.
func (c *Client) TrainStops(ctx context.Context, vehicleID string) ([]mav.TrainStop, error) {
	id, err := strconv.ParseInt(vehicleID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", mav.ErrInvalidVehicleID, vehicleID, err)
	}

	req := timetableRequest{
		Type:       "TrainInfo",
		TrainID:    id,
		TravelDate: time.Now().UTC().Format(time.RFC3339),
		MinCount:   "0",
		MaxCount:   "9999999",
	}

	var resp timetableResponse
	if err := c.post(ctx, "stops", "/InformationApi/GetTimetable", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.TrainSchedulerDetails) == 0 {
		return []mav.TrainStop{}, nil
	}

	raw := resp.TrainSchedulerDetails[0].Scheduler
	stops := make([]mav.TrainStop, 0, len(raw))
	for i := range raw {
		timing, err := toTiming(&raw[i].timingFields)
		if err != nil {
			c.logger.Warn().Err(err).Str("vehicle_id", vehicleID).Str("station", raw[i].Station.Code).
				Msg("dropping malformed stop")
			continue
		}
		stops = append(stops, mav.TrainStop{Timing: timing, Station: toStation(raw[i].Station)})
	}
	return stops, nil
}

func (c *Client) post(ctx context.Context, operation, path string, in, out any) error {
	header := http.Header{}
	header.Set("Language", "hu")
	header.Set("UserSessionId", uuid.NewString())

	start := time.Now()
	err := c.httpClient.PostJSON(ctx, c.baseURL+path, header, in, out)
	c.metrics.RecordUpstream(ProviderName, operation, time.Since(start), err)
	if err != nil {
		c.logger.Error().Err(err).Str("operation", operation).Msg("elvira request failed")
		return fmt.Errorf("%w: %s: %v", mav.ErrUpstreamUnavailable, operation, err)
	}
	return nil
}

func (c *Client) toTrains(raw []trainDTO) []mav.Train {
	trains := make([]mav.Train, 0, len(raw))
	for i := range raw {
		t, err := toTrain(&raw[i])
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed train")
			continue
		}
		trains = append(trains, t)
	}
	return trains
}

func toTrain(dto *trainDTO) (mav.Train, error) {
	timing, err := toTiming(&dto.timingFields)
	if err != nil {
		return mav.Train{}, &mav.UpstreamDataError{Source: ProviderName, Record: dto.Code, Reason: err.Error()}
	}
	if dto.Code == "" {
		return mav.Train{}, &mav.UpstreamDataError{Source: ProviderName, Record: dto.VehicleID.String(), Reason: "missing train code"}
	}

	delay := 0
	if dto.HavarianInfok != nil && dto.HavarianInfok.AktualisKeses > 0 {
		delay = dto.HavarianInfok.AktualisKeses
	}

	return mav.Train{
		Timing:       timing,
		Code:         dto.Code,
		StartStation: toStation(dto.StartStation),
		EndStation:   toStation(dto.EndStation),
		CurrentDelay: delay,
		VehicleID:    dto.VehicleID.String(),
	}, nil
}

func toTiming(f *timingFields) (mav.Timing, error) {
	var times [4]time.Time
	for i, raw := range []*string{f.Start, f.Arrive, f.ActualOrEstimatedStart, f.ActualOrEstimatedArrive} {
		if raw == nil || *raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, *raw)
		if err != nil {
			return mav.Timing{}, fmt.Errorf("parsing time %q: %w", *raw, err)
		}
		times[i] = parsed
	}

	track := ""
	switch {
	case f.StartTrack != nil && *f.StartTrack != "":
		track = *f.StartTrack
	case f.EndTrack != nil:
		track = *f.EndTrack
	}

	return mav.NewTiming(times[0], times[1], times[2], times[3], track)
}

func toStation(s stationDTO) mav.Station {
	return mav.Station{Code: s.Code, Name: s.Name, CountryCode: s.CountryIso}
}

// Elvira wire types.

type stationListRequest struct {
	CacheHash string `json:"cacheHash"`
}

type stationListResponse struct {
	Stations []stationDTO `json:"stations"`
}

type stationDTO struct {
	IsAlias    bool   `json:"isAlias"`
	Name       string `json:"name"`
	Code       string `json:"code"`
	CountryIso string `json:"countryIso"`
	Modalities []struct {
		Code int `json:"code"`
	} `json:"modalities"`
}

type timetableRequest struct {
	Type              string `json:"type"`
	StationNumberCode string `json:"stationNumberCode,omitempty"`
	TrainID           int64  `json:"trainId,omitempty"`
	TravelDate        string `json:"travelDate"`
	MinCount          string `json:"minCount"`
	MaxCount          string `json:"maxCount"`
}

type timetableResponse struct {
	StationSchedulerDetails *struct {
		ArrivalScheduler   []trainDTO `json:"arrivalScheduler"`
		DepartureScheduler []trainDTO `json:"departureScheduler"`
	} `json:"stationSchedulerDetails"`
	TrainSchedulerDetails []struct {
		Scheduler []stopDTO `json:"scheduler"`
	} `json:"trainSchedulerDetails"`
}

type timingFields struct {
	Start                   *string `json:"start"`
	Arrive                  *string `json:"arrive"`
	ActualOrEstimatedStart  *string `json:"actualOrEstimatedStart"`
	ActualOrEstimatedArrive *string `json:"actualOrEstimatedArrive"`
	StartTrack              *string `json:"startTrack"`
	EndTrack                *string `json:"endTrack"`
}

type trainDTO struct {
	timingFields
	Code          string      `json:"code"`
	StartStation  stationDTO  `json:"startStation"`
	EndStation    stationDTO  `json:"endStation"`
	VehicleID     json.Number `json:"jeEszkozAlapId"`
	HavarianInfok *struct {
		AktualisKeses int `json:"aktualisKeses"`
	} `json:"havarianInfok"`
}

type stopDTO struct {
	timingFields
	Station stationDTO `json:"station"`
}
