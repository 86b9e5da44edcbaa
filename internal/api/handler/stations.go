package handler

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/models"
	"github.com/vonatfigyelo/vonatfigyelo/internal/api/response"
	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
	"github.com/vonatfigyelo/vonatfigyelo/internal/timetable"
)

// StationDirectory looks up canonical stations.
type StationDirectory interface {
	List(ctx context.Context) (map[string]mav.Station, error)
	Get(ctx context.Context, code string) (mav.Station, error)
	FindByName(ctx context.Context, name string) (mav.Station, bool, error)
}

// Timetables serves station timetable windows and train stop lists.
type Timetables interface {
	GetWindow(ctx context.Context, stationCode string, from time.Time, hours int) ([]mav.Train, error)
	GetStops(ctx context.Context, vehicleID string) ([]mav.TrainStop, error)
	Location() *time.Location
	DefaultHours() int
}

// StationHandler handles station and timetable endpoints.
type StationHandler struct {
	stations   StationDirectory
	timetables Timetables
	logger     zerolog.Logger
	now        func() time.Time
}

// NewStationHandler creates a new StationHandler.
func NewStationHandler(stations StationDirectory, timetables Timetables, logger zerolog.Logger) *StationHandler {
	return &StationHandler{
		stations:   stations,
		timetables: timetables,
		logger:     logger,
		now:        time.Now,
	}
}

// ListStations handles GET /v1/stations. With ?name= it returns the exact
// (case-insensitive) match, if any; otherwise every station ordered by name.
func (h *StationHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	if name := strings.TrimSpace(r.URL.Query().Get("name")); name != "" {
		station, ok, err := h.stations.FindByName(r.Context(), name)
		if err != nil {
			upstreamFailure(w, r, h.logger, err)
			return
		}
		list := models.StationList{Items: []models.Station{}}
		if ok {
			list.Items = append(list.Items, toStation(station))
		}
		response.JSON(w, r, http.StatusOK, list)
		return
	}

	all, err := h.stations.List(r.Context())
	if err != nil {
		upstreamFailure(w, r, h.logger, err)
		return
	}
	list := models.StationList{Items: make([]models.Station, 0, len(all))}
	for _, s := range all {
		list.Items = append(list.Items, toStation(s))
	}
	sort.Slice(list.Items, func(i, j int) bool {
		if list.Items[i].Name != list.Items[j].Name {
			return list.Items[i].Name < list.Items[j].Name
		}
		return list.Items[i].Code < list.Items[j].Code
	})
	response.JSON(w, r, http.StatusOK, list)
}

// GetStation handles GET /v1/stations/{code}.
func (h *StationHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	station, ok := h.station(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, toStation(station))
}

// GetTimetable handles GET /v1/stations/{code}/timetable?from=&hours=.
// from is RFC 3339 and defaults to now; hours defaults to the aggregator's window.
func (h *StationHandler) GetTimetable(w http.ResponseWriter, r *http.Request) {
	from := h.now()
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
				{Field: "from", Code: "INVALID_FORMAT", Message: "from must be an RFC 3339 timestamp"},
			})
			return
		}
		from = parsed
	}

	hours := 0
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
				{Field: "hours", Code: "OUT_OF_RANGE", Message: "hours must be a positive integer"},
			})
			return
		}
		hours = n
	}

	station, ok := h.station(w, r)
	if !ok {
		return
	}

	trains, err := h.timetables.GetWindow(r.Context(), station.Code, from, hours)
	if err != nil {
		if errors.Is(err, timetable.ErrInvalidWindow) {
			response.BadRequest(w, r, err.Error(), []models.FieldError{
				{Field: "hours", Code: "OUT_OF_RANGE", Message: "window is too long"},
			})
			return
		}
		upstreamFailure(w, r, h.logger, err)
		return
	}

	if hours <= 0 {
		hours = h.timetables.DefaultHours()
	}
	from = from.In(h.timetables.Location()).Truncate(time.Minute)
	to := from.Add(time.Duration(hours) * time.Hour)
	response.JSON(w, r, http.StatusOK, models.TimetableWindow{
		Station: toStation(station),
		From:    models.Timestamp(from),
		To:      models.Timestamp(to),
		Items:   toScheduledTrains(trains),
	})
}

// GetStops handles GET /v1/trains/{vehicleId}/stops.
func (h *StationHandler) GetStops(w http.ResponseWriter, r *http.Request) {
	vehicleID := strings.TrimSpace(chi.URLParam(r, "vehicleId"))
	if vehicleID == "" {
		response.BadRequest(w, r, "vehicleId is required", nil)
		return
	}

	stops, err := h.timetables.GetStops(r.Context(), vehicleID)
	if errors.Is(err, mav.ErrInvalidVehicleID) {
		response.BadRequest(w, r, "vehicleId must be a numeric trip id", []models.FieldError{
			{Field: "vehicleId", Message: "must be numeric", Code: "INVALID"},
		})
		return
	}
	if err != nil {
		upstreamFailure(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.TrainStops{VehicleID: vehicleID, Items: toTrainStops(stops)})
}

func (h *StationHandler) station(w http.ResponseWriter, r *http.Request) (mav.Station, bool) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	station, err := h.stations.Get(r.Context(), code)
	if err != nil {
		if errors.Is(err, mav.ErrStationNotFound) {
			response.NotFound(w, r, "station "+code+" not found")
			return mav.Station{}, false
		}
		upstreamFailure(w, r, h.logger, err)
		return mav.Station{}, false
	}
	return station, true
}
