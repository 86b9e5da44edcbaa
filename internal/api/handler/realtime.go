package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/models"
	"github.com/vonatfigyelo/vonatfigyelo/internal/api/response"
	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
	"github.com/vonatfigyelo/vonatfigyelo/internal/mav/vonatinfo"
	"github.com/vonatfigyelo/vonatfigyelo/internal/realtime"
	"github.com/vonatfigyelo/vonatfigyelo/pkg/geo"
)

// LiveTrains serves the cached live map feed.
type LiveTrains interface {
	Snapshot(ctx context.Context) (*vonatinfo.Snapshot, error)
	FindByCode(ctx context.Context, code string) (mav.RealtimeTrain, bool, error)
	Nearby(ctx context.Context, point geo.Point, opts realtime.NearbyOptions) ([]realtime.NearbyTrain, error)
}

// RealtimeHandler handles live train endpoints.
type RealtimeHandler struct {
	trains LiveTrains
	logger zerolog.Logger
}

// NewRealtimeHandler creates a new RealtimeHandler.
func NewRealtimeHandler(trains LiveTrains, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{trains: trains, logger: logger}
}

// ListTrains handles GET /v1/realtime/trains, optionally filtered by ?operator=.
func (h *RealtimeHandler) ListTrains(w http.ResponseWriter, r *http.Request) {
	var only mav.Operator
	if v := r.URL.Query().Get("operator"); v != "" {
		op, ok := mav.ParseOperator(v)
		if !ok {
			response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
				{Field: "operator", Code: "INVALID_VALUE", Message: "operator must be one of MAV, GYSEV, HEV"},
			})
			return
		}
		only = op
	}

	snapshot, err := h.trains.Snapshot(r.Context())
	if err != nil {
		upstreamFailure(w, r, h.logger, err)
		return
	}

	list := models.RealtimeTrainList{
		Items:     make([]models.RealtimeTrain, 0, len(snapshot.Trains)),
		FetchedAt: models.NewTimestamp(snapshot.FetchedAt),
	}
	for _, t := range snapshot.Trains {
		if only != "" && t.Operator != only {
			continue
		}
		list.Items = append(list.Items, toRealtimeTrain(t))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// GetTrain handles GET /v1/realtime/trains/{code}.
func (h *RealtimeHandler) GetTrain(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	train, found, err := h.trains.FindByCode(r.Context(), code)
	if err != nil {
		upstreamFailure(w, r, h.logger, err)
		return
	}
	if !found {
		response.NotFound(w, r, "train "+strings.ToUpper(strings.TrimSpace(code))+" is not running")
		return
	}
	response.JSON(w, r, http.StatusOK, toRealtimeTrain(train))
}

// Nearby handles GET /v1/realtime/nearby?lat=&lon=[&limit=&maxDistanceKm=].
func (h *RealtimeHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var fieldErrors []models.FieldError

	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
	point := geo.Point{Lat: lat, Lon: lon}
	switch {
	case latErr != nil || lonErr != nil:
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "lat", Code: "REQUIRED", Message: "lat and lon are required numbers",
		})
	case !point.Valid():
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "lat", Code: "OUT_OF_RANGE", Message: "lat/lon outside WGS84 range",
		})
	}

	var opts realtime.NearbyOptions
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 50 {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field: "limit", Code: "OUT_OF_RANGE", Message: "limit must be between 1 and 50",
			})
		}
		opts.Limit = n
	}
	if v := q.Get("maxDistanceKm"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil || d <= 0 {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field: "maxDistanceKm", Code: "OUT_OF_RANGE", Message: "maxDistanceKm must be positive",
			})
		}
		opts.MaxDistanceKm = d
	}

	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrors)
		return
	}

	trains, err := h.trains.Nearby(r.Context(), point, opts)
	if err != nil {
		upstreamFailure(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NearbyTrainList{Items: toNearbyTrains(trains)})
}
