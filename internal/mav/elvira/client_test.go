package elvira_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
	"github.com/vonatfigyelo/vonatfigyelo/internal/mav/elvira"
	"github.com/vonatfigyelo/vonatfigyelo/internal/provider/resilience"
)

const stationListJSON = `{
  "stations": [
    {"isAlias": false, "name": "Budapest-Keleti", "code": "005510017", "countryIso": "HU", "modalities": [{"code": 100}]},
    {"isAlias": true, "name": "Keleti pu.", "code": "005510018", "countryIso": "HU", "modalities": [{"code": 100}]},
    {"isAlias": false, "name": "Volánbusz állomás", "code": "009999999", "countryIso": "HU", "modalities": [{"code": 200}]},
    {"isAlias": false, "name": "Wien Hbf", "code": "008101003", "countryIso": "AT"}
  ]
}`

const stationTimetableJSON = `{
  "stationSchedulerDetails": {
    "arrivalScheduler": [
      {
        "code": "2001",
        "start": null,
        "arrive": "2024-01-01T08:00:00+01:00",
        "actualOrEstimatedArrive": "2024-01-01T08:05:00+01:00",
        "endTrack": "4",
        "startStation": {"name": "Szeged", "code": "005517228", "countryIso": "HU"},
        "endStation": {"name": "Budapest-Nyugati", "code": "005510033", "countryIso": "HU"},
        "havarianInfok": {"aktualisKeses": 5},
        "jeEszkozAlapId": 12345
      },
      {
        "code": "BROKEN",
        "start": null,
        "arrive": null,
        "startStation": {"name": "X", "code": "1"},
        "endStation": {"name": "Y", "code": "2"},
        "jeEszkozAlapId": 1
      }
    ],
    "departureScheduler": [
      {
        "code": "IC 520",
        "start": "2024-01-01T09:10:00+01:00",
        "arrive": "2024-01-01T09:05:00+01:00",
        "startTrack": "2",
        "endTrack": "3",
        "startStation": {"name": "Budapest-Keleti", "code": "005510017", "countryIso": "HU"},
        "endStation": {"name": "Miskolc-Tiszai", "code": "005517939", "countryIso": "HU"},
        "havarianInfok": {"aktualisKeses": 0},
        "jeEszkozAlapId": 67890
      }
    ]
  }
}`

const trainInfoJSON = `{
  "trainSchedulerDetails": [
    {
      "scheduler": [
        {"start": "2024-01-01T09:10:00+01:00", "arrive": null, "startTrack": "2", "station": {"name": "Budapest-Keleti", "code": "005510017", "countryIso": "HU"}},
        {"start": null, "arrive": "not-a-time", "station": {"name": "Hatvan", "code": "005510710", "countryIso": "HU"}},
        {"start": null, "arrive": "2024-01-01T11:00:00+01:00", "station": {"name": "Miskolc-Tiszai", "code": "005517939", "countryIso": "HU"}}
      ]
    }
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *elvira.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := resilience.DefaultConfig("elvira-test")
	cfg.MaxRetries = 0
	return elvira.NewClient(elvira.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: resilience.NewClient(cfg),
		Logger:     zerolog.Nop(),
	})
}

func TestClient_StationList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/OfferRequestApi/GetStationList", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "hu", r.Header.Get("Language"))
		assert.NotEmpty(t, r.Header.Get("UserSessionId"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "", body["cacheHash"])

		_, _ = w.Write([]byte(stationListJSON))
	})

	records, err := client.StationList(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "005510017", records[0].Code)
	assert.Equal(t, "Budapest-Keleti", records[0].Name)
	assert.Equal(t, "HU", records[0].CountryCode)
	assert.True(t, records[0].IsTrainStation())
	assert.True(t, records[1].IsAlias)
	assert.False(t, records[2].IsTrainStation())
	assert.Empty(t, records[3].Modalities)
}

func TestClient_StationTimetable(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/InformationApi/GetTimetable", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "StationInfo", body["type"])
		assert.Equal(t, "005510017", body["stationNumberCode"])
		assert.Equal(t, "2024-01-01T00:00:00Z", body["travelDate"])
		assert.Equal(t, "0", body["minCount"])
		assert.Equal(t, "9999999", body["maxCount"])
		assert.NotContains(t, body, "trainId")

		_, _ = w.Write([]byte(stationTimetableJSON))
	})

	tt, err := client.StationTimetable(context.Background(), "005510017", from)
	require.NoError(t, err)

	require.Len(t, tt.Arrivals, 1, "malformed arrival must be dropped")
	arr := tt.Arrivals[0]
	assert.Equal(t, "2001", arr.Code)
	assert.Equal(t, mav.KindArriving, arr.Kind)
	assert.Equal(t, 5, arr.CurrentDelay)
	assert.Equal(t, "4", arr.Track)
	assert.Equal(t, "12345", arr.VehicleID)
	assert.True(t, arr.EstimatedArrive.Equal(time.Date(2024, 1, 1, 7, 5, 0, 0, time.UTC)))

	require.Len(t, tt.Departures, 1)
	dep := tt.Departures[0]
	assert.Equal(t, mav.KindDeparting, dep.Kind)
	assert.Equal(t, "2", dep.Track, "start track wins over end track")
	assert.Equal(t, "Miskolc-Tiszai", dep.EndStation.Name)
	assert.True(t, dep.Time().Equal(time.Date(2024, 1, 1, 8, 10, 0, 0, time.UTC)))
}

func TestClient_TrainStops(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "TrainInfo", body["type"])
		assert.EqualValues(t, 67890, body["trainId"])

		_, _ = w.Write([]byte(trainInfoJSON))
	})

	stops, err := client.TrainStops(context.Background(), "67890")
	require.NoError(t, err)
	require.Len(t, stops, 2, "stop with unparsable time must be dropped")

	assert.Equal(t, "Budapest-Keleti", stops[0].Station.Name)
	assert.Equal(t, mav.KindDeparting, stops[0].Kind)
	assert.Equal(t, mav.KindArriving, stops[1].Kind)
}

func TestClient_TrainStopsInvalidVehicleID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("upstream must not be called")
	})

	_, err := client.TrainStops(context.Background(), "abc")
	assert.ErrorIs(t, err, mav.ErrInvalidVehicleID)
	assert.NotErrorIs(t, err, mav.ErrUpstreamUnavailable)
}

func TestClient_UpstreamFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.StationList(context.Background())
	assert.ErrorIs(t, err, mav.ErrUpstreamUnavailable)

	_, err = client.StationTimetable(context.Background(), "1", time.Now())
	assert.ErrorIs(t, err, mav.ErrUpstreamUnavailable)
}

func TestClient_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"stationSchedulerDetails": [`))
	})

	_, err := client.StationTimetable(context.Background(), "1", time.Now())
	assert.ErrorIs(t, err, mav.ErrUpstreamUnavailable)
}

func TestClient_Name(t *testing.T) {
	client := elvira.NewClient(elvira.ClientConfig{Logger: zerolog.Nop()})
	assert.Equal(t, "elvira", client.Name())
}
