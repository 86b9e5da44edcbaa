package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/middleware"
)

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader
}

func requestTotals(t *testing.T, reader *sdkmetric.ManualReader) []metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "http.server.request.total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			return sum.DataPoints
		}
	}
	return nil
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	reader := setupTestMeter(t)
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Get("/v1/trains/{code}", func(w http.ResponseWriter, _ *http.Request) {})

	for _, code := range []string{"1234", "5678", "IC920"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/trains/"+code, http.NoBody))
	}

	points := requestTotals(t, reader)
	require.Len(t, points, 1, "train codes must not become separate series")
	assert.Equal(t, int64(3), points[0].Value)
	route, ok := points[0].Attributes.Value(attribute.Key("http.route"))
	require.True(t, ok)
	assert.Equal(t, "/v1/trains/{code}", route.AsString())
}

func TestMetrics_StatusAndErrorAttributes(t *testing.T) {
	reader := setupTestMeter(t)
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stations", http.NoBody))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	points := requestTotals(t, reader)
	require.Len(t, points, 1)
	status, _ := points[0].Attributes.Value(attribute.Key("http.status_code"))
	assert.Equal(t, "502", status.AsString())
	isErr, _ := points[0].Attributes.Value(attribute.Key("error"))
	assert.True(t, isErr.AsBool())
	route, _ := points[0].Attributes.Value(attribute.Key("http.route"))
	assert.Equal(t, "unmatched", route.AsString())
}

func TestMetrics_PassesResponseThrough(t *testing.T) {
	setupTestMeter(t)
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
