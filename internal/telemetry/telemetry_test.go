package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonatfigyelo/vonatfigyelo/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "vonatfigyelo-test",
		Enabled:     false,
	})
	require.NoError(t, err)

	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("APP_ENV", "production")

	cfg := telemetry.ConfigFromEnv("vonatfigyelo-api", "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "vonatfigyelo-api", cfg.ServiceName)
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("APP_ENV", "")

	cfg := telemetry.ConfigFromEnv("svc", "dev")

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "development", cfg.Environment)
}

func TestMetrics_RecordWithNoopProvider(t *testing.T) {
	m, err := telemetry.NewMetrics()
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.RecordCacheLookup("timetable.day", true)
		m.RecordCacheLookup("timetable.day", false)
		m.RecordUpstream("elvira", "timetable", 120*time.Millisecond, nil)
		m.RecordUpstream("elvira", "timetable", time.Second, errors.New("boom"))
		m.RecordDispatch("delayed")
		m.RecordScheduledJobs(1)
	})
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *telemetry.Metrics

	assert.NotPanics(t, func() {
		m.RecordCacheLookup("x", true)
		m.RecordUpstream("x", "y", time.Second, nil)
		m.RecordDispatch("failed")
		m.RecordScheduledJobs(-1)
	})
}

func TestTracer_ReturnsGlobalTracer(t *testing.T) {
	assert.NotNil(t, telemetry.Tracer("test"))
}
