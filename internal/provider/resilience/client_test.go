package resilience_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonatfigyelo/vonatfigyelo/internal/provider/resilience"
)

func fastConfig(name string) resilience.Config {
	cfg := resilience.DefaultConfig(name)
	cfg.MinBackoff = 5 * time.Millisecond
	cfg.MaxBackoff = 20 * time.Millisecond
	return cfg
}

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "hu", r.Header.Get("Language"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"a":"TRAINS"}`, string(body))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("test"))

	var out struct {
		OK bool `json:"ok"`
	}
	header := http.Header{}
	header.Set("Language", "hu")
	err := client.PostJSON(context.Background(), server.URL, header, map[string]string{"a": "TRAINS"}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestClient_RetryReplaysBody(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"n":1}`, string(body), "every attempt must carry the body")
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("test-retry"))

	err := client.PostJSON(context.Background(), server.URL, nil, map[string]int{"n": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_ExhaustedRetriesReturnStatusError(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("test-exhausted"))

	err := client.PostJSON(context.Background(), server.URL, nil, struct{}{}, nil)

	var statusErr *resilience.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.True(t, statusErr.Temporary())
	assert.Equal(t, int32(3), attempts.Load(), "first attempt plus two retries")
}

func TestClient_4xxNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("test-4xx"))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_CircuitBreakerTrips(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := fastConfig("test-trip")
	cfg.MaxRetries = 0
	cfg.Breaker = resilience.BreakerConfig{
		OpenTimeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 3 },
	}
	client := resilience.NewClient(cfg)

	for i := 0; i < 3; i++ {
		_ = client.PostJSON(context.Background(), server.URL, nil, struct{}{}, nil)
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())

	err := client.PostJSON(context.Background(), server.URL, nil, struct{}{}, nil)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(3), attempts.Load(), "open breaker must not reach the server")
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := fastConfig("test-timeout")
	cfg.Timeout = 50 * time.Millisecond
	cfg.MaxRetries = 0
	client := resilience.NewClient(cfg)

	err := client.PostJSON(context.Background(), server.URL, nil, struct{}{}, nil)
	assert.Error(t, err)
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("test-cancel"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.PostJSON(ctx, server.URL, nil, struct{}{}, nil)
	assert.Error(t, err)
}

func TestDefaultReadyToTrip(t *testing.T) {
	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{"few failures", gobreaker.Counts{Requests: 4, TotalFailures: 4, ConsecutiveFailures: 4}, false},
		{"five consecutive", gobreaker.Counts{Requests: 5, TotalFailures: 5, ConsecutiveFailures: 5}, true},
		{"low failure ratio", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"half failing", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resilience.DefaultReadyToTrip(tt.counts))
		})
	}
}

func TestStatusError(t *testing.T) {
	err := &resilience.StatusError{StatusCode: http.StatusNotFound}
	assert.Contains(t, err.Error(), "Not Found")
	assert.False(t, err.Temporary())
}
