package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/models"
)

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid notification", []models.FieldError{
		{Field: "schedule.days", Message: "is required", Code: "REQUIRED"},
	}).WithInstance("/v1/notifications")

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	assert.Equal(t, models.ProblemTypeValidation, result.Type)
	assert.Equal(t, "invalid notification", result.Detail)
	assert.Equal(t, "/v1/notifications", result.Instance)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "schedule.days", result.Errors[0].Field)
	assert.Equal(t, "REQUIRED", result.Errors[0].Code)
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name      string
		problem   *models.Problem
		wantType  string
		wantTitle string
		status    int
	}{
		{"unauthorized", models.NewUnauthorized("req_1", "token expired"), models.ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized},
		{"not found", models.NewNotFound("req_1", "station not found"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"too many", models.NewTooManyRequests("req_1", "slow down"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req_1", "boom"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"bad gateway", models.NewBadGateway("req_1", "elvira down"), models.ProblemTypeBadGateway, "Upstream unavailable", http.StatusBadGateway},
		{"unavailable", models.NewServiceUnavailable("req_1", "starting"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.problem.Type)
			assert.Equal(t, tt.wantTitle, tt.problem.Title)
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, "req_1", tt.problem.TraceID)
			assert.NotEmpty(t, tt.problem.Detail)
		})
	}
}

func TestTimestamp_JSON(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Budapest")
	require.NoError(t, err)
	at := time.Date(2024, 3, 1, 7, 30, 0, 0, loc)

	data, err := json.Marshal(models.Timestamp(at))
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-01T07:30:00+01:00"`, string(data))

	var ts models.Timestamp
	require.NoError(t, json.Unmarshal(data, &ts))
	assert.True(t, at.Equal(ts.Time()))

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	assert.Nil(t, models.NewTimestamp(time.Time{}))
}

func TestProblemFor_UnknownStatus(t *testing.T) {
	p := models.ProblemFor(http.StatusConflict, "req_1", "already exists")

	assert.Equal(t, models.ProblemTypeInternal, p.Type)
	assert.Equal(t, "Conflict", p.Title)
	assert.Equal(t, http.StatusConflict, p.Status)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewNotFound("", "missing").Write(w)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("X-Request-Id"))
}
