// Package response writes JSON and RFC 7807 problem responses.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/middleware"
	"github.com/vonatfigyelo/vonatfigyelo/internal/api/models"
)

// JSON writes data as JSON with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Created writes a 201 with a Location header.
func Created(w http.ResponseWriter, r *http.Request, location string, data any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, r, http.StatusCreated, data)
}

// NoContent writes a 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	setRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Error writes a problem, scoped to the request path.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(traceID(r), detail, errors))
}

func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(traceID(r), detail))
}

func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(traceID(r), detail))
}

// BadGateway reports that a MÁV upstream could not serve the request.
func BadGateway(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewBadGateway(traceID(r), detail))
}

func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewServiceUnavailable(traceID(r), detail))
}

func traceID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// setRequestID echoes the request id for handlers mounted without the
// RequestID middleware in front of the writer.
func setRequestID(w http.ResponseWriter, r *http.Request) {
	if id := traceID(r); id != "" {
		w.Header().Set("X-Request-Id", id)
	}
}
