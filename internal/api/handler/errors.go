package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/middleware"
	"github.com/vonatfigyelo/vonatfigyelo/internal/api/response"
	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
)

// upstreamFailure writes 502 for MÁV outages and 500 for anything else.
func upstreamFailure(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	event := logger.Error()
	if errors.Is(err, mav.ErrUpstreamUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		event = logger.Warn()
	}
	event.Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")

	switch {
	case errors.Is(err, mav.ErrUpstreamUnavailable):
		response.BadGateway(w, r, "the MÁV service is currently unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		response.BadGateway(w, r, "the MÁV service did not answer in time")
	default:
		response.InternalError(w, r, "internal server error")
	}
}
