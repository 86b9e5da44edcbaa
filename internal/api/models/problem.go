package models

import (
	"encoding/json"
	"net/http"
)

// problemBase prefixes every problem type URI.
const problemBase = "https://api.vonatfigyelo.hu/problems/"

// Problem type URIs.
const (
	ProblemTypeValidation      = problemBase + "validation-error"
	ProblemTypeUnauthorized    = problemBase + "unauthorized"
	ProblemTypeNotFound        = problemBase + "not-found"
	ProblemTypeTooManyRequests = problemBase + "too-many-requests"
	ProblemTypeInternal        = problemBase + "internal-error"
	ProblemTypeUnavailable     = problemBase + "service-unavailable"
	ProblemTypeBadGateway      = problemBase + "upstream-unavailable"
)

// Problem is an RFC 7807 error body. TraceID carries the request id so a
// chat user can quote it when reporting a failed request.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError points at one invalid request field, e.g. "schedule.days".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type problemKind struct {
	uri   string
	title string
}

// problemKinds lists the statuses the API answers with a problem body.
var problemKinds = map[int]problemKind{
	http.StatusBadRequest:          {ProblemTypeValidation, "Validation error"},
	http.StatusUnauthorized:        {ProblemTypeUnauthorized, "Unauthorized"},
	http.StatusNotFound:            {ProblemTypeNotFound, "Not found"},
	http.StatusTooManyRequests:     {ProblemTypeTooManyRequests, "Too many requests"},
	http.StatusInternalServerError: {ProblemTypeInternal, "Internal server error"},
	http.StatusBadGateway:          {ProblemTypeBadGateway, "Upstream unavailable"},
	http.StatusServiceUnavailable:  {ProblemTypeUnavailable, "Service unavailable"},
}

// ProblemFor builds the problem for status. Statuses without a dedicated
// kind fall back to the internal error type with the status text as title.
func ProblemFor(status int, traceID, detail string) *Problem {
	kind, ok := problemKinds[status]
	if !ok {
		kind = problemKind{uri: ProblemTypeInternal, title: http.StatusText(status)}
	}
	return &Problem{
		Type:    kind.uri,
		Title:   kind.title,
		Status:  status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// WithInstance sets the request path the problem occurred on.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// Write sends the problem with its status and the request id header.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest is a 400 validation problem listing the offending fields.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := ProblemFor(http.StatusBadRequest, traceID, detail)
	p.Errors = errors
	return p
}

func NewUnauthorized(traceID, detail string) *Problem {
	return ProblemFor(http.StatusUnauthorized, traceID, detail)
}

func NewNotFound(traceID, detail string) *Problem {
	return ProblemFor(http.StatusNotFound, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return ProblemFor(http.StatusTooManyRequests, traceID, detail)
}

func NewInternalError(traceID, detail string) *Problem {
	return ProblemFor(http.StatusInternalServerError, traceID, detail)
}

// NewBadGateway reports that Elvira, Vonatinfo or Telegram could not be reached.
func NewBadGateway(traceID, detail string) *Problem {
	return ProblemFor(http.StatusBadGateway, traceID, detail)
}

func NewServiceUnavailable(traceID, detail string) *Problem {
	return ProblemFor(http.StatusServiceUnavailable, traceID, detail)
}
