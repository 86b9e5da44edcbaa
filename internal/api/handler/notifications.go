package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/models"
	"github.com/vonatfigyelo/vonatfigyelo/internal/api/response"
	"github.com/vonatfigyelo/vonatfigyelo/internal/notification"
)

// maxNotificationBody bounds create request bodies.
const maxNotificationBody = 16 << 10

// NotificationService manages the notifications of a chat.
type NotificationService interface {
	ListForChat(ctx context.Context, chatID int64) (*models.NotificationList, error)
	FindByID(ctx context.Context, chatID, id int64) (*models.Notification, error)
	Create(ctx context.Context, chatID int64, input *models.NotificationCreateRequest) (*models.Notification, error)
	Unsubscribe(ctx context.Context, chatID, id int64) error
}

// NotificationHandler handles the notification endpoints of the authenticated chat.
type NotificationHandler struct {
	service NotificationService
	logger  zerolog.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(service NotificationService, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, logger: logger}
}

// ListNotifications handles GET /v1/notifications.
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	chat, ok := chatID(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListForChat(r.Context(), chat)
	if err != nil {
		h.serviceFailure(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, list)
}

// CreateNotification handles POST /v1/notifications.
func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	chat, ok := chatID(w, r)
	if !ok {
		return
	}

	var input models.NotificationCreateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotificationBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	created, err := h.service.Create(r.Context(), chat, &input)
	if err != nil {
		h.serviceFailure(w, r, err)
		return
	}
	response.Created(w, r, "/v1/notifications/"+strconv.FormatInt(created.ID, 10), created)
}

// GetNotification handles GET /v1/notifications/{id}.
func (h *NotificationHandler) GetNotification(w http.ResponseWriter, r *http.Request) {
	chat, ok := chatID(w, r)
	if !ok {
		return
	}
	id, ok := notificationID(w, r)
	if !ok {
		return
	}

	n, err := h.service.FindByID(r.Context(), chat, id)
	if err != nil {
		h.serviceFailure(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, n)
}

// DeleteNotification handles DELETE /v1/notifications/{id}.
func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	chat, ok := chatID(w, r)
	if !ok {
		return
	}
	id, ok := notificationID(w, r)
	if !ok {
		return
	}

	if err := h.service.Unsubscribe(r.Context(), chat, id); err != nil {
		h.serviceFailure(w, r, err)
		return
	}
	response.NoContent(w, r)
}

func (h *NotificationHandler) serviceFailure(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *notification.ValidationError
	switch {
	case errors.As(err, &validationErr):
		response.BadRequest(w, r, "validation failed", validationErr.Errors)
	case errors.Is(err, notification.ErrNotificationNotFound):
		response.NotFound(w, r, "notification not found")
	default:
		upstreamFailure(w, r, h.logger, err)
	}
}

func notificationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		response.NotFound(w, r, "notification not found")
		return 0, false
	}
	return id, true
}
