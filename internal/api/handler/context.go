package handler

import (
	"net/http"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/middleware"
	"github.com/vonatfigyelo/vonatfigyelo/internal/api/models"
	"github.com/vonatfigyelo/vonatfigyelo/internal/api/response"
)

// chatID returns the authenticated chat, writing a 401 when there is none.
func chatID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetChatID(r.Context())
	if !ok {
		response.Error(w, r, models.NewUnauthorized(middleware.GetRequestID(r.Context()), "chat not authenticated"))
		return 0, false
	}
	return id, true
}
