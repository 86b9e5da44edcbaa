package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/models"
	"github.com/vonatfigyelo/vonatfigyelo/internal/auth"
)

// TokenValidator resolves a bearer token to the chat it acts for.
type TokenValidator interface {
	ValidateChatToken(token string) (int64, error)
}

type chatIDKey struct{}

// Auth rejects requests without a valid chat-scoped bearer token and stores
// the chat id in the request context.
func Auth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, detail := bearerToken(r.Header.Get("Authorization"))
			if detail != "" {
				writeUnauthorized(w, r, detail)
				return
			}

			chatID, err := tokens.ValidateChatToken(token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "access token has expired")
				case errors.Is(err, auth.ErrInvalidToken):
					writeUnauthorized(w, r, "invalid access token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithChatID(r.Context(), chatID)))
		})
	}
}

// bearerToken extracts the token, or explains why the header is unusable.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// writeUnauthorized is here rather than in package response, which imports this one.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// WithChatID returns a context carrying an authenticated chat id.
func WithChatID(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, chatIDKey{}, chatID)
}

// GetChatID returns the authenticated chat id, if any.
func GetChatID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(chatIDKey{}).(int64)
	return id, ok
}
