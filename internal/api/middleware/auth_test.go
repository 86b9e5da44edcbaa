package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/middleware"
	"github.com/vonatfigyelo/vonatfigyelo/internal/auth"
)

func newTokens(now func() time.Time) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-signing-key-at-least-32-bytes!!",
		Issuer:     "https://api.vonatfigyelo.test",
		Audience:   "vonatfigyelo-api",
		Expiry:     time.Hour,
		Now:        now,
	})
}

func chatEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := middleware.GetChatID(r.Context())
		require.True(t, ok)
		assert.Equal(t, int64(424242), id)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_ValidToken(t *testing.T) {
	tokens := newTokens(nil)
	token, _, err := tokens.IssueChatToken(424242)
	require.NoError(t, err)

	handler := middleware.Auth(tokens)(chatEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/notifications", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_SchemeIsCaseInsensitive(t *testing.T) {
	tokens := newTokens(nil)
	token, _, err := tokens.IssueChatToken(424242)
	require.NoError(t, err)

	handler := middleware.Auth(tokens)(chatEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/notifications", http.NoBody)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_Rejections(t *testing.T) {
	tokens := newTokens(nil)
	handler := middleware.Auth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("handler must not run")
	}))

	tests := []struct {
		name   string
		header string
		detail string
	}{
		{"missing header", "", "missing authorization header"},
		{"no scheme", "token123", "invalid authorization header format"},
		{"basic auth", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"just bearer", "Bearer", "invalid authorization header format"},
		{"empty bearer", "Bearer    ", "missing bearer token"},
		{"garbage token", "Bearer not.a.jwt", "invalid access token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/notifications", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.detail)
			assert.Contains(t, rec.Body.String(), "/v1/notifications")
		})
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	token, _, err := newTokens(func() time.Time { return issued }).IssueChatToken(424242)
	require.NoError(t, err)

	later := newTokens(func() time.Time { return issued.Add(2 * time.Hour) })
	handler := middleware.Auth(later)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/notifications", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "access token has expired")
}

func TestAuth_TokenFromOtherIssuer(t *testing.T) {
	other := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-signing-key-at-least-32-bytes!!",
		Issuer:     "https://elsewhere.test",
		Audience:   "vonatfigyelo-api",
	})
	token, _, err := other.IssueChatToken(1)
	require.NoError(t, err)

	handler := middleware.Auth(newTokens(nil))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/notifications", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetChatID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	_, ok := middleware.GetChatID(req.Context())
	assert.False(t, ok)
}
