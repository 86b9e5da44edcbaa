package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// Default rate limit configurations.
var (
	// UpstreamRateLimit applies to endpoints that may call the MÁV APIs on a cache miss (30 req/min).
	UpstreamRateLimit = RateLimitConfig{
		RequestLimit: 30,
		WindowLength: time.Minute,
	}

	// StandardRateLimit applies to endpoints served from memory (100 req/min).
	StandardRateLimit = RateLimitConfig{
		RequestLimit: 100,
		WindowLength: time.Minute,
	}

	// ChatRateLimit applies per chat to the notification endpoints (60 req/min).
	ChatRateLimit = RateLimitConfig{
		RequestLimit: 60,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP limits requests per client IP. Put chi's RealIP middleware
// in front to honour X-Forwarded-For.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

// RateLimitByChat limits requests per authenticated chat, and per IP for
// requests that carry no chat.
func RateLimitByChat(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByChatOrIP),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

func keyByChatOrIP(r *http.Request) (string, error) {
	if chatID, ok := GetChatID(r.Context()); ok {
		return "chat:" + strconv.FormatInt(chatID, 10), nil
	}
	return httprate.KeyByRealIP(r)
}

// limitExceeded writes an RFC7807 problem. httprate does not expose the
// reset time, so Retry-After is the whole window.
func limitExceeded(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(cfg.WindowLength.Seconds()))
	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path
		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
