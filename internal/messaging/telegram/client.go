// Package telegram sends messages through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/messaging"
	"github.com/vonatfigyelo/vonatfigyelo/internal/provider/resilience"
)

const (
	// ProviderName identifies this upstream.
	ProviderName = "telegram"

	// DefaultBaseURL is the public Bot API.
	DefaultBaseURL = "https://api.telegram.org"

	// MaxMessageLength is the longest text the Bot API accepts.
	MaxMessageLength = 4096
)

// ErrSendFailed is returned when the Bot API refuses a message.
var ErrSendFailed = errors.New("telegram send failed")

// ClientConfig holds configuration for the Telegram client.
type ClientConfig struct {
	// Token is the bot token. Required.
	Token string

	// AdminChatIDs receive ReportError messages.
	AdminChatIDs []int64

	// BaseURL is the API base URL (optional, defaults to the public API).
	BaseURL string

	// HTTPClient is the resilient client to use (optional).
	HTTPClient *resilience.Client

	Logger zerolog.Logger
}

// Client is a messaging.Service backed by a Telegram bot.
type Client struct {
	token      string
	admins     []int64
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

var _ messaging.Service = (*Client)(nil)

// NewClient creates a new Telegram client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultConfig(ProviderName)
		rc.MaxRetries = 1
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		token:      cfg.Token,
		admins:     cfg.AdminChatIDs,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("upstream", ProviderName).Logger(),
	}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Send delivers text to a chat.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	var resp apiResponse
	endpoint := c.baseURL + "/bot" + c.token + "/sendMessage"

	err := c.httpClient.PostJSON(ctx, endpoint, nil, sendMessageRequest{ChatID: chatID, Text: truncate(text)}, &resp)
	if err != nil {
		return fmt.Errorf("%w: chat %d: %v", ErrSendFailed, chatID, redact(err))
	}
	if !resp.OK {
		return fmt.Errorf("%w: chat %d: %s", ErrSendFailed, chatID, resp.Description)
	}
	return nil
}

// ReportError sends the error text to every admin chat.
func (c *Client) ReportError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	c.logger.Error().Err(err).Msg("reporting error")

	text := "⚠️ " + err.Error()
	for _, chatID := range c.admins {
		if sendErr := c.Send(ctx, chatID, text); sendErr != nil {
			c.logger.Error().Err(sendErr).Int64("chat_id", chatID).Msg("failed to report error to admin chat")
		}
	}
}

// ParseChatIDs parses a comma separated list of chat ids.
func ParseChatIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// redact drops the request URL, which carries the bot token.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxMessageLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxMessageLength-1]) + "…"
}
