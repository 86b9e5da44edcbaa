// Package messaging defines how notification texts and operational errors
// leave the process.
package messaging

import (
	"context"

	"github.com/rs/zerolog"
)

// Sender delivers a text message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Reporter forwards an operational error to the operators. It never fails;
// delivery problems are only logged.
type Reporter interface {
	ReportError(ctx context.Context, err error)
}

// Service both sends messages and reports errors.
type Service interface {
	Sender
	Reporter
}

// LogSender writes messages and reports to the log instead of a chat.
// It is used when no bot token is configured.
type LogSender struct {
	logger zerolog.Logger
}

var _ Service = (*LogSender)(nil)

// NewLogSender creates a LogSender.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "log_sender").Logger()}
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, chatID int64, text string) error {
	s.logger.Info().Int64("chat_id", chatID).Str("text", text).Msg("message")
	return nil
}

// ReportError logs the error.
func (s *LogSender) ReportError(_ context.Context, err error) {
	if err == nil {
		return
	}
	s.logger.Error().Err(err).Msg("reported error")
}
