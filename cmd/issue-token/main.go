// Package main issues a chat-scoped bearer token for the notifications API.
// The Telegram bot front end normally does this; the command is for operators
// and local testing.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vonatfigyelo/vonatfigyelo/internal/auth"
)

var (
	chatID int64
	expiry time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Issue an API token bound to one Telegram chat",
	Long: `issue-token signs a JWT whose subject is the given chat id. The token
authorizes the /v1/notifications endpoints for that chat only.

The signing key, issuer and audience are read from JWT_SIGNING_KEY,
JWT_ISSUER and JWT_AUDIENCE, the same variables the API server uses.

Examples:
  issue-token --chat 123456789
  issue-token --chat 123456789 --expiry 720h`,
	SilenceUsage: true,
	RunE:         runIssue,
}

func init() {
	rootCmd.Flags().Int64Var(&chatID, "chat", 0, "Telegram chat id the token is issued for (required)")
	rootCmd.Flags().DurationVar(&expiry, "expiry", auth.DefaultTokenExpiry, "Token lifetime")
	_ = rootCmd.MarkFlagRequired("chat")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIssue(cmd *cobra.Command, _ []string) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()

	if chatID == 0 {
		return fmt.Errorf("--chat must be a non-zero chat id")
	}

	cfg, fromEnv := auth.ConfigFromEnv()
	if !fromEnv {
		log.Warn().Msg("JWT_SIGNING_KEY not set, using the local development key")
	}
	cfg.Expiry = expiry

	token, expiresAt, err := auth.NewJWTService(cfg).IssueChatToken(chatID)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	log.Info().
		Int64("chat_id", chatID).
		Str("expires_at", expiresAt.Format(time.RFC3339)).
		Msg("token issued")
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
