// Package auth issues and validates the chat-scoped API tokens.
//
// A token binds API calls to one chat: its subject is the chat id, so a
// holder can only see and change that chat's notifications. Tokens are
// HS256 JWTs handed out by operators (see cmd/issue-token); there is no
// refresh flow.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenExpiry is how long issued tokens are valid.
const DefaultTokenExpiry = 90 * 24 * time.Hour

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrTokenExpired = errors.New("access token has expired")
)

// ChatClaims are the claims of a chat-scoped token.
type ChatClaims struct {
	jwt.RegisteredClaims

	// ChatID is the chat the token acts for. It mirrors the subject.
	ChatID int64 `json:"cid"`
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the secret key used to sign tokens.
	SigningKey string

	// Issuer is the issuer claim (e.g. "https://api.vonatfigyelo.hu").
	Issuer string

	// Audience is the audience claim (e.g. "vonatfigyelo-api").
	Audience string

	// Expiry overrides DefaultTokenExpiry.
	Expiry time.Duration

	// Now is the token clock. Defaults to time.Now.
	Now func() time.Time
}

// DevSigningKey is used when JWT_SIGNING_KEY is unset. Never in production.
const DevSigningKey = "local-dev-signing-key-change-in-production"

// ConfigFromEnv reads JWT_SIGNING_KEY, JWT_ISSUER and JWT_AUDIENCE.
// The second result is false when the development key was substituted.
func ConfigFromEnv() (JWTConfig, bool) {
	cfg := JWTConfig{
		SigningKey: os.Getenv("JWT_SIGNING_KEY"),
		Issuer:     os.Getenv("JWT_ISSUER"),
		Audience:   os.Getenv("JWT_AUDIENCE"),
	}
	if cfg.SigningKey == "" {
		cfg.SigningKey = DevSigningKey
		return cfg, false
	}
	return cfg, true
}

// JWTService handles token creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	expiry     time.Duration
	now        func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultTokenExpiry
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		expiry:     cfg.Expiry,
		now:        cfg.Now,
	}
}

// IssueChatToken creates a token for a chat.
func (s *JWTService) IssueChatToken(chatID int64) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)

	claims := ChatClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(chatID, 10),
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        newTokenID(),
		},
		ChatID: chatID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateChatToken validates a token and returns its chat id.
func (s *JWTService) ValidateChatToken(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ChatClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*ChatClaims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}
	if claims.Subject != strconv.FormatInt(claims.ChatID, 10) {
		return 0, fmt.Errorf("%w: subject does not match chat", ErrInvalidToken)
	}
	return claims.ChatID, nil
}

func newTokenID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
