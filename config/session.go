package config

import (
	"fmt"
	"strings"
	"time"
)

// SessionStoreKind selects the session persistence backend.
type SessionStoreKind string

const (
	// SessionStoreMemory keeps sessions in process memory (development and tests only).
	SessionStoreMemory SessionStoreKind = "memory"
	// SessionStoreRedis keeps sessions in Redis.
	SessionStoreRedis SessionStoreKind = "redis"
	// SessionStorePostgres keeps sessions in the user_sessions table.
	SessionStorePostgres SessionStoreKind = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionStoreKind.
func (k *SessionStoreKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "memory", "redis", "postgres":
		*k = SessionStoreKind(v)
		return nil
	default:
		return fmt.Errorf("invalid SessionStoreKind: %q (valid options: memory, redis, postgres)", v)
	}
}

// SessionConfig contains staff session configuration.
type SessionConfig struct {
	// Secrets sign the session cookie. The first entry signs; all entries verify.
	Secrets []string `env:"SECRET" envSeparator:","`

	// TokenEncryptionKey derives the AES-256 key for provider tokens. Must differ from Secrets.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	Store      SessionStoreKind `env:"STORE"       envDefault:"memory"`
	TTL        time.Duration    `env:"TTL"         envDefault:"8h"`
	CookieName string           `env:"COOKIE_NAME" envDefault:"portal.sid"`

	// KeyPrefix namespaces session keys in Redis.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"portal:session:"`
}

// Sanitize trims secrets and applies defaults.
func (s *SessionConfig) Sanitize() {
	secrets := make([]string, 0, len(s.Secrets))
	for _, sec := range s.Secrets {
		if sec = strings.TrimSpace(sec); sec != "" {
			secrets = append(secrets, sec)
		}
	}
	s.Secrets = secrets
	s.TokenEncryptionKey = strings.TrimSpace(s.TokenEncryptionKey)

	if s.Store == "" {
		s.Store = SessionStoreMemory
	}
	if s.TTL <= 0 {
		s.TTL = 8 * time.Hour
	}
	if strings.TrimSpace(s.CookieName) == "" {
		s.CookieName = "portal.sid"
	}
	if s.KeyPrefix == "" {
		s.KeyPrefix = "portal:session:"
	}
}

// TokenKeyReusesSecret reports whether the token encryption key equals a signing secret.
func (s SessionConfig) TokenKeyReusesSecret() bool {
	if s.TokenEncryptionKey == "" {
		return false
	}
	for _, sec := range s.Secrets {
		if sec == s.TokenEncryptionKey {
			return true
		}
	}
	return false
}
