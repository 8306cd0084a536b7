package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	apperrors "github.com/target/portal-api/internal/errors"
)

// Environment names the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
	EnvProduction  Environment = "production"
)

// UnmarshalText implements encoding.TextUnmarshaler for Environment.
func (e *Environment) UnmarshalText(text []byte) error {
	env, err := parseEnvironment(string(text))
	if err != nil {
		return err
	}
	*e = env
	return nil
}

func parseEnvironment(raw string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "development", "dev":
		return EnvDevelopment, nil
	case "test":
		return EnvTest, nil
	case "production", "prod":
		return EnvProduction, nil
	default:
		return "", fmt.Errorf("invalid Environment: %q (valid options: development, test, production)", raw)
	}
}

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: staff authentication drivers
//   - service_auth.go: Bearer authentication for service callers
//   - session.go: session cookie, store and token encryption
//   - database.go: Postgres and Redis connections
//   - http.go: HTTP server configuration
type AppConfig struct {
	// Env is the deployment environment. Falls back to NODE_ENV, then development.
	Env Environment `env:"APP_ENV"`

	// LogLevel is the minimum slog level (debug, info, warn, error).
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`

	// Staff authentication
	Auth AuthConfig

	// Service (Bearer) authentication
	ServiceAuth ServiceAuthConfig `envPrefix:"SERVICE_AUTH_"`

	// Session handling
	Session SessionConfig `envPrefix:"SESSION_"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.detectEnvironment()

	c.Auth.Sanitize()
	c.ServiceAuth.Sanitize()
	c.Session.Sanitize()
	c.HTTP.Sanitize()
	c.Observability.Sanitize()
}

// detectEnvironment falls back to NODE_ENV when APP_ENV is unset.
// Unknown NODE_ENV values are treated as development.
func (c *AppConfig) detectEnvironment() {
	if c.Env != "" {
		return
	}
	if env, err := parseEnvironment(os.Getenv("NODE_ENV")); err == nil {
		c.Env = env
		return
	}
	c.Env = EnvDevelopment
}

// IsProduction reports whether the app runs in production.
func (c *AppConfig) IsProduction() bool { return c.Env == EnvProduction }

// IsDev reports whether the app runs in development.
func (c *AppConfig) IsDev() bool { return c.Env == EnvDevelopment }

// Validate checks cross-field rules. Every failure is a ConfigurationError.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Auth.Driver == AuthDriverEntraID {
		if missing := c.Auth.Entra.MissingFields(); len(missing) > 0 {
			errs = append(errs, apperrors.Configurationf(
				"entra-id driver requires %s", strings.Join(missing, ", ")))
		}
		if c.Auth.Entra.StoreTokens && c.Session.TokenEncryptionKey == "" {
			errs = append(errs, apperrors.Configuration(
				"ENTRA_STORE_TOKENS requires SESSION_TOKEN_ENCRYPTION_KEY"))
		}
	}

	if c.IsProduction() {
		if len(c.Session.Secrets) == 0 {
			errs = append(errs, apperrors.Configuration("SESSION_SECRET is required in production"))
		}
		if c.Session.Store == SessionStoreMemory {
			errs = append(errs, apperrors.Configuration(
				"SESSION_STORE=memory is not allowed in production"))
		}
	}

	if c.Session.TokenKeyReusesSecret() {
		errs = append(errs, apperrors.Configuration(
			"SESSION_TOKEN_ENCRYPTION_KEY must differ from every SESSION_SECRET"))
	}

	if err := c.HTTP.ValidateCookieDomain(); err != nil {
		errs = append(errs, apperrors.Configuration(err.Error()))
	}

	return errors.Join(errs...)
}
