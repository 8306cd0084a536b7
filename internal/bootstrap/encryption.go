package bootstrap

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/target/portal-api/config"
	"github.com/target/portal-api/internal/data/cryptoutil"
	apperrors "github.com/target/portal-api/internal/errors"
)

// devSecretBytes is the entropy of the per-process secret generated outside production.
const devSecretBytes = 32

// CreateEncryptor returns the provider-token encryptor, or nil when no key is configured.
// The nil is untyped so callers can compare the interface against nil.
//
//nolint:ireturn // an untyped nil signals "no encryption configured"
func CreateEncryptor(key string, logger *slog.Logger) (cryptoutil.Encryptor, error) {
	if key == "" {
		if logger != nil {
			logger.Info("token encryption key not set; provider tokens will not be stored")
		}
		return nil, nil
	}
	enc, err := cryptoutil.NewTokenEncryptor(key)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfiguration, "SESSION_TOKEN_ENCRYPTION_KEY")
	}
	return enc, nil
}

// CreateCookieSigner builds the session cookie signer. Production requires SESSION_SECRET
// (enforced by config validation); elsewhere a random per-process secret is generated so
// sessions never rely on a fixed default.
func CreateCookieSigner(env config.Environment, secrets []string, logger *slog.Logger) (*cryptoutil.CookieSigner, error) {
	if len(secrets) == 0 {
		if env == config.EnvProduction {
			return nil, apperrors.Configuration("SESSION_SECRET is required in production")
		}
		secret, err := GenerateSecret(devSecretBytes)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Warn("SESSION_SECRET not set; generated a random secret, sessions will not survive a restart",
				"env", env)
		}
		secrets = []string{secret}
	}
	return cryptoutil.NewCookieSigner(secrets)
}

// GenerateSecret returns n random bytes encoded as unpadded base64url.
func GenerateSecret(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("secret length must be positive, got %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
