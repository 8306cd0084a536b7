package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	apperrors "github.com/target/portal-api/internal/errors"
)

// CookieSigner signs cookie values with HMAC-SHA256.
// The first secret signs; every secret verifies, which allows rotation.
type CookieSigner struct {
	secrets [][]byte
}

// NewCookieSigner requires at least one non-empty secret.
func NewCookieSigner(secrets []string) (*CookieSigner, error) {
	s := &CookieSigner{}
	for _, sec := range secrets {
		if sec != "" {
			s.secrets = append(s.secrets, []byte(sec))
		}
	}
	if len(s.secrets) == 0 {
		return nil, apperrors.Configuration("at least one session secret is required")
	}
	return s, nil
}

// Sign returns value.signature.
func (s *CookieSigner) Sign(value string) string {
	return value + "." + s.mac(s.secrets[0], value)
}

// Verify returns the original value when signed carries a valid signature from any secret.
func (s *CookieSigner) Verify(signed string) (string, bool) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 || i == len(signed)-1 {
		return "", false
	}
	value, sig := signed[:i], signed[i+1:]
	for _, secret := range s.secrets {
		if hmac.Equal([]byte(sig), []byte(s.mac(secret, value))) {
			return value, true
		}
	}
	return "", false
}

func (s *CookieSigner) mac(secret []byte, value string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
