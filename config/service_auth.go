package config

import (
	"strings"
	"time"
)

// ServiceAuthConfig controls Bearer-token authentication for service callers.
type ServiceAuthConfig struct {
	Enabled  bool   `env:"ENABLED"   envDefault:"false"`
	TenantID string `env:"TENANT_ID"`
	Audience string `env:"AUDIENCE"`

	// AllowedClientIDs restricts callers by azp/appid. Empty allows any client of the tenant.
	AllowedClientIDs []string `env:"ALLOWED_CLIENT_IDS" envSeparator:","`

	Authority   string        `env:"AUTHORITY"    envDefault:"https://login.microsoftonline.com"`
	JWKSTimeout time.Duration `env:"JWKS_TIMEOUT" envDefault:"5s"`
	ClockSkew   time.Duration `env:"CLOCK_SKEW"   envDefault:"1m"`
}

// Sanitize trims values and drops empty allowlist entries.
func (s *ServiceAuthConfig) Sanitize() {
	s.TenantID = strings.TrimSpace(s.TenantID)
	s.Audience = strings.TrimSpace(s.Audience)
	s.Authority = strings.TrimRight(strings.TrimSpace(s.Authority), "/")
	if s.Authority == "" {
		s.Authority = DefaultEntraAuthority
	}
	if s.JWKSTimeout <= 0 {
		s.JWKSTimeout = 5 * time.Second
	}
	if s.ClockSkew < 0 {
		s.ClockSkew = 0
	}

	ids := make([]string, 0, len(s.AllowedClientIDs))
	for _, id := range s.AllowedClientIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	s.AllowedClientIDs = ids
}

// Configured reports whether Bearer validation can run.
func (s ServiceAuthConfig) Configured() bool {
	return s.Enabled && s.TenantID != "" && s.Audience != ""
}

// Issuer returns the expected iss claim.
func (s ServiceAuthConfig) Issuer() string {
	return s.Authority + "/" + s.TenantID + "/v2.0"
}

// JWKSURL returns the tenant's signing key endpoint.
func (s ServiceAuthConfig) JWKSURL() string {
	return s.Authority + "/" + s.TenantID + "/discovery/v2.0/keys"
}
