package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://portal.example.com").
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// PublicPrefix routes requests to the service (Bearer) chain.
	PublicPrefix string `env:"HTTP_PUBLIC_PREFIX" envDefault:"/api/public"`

	// AllowedHosts restricts the Host header. Empty allows any host.
	AllowedHosts []string `env:"HTTP_ALLOWED_HOSTS" envSeparator:","`

	// AuthRateLimit is the sustained per-IP request rate for /auth/login and /auth/callback.
	AuthRateLimit float64 `env:"HTTP_AUTH_RATE_LIMIT" envDefault:"5"`
	AuthRateBurst int     `env:"HTTP_AUTH_RATE_BURST" envDefault:"20"`

	// TrustProxy honours X-Forwarded-For / X-Forwarded-Proto.
	TrustProxy bool `env:"HTTP_TRUST_PROXY" envDefault:"false"`

	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"     envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"    envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT"     envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.PublicPrefix = "/" + strings.Trim(strings.TrimSpace(h.PublicPrefix), "/")
	if h.PublicPrefix == "/" {
		h.PublicPrefix = "/api/public"
	}

	hosts := make([]string, 0, len(h.AllowedHosts))
	for _, host := range h.AllowedHosts {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			hosts = append(hosts, host)
		}
	}
	h.AllowedHosts = hosts

	h.CookieDomain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h.CookieDomain)), ".")

	if h.AuthRateLimit <= 0 {
		h.AuthRateLimit = 5
	}
	if h.AuthRateBurst <= 0 {
		h.AuthRateBurst = 20
	}
	if h.ReadTimeout <= 0 {
		h.ReadTimeout = 30 * time.Second
	}
	if h.WriteTimeout <= 0 {
		h.WriteTimeout = 30 * time.Second
	}
	if h.IdleTimeout <= 0 {
		h.IdleTimeout = 120 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
}

// ValidateCookieDomain rejects cookie domains that browsers would refuse or share across sites.
func (h HTTPConfig) ValidateCookieDomain() error {
	d := h.CookieDomain
	if d == "" || d == "localhost" || net.ParseIP(d) != nil {
		return nil
	}
	suffix, _ := publicsuffix.PublicSuffix(d)
	if suffix == d {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q is a public suffix", d)
	}
	return nil
}
