package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"

	apperrors "github.com/target/portal-api/internal/errors"
)

func TestAuthDriver_UnmarshalText(t *testing.T) {
	tests := []struct {
		input       string
		expected    AuthDriver
		expectError bool
	}{
		{input: "mock", expected: AuthDriverMock},
		{input: "entra-id", expected: AuthDriverEntraID},
		{input: " ENTRA-ID ", expected: AuthDriverEntraID},
		{input: "oauth", expectError: true},
		{input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d AuthDriver
			err := d.UnmarshalText([]byte(tt.input))
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, d)
			}
		})
	}
}

func TestAppConfig_ParseAuthEnv(t *testing.T) {
	t.Setenv("AUTH_DRIVER", "entra-id")
	t.Setenv("AUTH_POST_LOGIN_REDIRECT_URL", "/dashboard")
	t.Setenv("ENTRA_TENANT_ID", "tenant-1")
	t.Setenv("ENTRA_CLIENT_ID", "app-client")
	t.Setenv("ENTRA_CLIENT_SECRET", "super-secret")
	t.Setenv("ENTRA_REDIRECT_URI", "https://portal.example.com/auth/callback")
	t.Setenv("ENTRA_GROUP_ROLES", "g-1=admin;g-2=developer")
	t.Setenv("ENTRA_STORE_TOKENS", "true")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	expected := AuthConfig{
		Driver:               AuthDriverEntraID,
		PostLoginRedirectURL: "/dashboard",
		Entra: EntraIDConfig{
			TenantID:          "tenant-1",
			ClientID:          "app-client",
			ClientSecret:      "super-secret",
			Authority:         "https://login.microsoftonline.com",
			RedirectURI:       "https://portal.example.com/auth/callback",
			Scope:             "openid profile email",
			DefaultRole:       "user",
			RoleAttributePath: "roles",
			GroupRoles:        map[string]string{"g-1": "admin", "g-2": "developer"},
			HTTPTimeout:       5 * time.Second,
			StoreTokens:       true,
		},
		Mock: MockAuthConfig{
			LoginPath:    "/auth/mock/login",
			CallbackPath: "/auth/callback",
		},
	}

	if !reflect.DeepEqual(cfg.Auth, expected) {
		t.Fatalf("unexpected auth configuration:\nexpected: %#v\ngot:      %#v", expected, cfg.Auth)
	}
	if got := cfg.Auth.Entra.Issuer(); got != "https://login.microsoftonline.com/tenant-1/v2.0" {
		t.Errorf("unexpected issuer %q", got)
	}
}

func TestAppConfig_ParseInvalidDriver(t *testing.T) {
	t.Setenv("AUTH_DRIVER", "saml")

	var cfg AppConfig
	if err := env.Parse(&cfg); err == nil {
		t.Fatal("expected parse error for unknown driver")
	}
}

func TestAppConfig_ParseDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Auth.Driver != AuthDriverMock {
		t.Errorf("expected mock driver by default, got %q", cfg.Auth.Driver)
	}
	if cfg.Session.Store != SessionStoreMemory {
		t.Errorf("expected memory store by default, got %q", cfg.Session.Store)
	}
	if cfg.Session.TTL != 8*time.Hour {
		t.Errorf("expected 8h session ttl, got %v", cfg.Session.TTL)
	}
	if cfg.Session.CookieName != "portal.sid" {
		t.Errorf("unexpected cookie name %q", cfg.Session.CookieName)
	}
	if cfg.HTTP.PublicPrefix != "/api/public" {
		t.Errorf("unexpected public prefix %q", cfg.HTTP.PublicPrefix)
	}
	if cfg.HTTP.AuthRateLimit != 5 || cfg.HTTP.AuthRateBurst != 20 {
		t.Errorf("unexpected rate limit %v/%d", cfg.HTTP.AuthRateLimit, cfg.HTTP.AuthRateBurst)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("unexpected log level %v", cfg.LogLevel)
	}
	if cfg.ServiceAuth.ClockSkew != time.Minute {
		t.Errorf("unexpected clock skew %v", cfg.ServiceAuth.ClockSkew)
	}
}

func TestAppConfig_DetectEnvironment(t *testing.T) {
	tests := []struct {
		name    string
		appEnv  Environment
		nodeEnv string
		want    Environment
	}{
		{name: "explicit app env wins", appEnv: EnvTest, nodeEnv: "production", want: EnvTest},
		{name: "node env fallback", nodeEnv: "production", want: EnvProduction},
		{name: "node env dev alias", nodeEnv: "dev", want: EnvDevelopment},
		{name: "unknown node env", nodeEnv: "staging", want: EnvDevelopment},
		{name: "nothing set", want: EnvDevelopment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NODE_ENV", tt.nodeEnv)
			cfg := AppConfig{Env: tt.appEnv}
			cfg.Sanitize()
			if cfg.Env != tt.want {
				t.Errorf("expected %q, got %q", tt.want, cfg.Env)
			}
		})
	}
}

func TestServiceAuthConfig(t *testing.T) {
	cfg := ServiceAuthConfig{
		Enabled:          true,
		TenantID:         " t1 ",
		Audience:         "api://portal",
		AllowedClientIDs: []string{" a ", "", "b"},
		Authority:        "https://login.example.com/",
	}
	cfg.Sanitize()

	if !cfg.Configured() {
		t.Fatal("expected configured")
	}
	if !reflect.DeepEqual(cfg.AllowedClientIDs, []string{"a", "b"}) {
		t.Errorf("unexpected allowlist %#v", cfg.AllowedClientIDs)
	}
	if cfg.Issuer() != "https://login.example.com/t1/v2.0" {
		t.Errorf("unexpected issuer %q", cfg.Issuer())
	}
	if cfg.JWKSURL() != "https://login.example.com/t1/discovery/v2.0/keys" {
		t.Errorf("unexpected jwks url %q", cfg.JWKSURL())
	}
	if cfg.JWKSTimeout != 5*time.Second {
		t.Errorf("expected default jwks timeout, got %v", cfg.JWKSTimeout)
	}

	cfg.Audience = ""
	if cfg.Configured() {
		t.Error("expected not configured without audience")
	}
}

func TestHTTPConfig_Sanitize(t *testing.T) {
	cfg := HTTPConfig{
		PublicPrefix: "api/partner/",
		AllowedHosts: []string{" Portal.Example.com ", ""},
		CookieDomain: ".Example.com",
	}
	cfg.Sanitize()

	if cfg.PublicPrefix != "/api/partner" {
		t.Errorf("unexpected prefix %q", cfg.PublicPrefix)
	}
	if !reflect.DeepEqual(cfg.AllowedHosts, []string{"portal.example.com"}) {
		t.Errorf("unexpected hosts %#v", cfg.AllowedHosts)
	}
	if cfg.CookieDomain != "example.com" {
		t.Errorf("unexpected cookie domain %q", cfg.CookieDomain)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected default shutdown timeout, got %v", cfg.ShutdownTimeout)
	}
}

func TestHTTPConfig_ValidateCookieDomain(t *testing.T) {
	tests := []struct {
		domain  string
		wantErr bool
	}{
		{domain: "", wantErr: false},
		{domain: "localhost", wantErr: false},
		{domain: "127.0.0.1", wantErr: false},
		{domain: "example.com", wantErr: false},
		{domain: "portal.example.co.uk", wantErr: false},
		{domain: "co.uk", wantErr: true},
		{domain: "com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			err := HTTPConfig{CookieDomain: tt.domain}.ValidateCookieDomain()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCookieDomain(%q) error = %v, wantErr %v", tt.domain, err, tt.wantErr)
			}
		})
	}
}

func validBaseConfig() AppConfig {
	cfg := AppConfig{
		Env:     EnvDevelopment,
		Auth:    AuthConfig{Driver: AuthDriverMock},
		Session: SessionConfig{Store: SessionStoreMemory},
	}
	cfg.Sanitize()
	return cfg
}

func TestAppConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{name: "development defaults", mutate: func(*AppConfig) {}},
		{
			name: "entra missing credentials",
			mutate: func(c *AppConfig) {
				c.Auth.Driver = AuthDriverEntraID
				c.Auth.Entra.TenantID = "t"
			},
			wantErr: true,
		},
		{
			name: "entra complete",
			mutate: func(c *AppConfig) {
				c.Auth.Driver = AuthDriverEntraID
				c.Auth.Entra.TenantID = "t"
				c.Auth.Entra.ClientID = "c"
				c.Auth.Entra.ClientSecret = "s"
			},
		},
		{
			name: "store tokens without key",
			mutate: func(c *AppConfig) {
				c.Auth.Driver = AuthDriverEntraID
				c.Auth.Entra.TenantID = "t"
				c.Auth.Entra.ClientID = "c"
				c.Auth.Entra.ClientSecret = "s"
				c.Auth.Entra.StoreTokens = true
			},
			wantErr: true,
		},
		{
			name:    "production without secret",
			mutate:  func(c *AppConfig) { c.Env = EnvProduction; c.Session.Store = SessionStoreRedis },
			wantErr: true,
		},
		{
			name: "production with memory store",
			mutate: func(c *AppConfig) {
				c.Env = EnvProduction
				c.Session.Secrets = []string{"s1"}
			},
			wantErr: true,
		},
		{
			name: "production complete",
			mutate: func(c *AppConfig) {
				c.Env = EnvProduction
				c.Session.Secrets = []string{"s1"}
				c.Session.Store = SessionStorePostgres
			},
		},
		{
			name: "token key reuses secret",
			mutate: func(c *AppConfig) {
				c.Session.Secrets = []string{"old", "shared"}
				c.Session.TokenEncryptionKey = "shared"
			},
			wantErr: true,
		},
		{
			name:    "public suffix cookie domain",
			mutate:  func(c *AppConfig) { c.HTTP.CookieDomain = "co.uk" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperrors.IsConfiguration(err) {
				t.Errorf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, Path: " metrics "}
	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatal("expected metrics to remain enabled")
	}
	if cfg.Path != "/metrics" {
		t.Fatalf("expected path to be normalised, got %q", cfg.Path)
	}
}
