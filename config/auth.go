package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthDriver selects the staff authentication driver.
type AuthDriver string

const (
	// AuthDriverMock uses canned users for development and tests.
	AuthDriverMock AuthDriver = "mock"
	// AuthDriverEntraID uses Microsoft Entra ID (OIDC authorization code + PKCE).
	AuthDriverEntraID AuthDriver = "entra-id"
)

// DefaultEntraAuthority is the public-cloud login host.
const DefaultEntraAuthority = "https://login.microsoftonline.com"

// UnmarshalText implements encoding.TextUnmarshaler for AuthDriver.
func (a *AuthDriver) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "mock", "entra-id":
		*a = AuthDriver(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthDriver: %q (valid options: mock, entra-id)", v)
	}
}

// EntraIDConfig contains Entra ID OIDC configuration.
type EntraIDConfig struct {
	TenantID     string `env:"TENANT_ID"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Authority    string `env:"AUTHORITY"     envDefault:"https://login.microsoftonline.com"`
	RedirectURI  string `env:"REDIRECT_URI"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`

	// DefaultRole is assigned when no role could be mapped from the ID token.
	DefaultRole string `env:"DEFAULT_ROLE" envDefault:"user"`

	// RoleAttributePath is a JMESPath expression evaluated against the ID token claims.
	RoleAttributePath string `env:"ROLE_ATTRIBUTE_PATH" envDefault:"roles"`

	// GroupRoles maps Entra group object ids to application roles, e.g. "gid=admin;gid2=developer".
	GroupRoles map[string]string `env:"GROUP_ROLES" envSeparator:";" envKeyValSeparator:"="`

	LogoutURL             string        `env:"LOGOUT_URL"`
	PostLogoutRedirectURI string        `env:"POST_LOGOUT_REDIRECT_URI"`
	HTTPTimeout           time.Duration `env:"HTTP_TIMEOUT"             envDefault:"5s"`

	// StoreTokens encrypts provider tokens into the session record.
	StoreTokens bool `env:"STORE_TOKENS" envDefault:"false"`
}

// Sanitize trims values and fills defaults lost to empty env vars.
func (e *EntraIDConfig) Sanitize() {
	e.TenantID = strings.TrimSpace(e.TenantID)
	e.ClientID = strings.TrimSpace(e.ClientID)
	e.Authority = strings.TrimRight(strings.TrimSpace(e.Authority), "/")
	if e.Authority == "" {
		e.Authority = DefaultEntraAuthority
	}
	if e.HTTPTimeout <= 0 {
		e.HTTPTimeout = 5 * time.Second
	}
	if strings.TrimSpace(e.DefaultRole) == "" {
		e.DefaultRole = "user"
	}
	if strings.TrimSpace(e.RoleAttributePath) == "" {
		e.RoleAttributePath = "roles"
	}
}

// Issuer returns the v2.0 issuer URL used for discovery and ID-token validation.
func (e EntraIDConfig) Issuer() string {
	return e.Authority + "/" + e.TenantID + "/v2.0"
}

// Scopes splits Scope on whitespace.
func (e EntraIDConfig) Scopes() []string {
	return strings.Fields(e.Scope)
}

// MissingFields lists the required settings that are empty.
func (e EntraIDConfig) MissingFields() []string {
	var missing []string
	if e.TenantID == "" {
		missing = append(missing, "ENTRA_TENANT_ID")
	}
	if e.ClientID == "" {
		missing = append(missing, "ENTRA_CLIENT_ID")
	}
	if e.ClientSecret == "" {
		missing = append(missing, "ENTRA_CLIENT_SECRET")
	}
	return missing
}

// MockAuthConfig controls the mock driver routes.
type MockAuthConfig struct {
	LoginPath    string `env:"LOGIN_PATH"    envDefault:"/auth/mock/login"`
	CallbackPath string `env:"CALLBACK_PATH" envDefault:"/auth/callback"`
}

// AuthConfig groups all staff authentication configuration.
type AuthConfig struct {
	// Driver determines which authentication driver to use.
	Driver AuthDriver `env:"AUTH_DRIVER" envDefault:"mock"`

	// PostLoginRedirectURL is used when the login request carried no redirect_uri.
	PostLoginRedirectURL string `env:"AUTH_POST_LOGIN_REDIRECT_URL"`

	// Entra configuration (used when Driver=entra-id).
	Entra EntraIDConfig `envPrefix:"ENTRA_"`

	// Mock configuration (used when Driver=mock).
	Mock MockAuthConfig `envPrefix:"MOCK_AUTH_"`
}

// Sanitize applies guardrails to the auth configuration.
func (a *AuthConfig) Sanitize() {
	a.PostLoginRedirectURL = strings.TrimSpace(a.PostLoginRedirectURL)
	a.Entra.Sanitize()
	if a.Mock.LoginPath == "" {
		a.Mock.LoginPath = "/auth/mock/login"
	}
	if a.Mock.CallbackPath == "" {
		a.Mock.CallbackPath = "/auth/callback"
	}
}
