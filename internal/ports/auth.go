// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.
package ports

import (
	"context"
	"net/url"
	"time"

	domainauth "github.com/target/portal-api/internal/domain/auth"
)

// LoginInput carries inputs for initiating a login.
type LoginInput struct {
	// ReturnTo is the validated relative path requested by the caller.
	ReturnTo string
}

// LoginResult tells the HTTP layer where to send the browser.
type LoginResult struct {
	RedirectURL string
}

// CallbackInput carries the provider callback request parameters.
type CallbackInput struct {
	Query url.Values
}

// LogoutResult carries the provider end-session URL, empty for a local-only logout.
type LogoutResult struct {
	RedirectURL string
}

// AuthDriver performs the staff login flow against one identity provider.
// Drivers may read and write sess.PendingLogin but never persist the session or the user.
type AuthDriver interface {
	// Name returns the driver identifier ("mock", "entra-id").
	Name() string

	// Login starts the flow and returns where to redirect.
	Login(ctx context.Context, sess *domainauth.Session, in LoginInput) (LoginResult, error)

	// Callback completes the flow and returns the authenticated identity.
	Callback(ctx context.Context, sess *domainauth.Session, in CallbackInput) (domainauth.User, error)

	// Logout returns the provider end-session redirect, if any.
	Logout(ctx context.Context, sess *domainauth.Session) (LogoutResult, error)
}

// SessionStore persists and retrieves session records.
// Get returns domainauth.ErrSessionNotFound for unknown or expired IDs.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// SessionPurger is implemented by stores that need explicit cleanup of expired records.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// RoleMapper maps ID-token claims to application roles.
type RoleMapper interface {
	Map(claims map[string]any) []string
}

// ServiceTokenClaims are the verified claims of a service Bearer token.
type ServiceTokenClaims struct {
	Subject  string
	Issuer   string
	AZP      string
	AppID    string
	TenantID string
	Roles    []string
}

// ServiceTokenVerifier checks signature, issuer, audience and validity window of a Bearer token.
type ServiceTokenVerifier interface {
	Verify(ctx context.Context, raw string) (ServiceTokenClaims, error)
}
