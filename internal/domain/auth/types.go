// Package auth contains domain-level types for staff authentication, service clients and sessions.
// It is pure and free of framework/adapter concerns.
package auth

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// Well-known role names used by the mock users and route guards.
const (
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleUser      = "user"
)

// ErrSessionNotFound is returned by session stores when no live record exists for an ID.
var ErrSessionNotFound = errors.New("session not found")

// Attributes holds provider-specific claims for a user.
// Known keys have typed fields; anything else lands in Extra.
type Attributes struct {
	TenantID          string `json:"tenant_id,omitempty"`
	ObjectID          string `json:"object_id,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`

	// Provider tokens, stored only in encrypted form.
	AccessToken  string    `json:"access_token_enc,omitempty"`
	RefreshToken string    `json:"refresh_token_enc,omitempty"`
	IDToken      string    `json:"id_token_enc,omitempty"`
	TokenExpiry  time.Time `json:"token_expiry,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// User is the identity of an authenticated staff member.
type User struct {
	ID         string      `json:"id"`
	Email      string      `json:"email"`
	Name       string      `json:"name"`
	Roles      []string    `json:"roles"`
	Attributes *Attributes `json:"attributes,omitempty"`
}

// Validate enforces the presence of ID and Email and normalizes Roles.
func (u *User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("user email is required")
	}
	u.Roles = NormalizeRoles(u.Roles)
	return nil
}

// NormalizeRoles trims, drops empty entries and removes duplicates while keeping first-seen order.
// The result is never nil.
func NormalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// HasRole reports whether user holds any of the given roles.
// It returns false for a nil user or an empty role list.
func HasRole(user *User, roles ...string) bool {
	if user == nil {
		return false
	}
	for _, want := range roles {
		if slices.Contains(user.Roles, want) {
			return true
		}
	}
	return false
}

// ServiceClient is the identity of a calling service derived from a verified Bearer token.
// It lives only for the duration of one request.
type ServiceClient struct {
	ClientID string   `json:"clientId"`
	TenantID string   `json:"tenantId"`
	Roles    []string `json:"roles"`
}

// PendingLogin carries the anti-forgery and PKCE material between login and callback.
type PendingLogin struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is the server-side record persisted for a browser session.
// It holds at most one authenticated User.
type Session struct {
	ID           string        `json:"id"`
	User         *User         `json:"user,omitempty"`
	PendingLogin *PendingLogin `json:"pending_login,omitempty"`
	ReturnTo     string        `json:"return_to,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// CurrentUser returns the authenticated user or nil.
func (s *Session) CurrentUser() *User {
	if s == nil {
		return nil
	}
	return s.User
}

// IsAuthenticated reports whether the session carries a user.
func (s *Session) IsAuthenticated() bool { return s.CurrentUser() != nil }

// Expired reports whether the session is past its expiry at time now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
