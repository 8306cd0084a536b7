package httpx

import (
	"context"

	domainauth "github.com/target/portal-api/internal/domain/auth"
)

// sessionKey and serviceClientKey are unexported context key types to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same keys.
type (
	sessionKey       struct{}
	serviceClientKey struct{}
)

// SetSessionInContext returns a child context that carries the given session.
// If session is nil, the original ctx is returned unchanged.
func SetSessionInContext(ctx context.Context, session *domainauth.Session) context.Context {
	if session == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the staff session loaded for the request.
func SessionFromContext(ctx context.Context) (*domainauth.Session, bool) {
	if session, ok := ctx.Value(sessionKey{}).(*domainauth.Session); ok && session != nil {
		return session, true
	}
	return nil, false
}

// UserFromContext returns the authenticated staff user, or nil.
func UserFromContext(ctx context.Context) *domainauth.User {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return nil
	}
	return s.CurrentUser()
}

// SetServiceClientInContext stores a verified service caller.
func SetServiceClientInContext(ctx context.Context, client *domainauth.ServiceClient) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceClientKey{}, client)
}

// ServiceClientFromContext returns the verified service caller, if any.
func ServiceClientFromContext(ctx context.Context) (*domainauth.ServiceClient, bool) {
	c, ok := ctx.Value(serviceClientKey{}).(*domainauth.ServiceClient)
	return c, ok && c != nil
}
