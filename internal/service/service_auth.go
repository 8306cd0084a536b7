package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/target/portal-api/config"
	domainauth "github.com/target/portal-api/internal/domain/auth"
	apperrors "github.com/target/portal-api/internal/errors"
	"github.com/target/portal-api/internal/ports"
)

// ServiceAuthenticatorOptions groups dependencies for ServiceAuthenticator.
type ServiceAuthenticatorOptions struct {
	// Verifier is required when Config.Configured() is true.
	Verifier ports.ServiceTokenVerifier
	Config   config.ServiceAuthConfig
	Logger   *slog.Logger
}

// ServiceAuthenticator validates Bearer tokens of calling services.
// It never touches session state.
type ServiceAuthenticator struct {
	verifier ports.ServiceTokenVerifier
	cfg      config.ServiceAuthConfig
	logger   *slog.Logger
}

// NewServiceAuthenticator constructs a ServiceAuthenticator.
func NewServiceAuthenticator(opts ServiceAuthenticatorOptions) *ServiceAuthenticator {
	if opts.Config.Configured() && opts.Verifier == nil {
		panic("ServiceTokenVerifier is required when service auth is configured")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceAuthenticator{
		verifier: opts.Verifier,
		cfg:      opts.Config,
		logger:   logger.With("component", "service_auth"),
	}
}

// Authenticate runs the Bearer checks in order: configuration, header shape,
// token verification, client allowlist.
func (a *ServiceAuthenticator) Authenticate(ctx context.Context, authorization string) (*domainauth.ServiceClient, error) {
	if !a.cfg.Configured() || a.verifier == nil {
		return nil, apperrors.ServiceAuthNotConfigured("service authentication is not configured")
	}

	raw, ok := bearerToken(authorization)
	if !ok {
		return nil, apperrors.MissingToken("authorization header must carry a bearer token")
	}

	claims, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, apperrors.InvalidToken(err)
	}

	clientID := claims.AZP
	if clientID == "" {
		clientID = claims.AppID
	}
	if len(a.cfg.AllowedClientIDs) > 0 && !slices.Contains(a.cfg.AllowedClientIDs, clientID) {
		return nil, apperrors.ClientNotAllowed(clientID)
	}

	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	return &domainauth.ServiceClient{
		ClientID: clientID,
		TenantID: claims.TenantID,
		Roles:    roles,
	}, nil
}

// bearerToken extracts the credentials of a "Bearer <token>" header. The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
