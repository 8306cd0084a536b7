package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/portal-api/config"
	"github.com/target/portal-api/internal/adapters/jwks"
	apperrors "github.com/target/portal-api/internal/errors"
	mocks "github.com/target/portal-api/internal/mocks/auth"
	"github.com/target/portal-api/internal/ports"
	"github.com/target/portal-api/internal/testutil"
)

func enabledServiceAuth(allowed ...string) config.ServiceAuthConfig {
	return config.ServiceAuthConfig{
		Enabled:          true,
		TenantID:         "tenant-1",
		Audience:         "api://portal",
		AllowedClientIDs: allowed,
	}
}

func TestNewServiceAuthenticator_RequiresVerifierWhenConfigured(t *testing.T) {
	assert.Panics(t, func() {
		NewServiceAuthenticator(ServiceAuthenticatorOptions{Config: enabledServiceAuth()})
	})
	assert.NotPanics(t, func() {
		NewServiceAuthenticator(ServiceAuthenticatorOptions{Config: config.ServiceAuthConfig{}})
	})
}

func TestServiceAuthenticator_Authenticate(t *testing.T) {
	okClaims := ports.ServiceTokenClaims{AZP: "client-a", TenantID: "tenant-1", Roles: []string{"Portal.Read"}}

	tests := []struct {
		name       string
		cfg        config.ServiceAuthConfig
		verifier   *mocks.StubVerifier
		header     string
		wantCode   apperrors.ErrorCode
		wantClient string
		wantCalls  int
	}{
		{
			name:     "disabled",
			cfg:      config.ServiceAuthConfig{TenantID: "tenant-1", Audience: "api://portal"},
			verifier: &mocks.StubVerifier{Claims: okClaims},
			header:   "Bearer abc",
			wantCode: apperrors.ErrCodeServiceAuthNotConfigured,
		},
		{
			name:     "enabled without audience",
			cfg:      config.ServiceAuthConfig{Enabled: true, TenantID: "tenant-1"},
			verifier: &mocks.StubVerifier{Claims: okClaims},
			header:   "Bearer abc",
			wantCode: apperrors.ErrCodeServiceAuthNotConfigured,
		},
		{
			name:     "no header",
			cfg:      enabledServiceAuth(),
			verifier: &mocks.StubVerifier{Claims: okClaims},
			wantCode: apperrors.ErrCodeMissingToken,
		},
		{
			name:     "basic scheme",
			cfg:      enabledServiceAuth(),
			verifier: &mocks.StubVerifier{Claims: okClaims},
			header:   "Basic dXNlcjpwYXNz",
			wantCode: apperrors.ErrCodeMissingToken,
		},
		{
			name:     "bearer without token",
			cfg:      enabledServiceAuth(),
			verifier: &mocks.StubVerifier{Claims: okClaims},
			header:   "Bearer   ",
			wantCode: apperrors.ErrCodeMissingToken,
		},
		{
			name:      "verification failure",
			cfg:       enabledServiceAuth(),
			verifier:  &mocks.StubVerifier{Err: errors.New(`"aud" not satisfied`)},
			header:    "Bearer abc",
			wantCode:  apperrors.ErrCodeInvalidToken,
			wantCalls: 1,
		},
		{
			name:      "client outside allowlist",
			cfg:       enabledServiceAuth("client-b"),
			verifier:  &mocks.StubVerifier{Claims: okClaims},
			header:    "Bearer abc",
			wantCode:  apperrors.ErrCodeClientNotAllowed,
			wantCalls: 1,
		},
		{
			name:       "allowlisted client",
			cfg:        enabledServiceAuth("client-b", "client-a"),
			verifier:   &mocks.StubVerifier{Claims: okClaims},
			header:     "Bearer abc",
			wantClient: "client-a",
			wantCalls:  1,
		},
		{
			name:       "empty allowlist admits any tenant client",
			cfg:        enabledServiceAuth(),
			verifier:   &mocks.StubVerifier{Claims: okClaims},
			header:     "bearer abc",
			wantClient: "client-a",
			wantCalls:  1,
		},
		{
			name:       "appid fallback",
			cfg:        enabledServiceAuth("legacy-app"),
			verifier:   &mocks.StubVerifier{Claims: ports.ServiceTokenClaims{AppID: "legacy-app"}},
			header:     "Bearer abc",
			wantClient: "legacy-app",
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewServiceAuthenticator(ServiceAuthenticatorOptions{Verifier: tt.verifier, Config: tt.cfg})

			client, err := a.Authenticate(context.Background(), tt.header)
			assert.Equal(t, tt.wantCalls, tt.verifier.Calls)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperrors.GetCode(err))
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, client)
			assert.Equal(t, tt.wantClient, client.ClientID)
			assert.NotNil(t, client.Roles)
		})
	}
}

func TestServiceAuthenticator_WithTenantKeys(t *testing.T) {
	idp := testutil.NewFakeIdP(t, "tenant-1", "portal-web")
	cfg := config.ServiceAuthConfig{
		Enabled:          true,
		TenantID:         "tenant-1",
		Audience:         "api://portal",
		AllowedClientIDs: []string{"reporting-job"},
		Authority:        idp.Authority(),
		ClockSkew:        time.Minute,
	}
	verifier, err := jwks.NewVerifier(jwks.VerifierOptions{
		Cache:     jwks.NewCache(jwks.CacheOptions{HTTPClient: idp.Server.Client()}),
		JWKSURL:   cfg.JWKSURL(),
		Issuer:    cfg.Issuer(),
		Audience:  cfg.Audience,
		ClockSkew: cfg.ClockSkew,
	})
	require.NoError(t, err)
	a := NewServiceAuthenticator(ServiceAuthenticatorOptions{Verifier: verifier, Config: cfg})
	ctx := context.Background()

	client, err := a.Authenticate(ctx, "Bearer "+idp.Mint(t, idp.ServiceClaims("api://portal", "reporting-job")))
	require.NoError(t, err)
	assert.Equal(t, "reporting-job", client.ClientID)
	assert.Equal(t, "tenant-1", client.TenantID)
	assert.Equal(t, []string{"Portal.Read"}, client.Roles)

	_, err = a.Authenticate(ctx, "Bearer "+idp.Mint(t, idp.ServiceClaims("api://other", "reporting-job")))
	assert.Equal(t, apperrors.ErrCodeInvalidToken, apperrors.GetCode(err))

	_, err = a.Authenticate(ctx, "Bearer "+idp.Mint(t, idp.ServiceClaims("api://portal", "intruder")))
	assert.Equal(t, apperrors.ErrCodeClientNotAllowed, apperrors.GetCode(err))

	_, err = a.Authenticate(ctx, "Bearer "+idp.MintUntrusted(t, idp.ServiceClaims("api://portal", "reporting-job")))
	assert.Equal(t, apperrors.ErrCodeInvalidToken, apperrors.GetCode(err))
}
