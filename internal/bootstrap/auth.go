package bootstrap

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/target/portal-api/config"
	"github.com/target/portal-api/internal/adapters/authroles"
	"github.com/target/portal-api/internal/adapters/entraid"
	"github.com/target/portal-api/internal/adapters/mockauth"
	"github.com/target/portal-api/internal/data/cryptoutil"
	apperrors "github.com/target/portal-api/internal/errors"
	"github.com/target/portal-api/internal/ports"
)

// AuthDriverConfig contains what driver construction needs.
type AuthDriverConfig struct {
	Env  config.Environment
	Auth config.AuthConfig
	// Encryptor is nil when no token encryption key is configured.
	Encryptor  cryptoutil.Encryptor
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// BuildAuthDriver selects the staff auth driver once at startup.
// Unknown drivers and incomplete configuration are ConfigurationErrors.
//
//nolint:ireturn // the driver is chosen at runtime
func BuildAuthDriver(ctx context.Context, cfg AuthDriverConfig) (ports.AuthDriver, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Auth.Driver {
	case config.AuthDriverMock:
		d, err := mockauth.New(mockauth.Config{
			Env:          cfg.Env,
			LoginPath:    cfg.Auth.Mock.LoginPath,
			CallbackPath: cfg.Auth.Mock.CallbackPath,
		})
		if err != nil {
			return nil, err
		}
		logger.WarnContext(ctx, "mock auth driver enabled; do not use outside development")
		return d, nil

	case config.AuthDriverEntraID:
		d, err := buildEntraDriver(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return d, nil

	default:
		return nil, apperrors.Configurationf("unsupported AUTH_DRIVER %q (valid options: mock, entra-id)", cfg.Auth.Driver)
	}
}

func buildEntraDriver(ctx context.Context, cfg AuthDriverConfig, logger *slog.Logger) (*entraid.Driver, error) {
	entra := cfg.Auth.Entra
	mapper, err := authroles.NewClaimRoleMapper(authroles.ClaimRoleMapperOptions{
		Expression:  entra.RoleAttributePath,
		GroupRoles:  entra.GroupRoles,
		DefaultRole: entra.DefaultRole,
		Logger:      logger,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfiguration, "ENTRA_ROLE_ATTRIBUTE_PATH")
	}

	d, err := entraid.New(ctx, entraid.Options{
		Config:     entra,
		Roles:      mapper,
		Encryptor:  cfg.Encryptor,
		HTTPClient: cfg.HTTPClient,
		Logger:     logger,
	})
	if err != nil {
		if apperrors.IsConfiguration(err) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfiguration, "entra-id discovery")
	}
	logger.InfoContext(ctx, "entra-id auth driver ready", "tenant_id", entra.TenantID, "client_id", entra.ClientID)
	return d, nil
}
