package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/target/portal-api/config"
	"github.com/target/portal-api/internal/adapters/jwks"
	"github.com/target/portal-api/internal/adapters/mockauth"
	httpx "github.com/target/portal-api/internal/http"
	"github.com/target/portal-api/internal/observability/metrics"
	"github.com/target/portal-api/internal/ports"
	"github.com/target/portal-api/internal/service"
)

// AppDeps contains the inputs for BuildApp.
type AppDeps struct {
	Config *config.AppConfig
	Logger *slog.Logger
	// Store overrides the configured session store; tests pass a memory store.
	Store *SessionStore
	// HTTPClient is used for provider discovery, token exchange and JWKS fetches.
	HTTPClient *http.Client
}

// App is the fully wired server.
type App struct {
	Config      *config.AppConfig
	Logger      *slog.Logger
	Store       *SessionStore
	Driver      ports.AuthDriver
	Sessions    *service.SessionManager
	Auth        *service.AuthService
	ServiceAuth *service.ServiceAuthenticator
	Metrics     *metrics.Recorder
	Handler     http.Handler
}

// BuildApp wires configuration into services and the router.
func BuildApp(ctx context.Context, deps AppDeps) (*App, error) {
	if deps.Config == nil {
		return nil, errors.New("app config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rec := metrics.New(nil)

	encryptor, err := CreateEncryptor(cfg.Session.TokenEncryptionKey, logger)
	if err != nil {
		return nil, err
	}
	signer, err := CreateCookieSigner(cfg.Env, cfg.Session.Secrets, logger)
	if err != nil {
		return nil, err
	}

	driver, err := BuildAuthDriver(ctx, AuthDriverConfig{
		Env:        cfg.Env,
		Auth:       cfg.Auth,
		Encryptor:  encryptor,
		HTTPClient: deps.HTTPClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	serviceAuth, err := buildServiceAuth(cfg.ServiceAuth, deps.HTTPClient, rec, logger)
	if err != nil {
		return nil, err
	}

	store := deps.Store
	if store == nil {
		store, err = BuildSessionStore(ctx, StoreConfig{Config: cfg, Logger: logger})
		if err != nil {
			return nil, err
		}
	}

	sessions := service.NewSessionManager(service.SessionManagerOptions{
		Store:  store.Store,
		Signer: signer,
		Config: service.SessionManagerConfig{
			TTL:          cfg.Session.TTL,
			CookieName:   cfg.Session.CookieName,
			CookieDomain: cfg.HTTP.CookieDomain,
			Secure:       cfg.IsProduction() || strings.HasPrefix(cfg.HTTP.BaseURL, "https://"),
			Logger:       logger,
		},
	})
	authSvc := service.NewAuthService(service.AuthServiceOptions{
		Driver:   driver,
		Sessions: sessions,
		Config: service.AuthServiceConfig{
			PostLoginRedirectURL: cfg.Auth.PostLoginRedirectURL,
			Metrics:              rec,
			Logger:               logger,
		},
	})

	routerServices := httpx.RouterServices{
		Auth:        authSvc,
		Sessions:    sessions,
		ServiceAuth: serviceAuth,
		Metrics:     rec,
		Logger:      logger,
		Config: httpx.RouterConfig{
			PublicPrefix:       cfg.HTTP.PublicPrefix,
			AllowedHosts:       cfg.HTTP.AllowedHosts,
			CookieDomain:       cfg.HTTP.CookieDomain,
			TrustProxy:         cfg.HTTP.TrustProxy,
			AuthRateLimit:      cfg.HTTP.AuthRateLimit,
			AuthRateBurst:      cfg.HTTP.AuthRateBurst,
			ServiceAuthEnabled: cfg.ServiceAuth.Configured(),
		},
	}
	if cfg.Observability.Metrics.IsEnabled() {
		routerServices.Config.MetricsPath = cfg.Observability.Metrics.Path
	}
	if mock, ok := driver.(*mockauth.Driver); ok {
		routerServices.Mock = mock
	}

	logger.InfoContext(ctx, "portal-api configured",
		"env", cfg.Env,
		"auth_driver", driver.Name(),
		"session_store", cfg.Session.Store,
		"service_auth", cfg.ServiceAuth.Configured(),
		"metrics", cfg.Observability.Metrics.IsEnabled(),
	)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Store:       store,
		Driver:      driver,
		Sessions:    sessions,
		Auth:        authSvc,
		ServiceAuth: serviceAuth,
		Metrics:     rec,
		Handler:     httpx.NewRouter(routerServices),
	}, nil
}

// buildServiceAuth wires the JWKS cache and verifier when Bearer auth is configured.
// An unconfigured authenticator answers every request with service_auth_not_configured.
func buildServiceAuth(
	cfg config.ServiceAuthConfig,
	client *http.Client,
	rec *metrics.Recorder,
	logger *slog.Logger,
) (*service.ServiceAuthenticator, error) {
	opts := service.ServiceAuthenticatorOptions{Config: cfg, Logger: logger}
	if cfg.Configured() {
		if client == nil {
			client = &http.Client{Timeout: cfg.JWKSTimeout}
		}
		verifier, err := jwks.NewVerifier(jwks.VerifierOptions{
			Cache: jwks.NewCache(jwks.CacheOptions{
				HTTPClient: client,
				Timeout:    cfg.JWKSTimeout,
				Metrics:    rec,
			}),
			JWKSURL:   cfg.JWKSURL(),
			Issuer:    cfg.Issuer(),
			Audience:  cfg.Audience,
			ClockSkew: cfg.ClockSkew,
		})
		if err != nil {
			return nil, fmt.Errorf("build service token verifier: %w", err)
		}
		opts.Verifier = verifier
	} else if cfg.Enabled {
		logger.Warn("SERVICE_AUTH_ENABLED set without tenant or audience; service API will return 503",
			"tenant_id_empty", cfg.TenantID == "",
			"audience_empty", cfg.Audience == "",
		)
	}
	return service.NewServiceAuthenticator(opts), nil
}

// Close releases the store connections.
func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// Run serves until ctx is cancelled or the server fails, then drains in-flight requests.
func (a *App) Run(ctx context.Context, ln net.Listener) error {
	server, errCh := StartHTTPServer(HTTPServerConfig{
		HTTP:     a.Config.HTTP,
		Handler:  a.Handler,
		Logger:   a.Logger,
		Listener: ln,
	})

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr == nil {
			return nil
		}
		a.Logger.Error("service error", "error", serveErr)
	}

	timeout := a.Config.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := ShutdownHTTPServer(ShutdownConfig{Context: shutdownCtx, Server: server, Logger: a.Logger}); err != nil {
		return errors.Join(serveErr, fmt.Errorf("shutdown http server: %w", err))
	}
	return serveErr
}
