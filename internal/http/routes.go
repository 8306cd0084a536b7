package httpx

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/target/portal-api/internal/domain/auth"
	"github.com/target/portal-api/internal/observability/metrics"
)

// RouterConfig holds transport settings for the router.
type RouterConfig struct {
	// PublicPrefix selects the service (Bearer) chain. Default "/api/public".
	PublicPrefix string
	AllowedHosts []string
	CookieDomain string
	TrustProxy   bool

	AuthRateLimit float64
	AuthRateBurst int

	// MetricsPath mounts the Prometheus handler when non-empty.
	MetricsPath string

	ServiceAuthEnabled bool
	LoginErrorPath     string
}

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth        AuthFlow             // Required
	Sessions    SessionCookies       // Required
	ServiceAuth ServiceAuthenticator // Required
	// Mock enables the chooser page when the mock driver is active.
	Mock    MockChooser
	Metrics *metrics.Recorder
	Logger  *slog.Logger
	Config  RouterConfig
}

// NewRouter builds the full handler tree. Requests under the public prefix go to the
// service chain, which never loads a session; everything else goes to the staff chain.
func NewRouter(services RouterServices) http.Handler {
	if services.Auth == nil || services.Sessions == nil || services.ServiceAuth == nil {
		panic("router requires auth, sessions and service auth")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := services.Config
	prefix := "/" + strings.Trim(cfg.PublicPrefix, "/")
	if prefix == "/" {
		prefix = "/api/public"
	}

	events := &SecurityEvents{Logger: logger, Metrics: services.Metrics, TrustProxy: cfg.TrustProxy}
	api := &APIHandlers{
		Driver:             services.Auth.DriverName(),
		StartedAt:          time.Now(),
		ServiceAuthEnabled: cfg.ServiceAuthEnabled,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", withRoute(http.HandlerFunc(Health)))
	if cfg.MetricsPath != "" && services.Metrics != nil {
		mux.Handle("GET "+cfg.MetricsPath, withRoute(services.Metrics.Handler()))
	}
	mux.Handle(prefix+"/", serviceChain(services, api, events, prefix))
	mux.Handle("/", staffChain(services, api, events, logger))

	return Chain(mux,
		Recover(logger),
		Logging(logger, services.Metrics),
		SecurityHeaders,
		AllowedHosts(cfg.AllowedHosts, events),
	)
}

func serviceChain(services RouterServices, api *APIHandlers, events *SecurityEvents, prefix string) http.Handler {
	required := RequireServiceAuth(services.ServiceAuth, events)
	optional := OptionalServiceAuth(services.ServiceAuth, events)

	mux := http.NewServeMux()
	mux.Handle("GET "+prefix+"/status", withRoute(optional(http.HandlerFunc(api.PublicStatus))))
	mux.Handle("GET "+prefix+"/whoami", withRoute(required(http.HandlerFunc(api.WhoAmI))))
	mux.Handle("POST "+prefix+"/whoami", withRoute(required(http.HandlerFunc(api.WhoAmI))))
	mux.Handle(prefix+"/", withRoute(http.HandlerFunc(NotFound)))
	return mux
}

func staffChain(services RouterServices, api *APIHandlers, events *SecurityEvents, logger *slog.Logger) http.Handler {
	cfg := services.Config
	auth := &AuthHandlers{
		Svc:            services.Auth,
		Sessions:       services.Sessions,
		Mock:           services.Mock,
		LoginErrorPath: cfg.LoginErrorPath,
		Logger:         logger,
	}
	limited := RateLimit(RateLimitConfig{
		PerSecond:  cfg.AuthRateLimit,
		Burst:      cfg.AuthRateBurst,
		TrustProxy: cfg.TrustProxy,
	}, events)
	admin := RequireRole(events, domainauth.RoleAdmin)

	mux := http.NewServeMux()
	mux.Handle("GET /auth/login", withRoute(limited(http.HandlerFunc(auth.Login))))
	mux.Handle("GET /auth/callback", withRoute(limited(http.HandlerFunc(auth.Callback))))
	if services.Mock != nil {
		mux.Handle("GET /auth/mock/login", withRoute(http.HandlerFunc(auth.MockLogin)))
	}
	mux.Handle("POST /auth/logout", withRoute(http.HandlerFunc(auth.Logout)))
	mux.Handle("GET /auth/me", withRoute(http.HandlerFunc(auth.Me)))
	mux.Handle("GET /auth/csrf", withRoute(http.HandlerFunc(auth.CSRF)))
	mux.Handle("GET /api/profile", withRoute(RequireAuth(http.HandlerFunc(api.Profile))))
	mux.Handle("GET /api/admin/status", withRoute(admin(http.HandlerFunc(api.AdminStatus))))
	mux.Handle("/", withRoute(http.HandlerFunc(NotFound)))

	return Chain(mux,
		Sessions(services.Sessions, logger),
		CSRFProtection(CSRFConfig{
			CookieDomain: cfg.CookieDomain,
			TrustProxy:   cfg.TrustProxy,
			Events:       events,
		}),
	)
}
