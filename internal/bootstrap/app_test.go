package bootstrap

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/portal-api/config"
	"github.com/target/portal-api/internal/adapters/memory"
	"github.com/target/portal-api/internal/testutil"
)

func testAppConfig() *config.AppConfig {
	cfg := &config.AppConfig{Env: config.EnvTest}
	cfg.Auth.Driver = config.AuthDriverMock
	cfg.Session.Store = config.SessionStoreMemory
	cfg.Observability.Metrics.Enabled = true
	cfg.Sanitize()
	return cfg
}

func memoryStore() *SessionStore {
	return &SessionStore{Store: memory.NewSessionStore(memory.Config{})}
}

func TestBuildApp_Mock(t *testing.T) {
	app, err := BuildApp(context.Background(), AppDeps{
		Config: testAppConfig(),
		Logger: discardLogger(),
		Store:  memoryStore(),
	})
	require.NoError(t, err)
	assert.Equal(t, "mock", app.Driver.Name())
	assert.NotNil(t, app.Handler)
	assert.NoError(t, app.Close())
}

func TestBuildApp_ServiceAuthWiring(t *testing.T) {
	idp := testutil.NewFakeIdP(t, "tenant-1", "portal-web")
	cfg := testAppConfig()
	cfg.ServiceAuth = config.ServiceAuthConfig{
		Enabled:   true,
		TenantID:  "tenant-1",
		Audience:  "api://portal",
		Authority: idp.Authority(),
	}
	cfg.ServiceAuth.Sanitize()

	app, err := BuildApp(context.Background(), AppDeps{
		Config:     cfg,
		Logger:     discardLogger(),
		Store:      memoryStore(),
		HTTPClient: idp.Server.Client(),
	})
	require.NoError(t, err)

	token := idp.Mint(t, idp.ServiceClaims("api://portal", "reporting-job"))
	client, err := app.ServiceAuth.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "reporting-job", client.ClientID)
}

func TestBuildApp_ConfigurationErrors(t *testing.T) {
	cfg := testAppConfig()
	cfg.Auth.Driver = config.AuthDriver("saml")
	_, err := BuildApp(context.Background(), AppDeps{Config: cfg, Logger: discardLogger(), Store: memoryStore()})
	assert.Error(t, err)

	_, err = BuildApp(context.Background(), AppDeps{})
	assert.Error(t, err)
}

func TestApp_RunServesAndShutsDown(t *testing.T) {
	app, err := BuildApp(context.Background(), AppDeps{
		Config: testAppConfig(),
		Logger: discardLogger(),
		Store:  memoryStore(),
	})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, ln) }()

	get := func(path string) (int, string) {
		resp, getErr := http.Get(base + path)
		require.NoError(t, getErr)
		defer resp.Body.Close()
		body, readErr := io.ReadAll(resp.Body)
		require.NoError(t, readErr)
		return resp.StatusCode, string(body)
	}

	status, body := get("/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	status, body = get("/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "portal_http_requests_total")

	status, _ = get("/api/public/whoami")
	assert.Equal(t, http.StatusServiceUnavailable, status, "service auth is not configured")

	cancel()
	select {
	case runErr := <-done:
		assert.NoError(t, runErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
