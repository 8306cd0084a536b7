package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/portal-api/config"
	"github.com/target/portal-api/internal/adapters/jwks"
	"github.com/target/portal-api/internal/adapters/memory"
	"github.com/target/portal-api/internal/adapters/mockauth"
	"github.com/target/portal-api/internal/data/cryptoutil"
	"github.com/target/portal-api/internal/observability/metrics"
	"github.com/target/portal-api/internal/service"
	"github.com/target/portal-api/internal/testutil"
)

const (
	testTenant   = "tenant-1"
	testAudience = "api://portal"
	testCookie   = "portal.sid"
)

type harnessOptions struct {
	serviceAuthDisabled bool
	allowedClients      []string
	allowedHosts        []string
	rateBurst           int
}

type harness struct {
	server  *httptest.Server
	client  *http.Client
	idp     *testutil.FakeIdP
	store   *memory.SessionStore
	metrics *metrics.Recorder
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	store := memory.NewSessionStore(memory.Config{})
	signer, err := cryptoutil.NewCookieSigner([]string{"http-test-secret"})
	require.NoError(t, err)
	sessions := service.NewSessionManager(service.SessionManagerOptions{
		Store:  store,
		Signer: signer,
		Config: service.SessionManagerConfig{TTL: time.Hour, CookieName: testCookie},
	})

	driver, err := mockauth.New(mockauth.Config{Env: config.EnvTest})
	require.NoError(t, err)
	rec := metrics.New(nil)
	authSvc := service.NewAuthService(service.AuthServiceOptions{
		Driver:   driver,
		Sessions: sessions,
		Config:   service.AuthServiceConfig{Metrics: rec},
	})

	idp := testutil.NewFakeIdP(t, testTenant, "portal-web")
	saCfg := config.ServiceAuthConfig{
		Enabled:          !opts.serviceAuthDisabled,
		TenantID:         testTenant,
		Audience:         testAudience,
		AllowedClientIDs: opts.allowedClients,
		Authority:        idp.Authority(),
		ClockSkew:        time.Minute,
	}
	verifier, err := jwks.NewVerifier(jwks.VerifierOptions{
		Cache:     jwks.NewCache(jwks.CacheOptions{HTTPClient: idp.Server.Client(), Metrics: rec}),
		JWKSURL:   saCfg.JWKSURL(),
		Issuer:    saCfg.Issuer(),
		Audience:  saCfg.Audience,
		ClockSkew: saCfg.ClockSkew,
	})
	require.NoError(t, err)
	serviceAuth := service.NewServiceAuthenticator(service.ServiceAuthenticatorOptions{
		Verifier: verifier,
		Config:   saCfg,
	})

	burst := opts.rateBurst
	if burst == 0 {
		burst = 100
	}
	router := NewRouter(RouterServices{
		Auth:        authSvc,
		Sessions:    sessions,
		ServiceAuth: serviceAuth,
		Mock:        driver,
		Metrics:     rec,
		Config: RouterConfig{
			PublicPrefix:       "/api/public",
			AllowedHosts:       opts.allowedHosts,
			AuthRateLimit:      0.001,
			AuthRateBurst:      burst,
			MetricsPath:        "/metrics",
			ServiceAuthEnabled: saCfg.Configured(),
		},
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &harness{server: srv, client: client, idp: idp, store: store, metrics: rec}
}

func (h *harness) do(t *testing.T, method, path string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	return h.do(t, http.MethodGet, path, nil)
}

// login runs the mock flow for selector and returns the post-login redirect.
func (h *harness) login(t *testing.T, selector, returnTo string) string {
	t.Helper()
	path := "/auth/login"
	if returnTo != "" {
		path += "?redirect_uri=" + url.QueryEscape(returnTo)
	}
	resp := h.get(t, path)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/auth/mock/login", resp.Header.Get("Location"))

	resp = h.get(t, "/auth/callback?user="+selector)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	return resp.Header.Get("Location")
}

func (h *harness) sessionCookie(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(h.server.URL)
	require.NoError(t, err)
	for _, c := range h.client.Jar.Cookies(u) {
		if c.Name == testCookie {
			return c.Value
		}
	}
	return ""
}

func (h *harness) csrfToken(t *testing.T) string {
	t.Helper()
	resp := h.get(t, "/auth/csrf")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Token string `json:"csrfToken"`
	}
	decodeData(t, resp, &body)
	require.NotEmpty(t, body.Token)
	return body.Token
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"), "body: %s", raw)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)
	return env
}

func decodeData(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	env := decodeEnvelope(t, resp)
	require.False(t, env.Success)
	return env.Error.Code
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}
