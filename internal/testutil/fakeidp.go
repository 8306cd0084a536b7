package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// FakeIdPKeyID is the kid of the trusted signing key published on the JWKS endpoint.
const FakeIdPKeyID = "fake-idp-key-1"

// FakeIdP is an httptest server laid out like an Entra ID tenant:
//
//	{URL}/{tenant}/v2.0/.well-known/openid-configuration
//	{URL}/{tenant}/discovery/v2.0/keys
//	{URL}/{tenant}/oauth2/v2.0/authorize | token | logout
type FakeIdP struct {
	Server   *httptest.Server
	TenantID string
	ClientID string

	signer    jwk.Key
	untrusted jwk.Key

	mu            sync.Mutex
	idClaims      map[string]any
	tokenStatus   int
	lastTokenForm url.Values

	tokenRequests atomic.Int64
	jwksRequests  atomic.Int64
}

// NewFakeIdP starts a fake tenant for clientID. The server is closed on test cleanup.
func NewFakeIdP(t testing.TB, tenantID, clientID string) *FakeIdP {
	t.Helper()
	idp := &FakeIdP{
		TenantID:    tenantID,
		ClientID:    clientID,
		signer:      newSigningKey(t, FakeIdPKeyID),
		untrusted:   newSigningKey(t, "untrusted-key"),
		tokenStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	base := "/" + tenantID
	mux.HandleFunc("GET "+base+"/v2.0/.well-known/openid-configuration", idp.handleDiscovery)
	mux.HandleFunc("GET "+base+"/discovery/v2.0/keys", idp.handleJWKS)
	mux.HandleFunc("POST "+base+"/oauth2/v2.0/token", idp.handleToken)
	idp.Server = httptest.NewServer(mux)
	t.Cleanup(idp.Server.Close)
	return idp
}

func newSigningKey(t testing.TB, kid string) jwk.Key {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	key, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("jwk from raw: %v", err)
	}
	for k, v := range map[string]any{
		jwk.KeyIDKey:     kid,
		jwk.AlgorithmKey: jwa.RS256,
		jwk.KeyUsageKey:  "sig",
	} {
		if err := key.Set(k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	return key
}

// Authority is the base URL to configure as ENTRA_AUTHORITY or SERVICE_AUTH_AUTHORITY.
func (f *FakeIdP) Authority() string { return f.Server.URL }

// Issuer is the v2.0 issuer of the tenant.
func (f *FakeIdP) Issuer() string { return f.Server.URL + "/" + f.TenantID + "/v2.0" }

// JWKSURL is the key discovery endpoint of the tenant.
func (f *FakeIdP) JWKSURL() string {
	return f.Server.URL + "/" + f.TenantID + "/discovery/v2.0/keys"
}

// EndSessionURL is the advertised end_session_endpoint.
func (f *FakeIdP) EndSessionURL() string {
	return f.Server.URL + "/" + f.TenantID + "/oauth2/v2.0/logout"
}

// SetIDTokenClaims sets the claims merged into the next issued ID tokens.
func (f *FakeIdP) SetIDTokenClaims(claims map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idClaims = maps.Clone(claims)
}

// FailTokenRequests makes the token endpoint answer with status.
func (f *FakeIdP) FailTokenRequests(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenStatus = status
}

// TokenRequests reports how many token requests were received.
func (f *FakeIdP) TokenRequests() int64 { return f.tokenRequests.Load() }

// JWKSRequests reports how many key set requests were received.
func (f *FakeIdP) JWKSRequests() int64 { return f.jwksRequests.Load() }

// LastTokenForm returns the form of the most recent token request.
func (f *FakeIdP) LastTokenForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTokenForm
}

// Mint signs claims with the trusted key.
func (f *FakeIdP) Mint(t testing.TB, claims map[string]any) string {
	t.Helper()
	return mint(t, f.signer, claims)
}

// MintUntrusted signs claims with a key that is not published on the JWKS endpoint.
func (f *FakeIdP) MintUntrusted(t testing.TB, claims map[string]any) string {
	t.Helper()
	return mint(t, f.untrusted, claims)
}

// ServiceClaims returns a valid client-credentials claim set for audience and azp.
func (f *FakeIdP) ServiceClaims(audience, azp string) map[string]any {
	now := time.Now()
	return map[string]any{
		"iss":   f.Issuer(),
		"aud":   audience,
		"sub":   "service-principal-" + azp,
		"azp":   azp,
		"tid":   f.TenantID,
		"roles": []string{"Portal.Read"},
		"iat":   now,
		"nbf":   now.Add(-time.Minute),
		"exp":   now.Add(time.Hour),
	}
}

func mint(t testing.TB, key jwk.Key, claims map[string]any) string {
	t.Helper()
	signed, err := sign(key, claims)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func sign(key jwk.Key, claims map[string]any) (string, error) {
	tok := jwt.New()
	for k, v := range claims {
		if err := tok.Set(k, v); err != nil {
			return "", fmt.Errorf("set claim %s: %w", k, err)
		}
	}
	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.KeyIDKey, key.KeyID()); err != nil {
		return "", fmt.Errorf("set kid: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func (f *FakeIdP) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	base := f.Server.URL + "/" + f.TenantID
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                f.Issuer(),
		"authorization_endpoint":                base + "/oauth2/v2.0/authorize",
		"token_endpoint":                        base + "/oauth2/v2.0/token",
		"jwks_uri":                              f.JWKSURL(),
		"end_session_endpoint":                  f.EndSessionURL(),
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"pairwise"},
	})
}

func (f *FakeIdP) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	f.jwksRequests.Add(1)
	pub, err := jwk.PublicKeyOf(f.signer)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (f *FakeIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	f.tokenRequests.Add(1)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.lastTokenForm = r.PostForm
	status := f.tokenStatus
	extra := maps.Clone(f.idClaims)
	f.mu.Unlock()

	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{
			"error":             "invalid_grant",
			"error_description": "AADSTS70008: the provided authorization code has expired",
		})
		return
	}

	now := time.Now()
	claims := map[string]any{
		"iss": f.Issuer(),
		"aud": f.ClientID,
		"tid": f.TenantID,
		"iat": now,
		"exp": now.Add(time.Hour),
	}
	maps.Copy(claims, extra)

	idToken, err := sign(f.signer, claims)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  "fake-access-token",
		"refresh_token": "fake-refresh-token",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"id_token":      idToken,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
