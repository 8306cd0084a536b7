// Package entraid implements the staff login flow against Microsoft Entra ID
// using OIDC authorization code with PKCE.
package entraid

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/target/portal-api/config"
	"github.com/target/portal-api/internal/data/cryptoutil"
	domainauth "github.com/target/portal-api/internal/domain/auth"
	apperrors "github.com/target/portal-api/internal/errors"
	"github.com/target/portal-api/internal/ports"
)

// DriverName identifies this driver in configuration and metrics.
const DriverName = "entra-id"

// randomTokenBytes is the entropy used for state and nonce.
const randomTokenBytes = 32

// Driver implements ports.AuthDriver for Entra ID.
type Driver struct {
	cfg        config.EntraIDConfig
	oauth      *oauth2.Config
	verifier   *gooidc.IDTokenVerifier
	endSession string
	roles      ports.RoleMapper
	enc        cryptoutil.Encryptor
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

var _ ports.AuthDriver = (*Driver)(nil)

// Options groups dependencies for New.
type Options struct {
	Config config.EntraIDConfig
	// Roles maps ID-token claims to roles. When nil every user gets Config.DefaultRole.
	Roles ports.RoleMapper
	// Encryptor is required when Config.StoreTokens is set.
	Encryptor  cryptoutil.Encryptor
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// New runs OIDC discovery against the tenant issuer and returns a ready driver.
func New(ctx context.Context, opts Options) (*Driver, error) {
	cfg := opts.Config
	if missing := cfg.MissingFields(); len(missing) > 0 {
		return nil, apperrors.Configurationf("entra-id driver requires %v", missing)
	}
	if cfg.StoreTokens && opts.Encryptor == nil {
		return nil, apperrors.Configuration("ENTRA_STORE_TOKENS requires SESSION_TOKEN_ENCRYPTION_KEY")
	}

	d := &Driver{
		cfg:        cfg,
		roles:      opts.Roles,
		enc:        opts.Encryptor,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if d.httpClient == nil {
		d.httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}

	// Single discovery fetch; the provider keeps the client for later JWKS refreshes.
	dctx, cancel := d.providerContext(ctx)
	defer cancel()
	op, err := gooidc.NewProvider(dctx, cfg.Issuer())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfiguration, "entra-id discovery failed")
	}

	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if claimsErr := op.Claims(&extra); claimsErr != nil {
		return nil, apperrors.Wrap(claimsErr, apperrors.ErrCodeConfiguration, "decode discovery document")
	}
	d.endSession = extra.EndSessionEndpoint

	d.verifier = op.Verifier(&gooidc.Config{ClientID: cfg.ClientID, Now: d.now})
	d.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes(),
		Endpoint:     op.Endpoint(),
	}
	return d, nil
}

func (d *Driver) Name() string { return DriverName }

// Login creates fresh state, nonce and PKCE verifier, stores them on the session
// and returns the authorize URL.
func (d *Driver) Login(_ context.Context, sess *domainauth.Session, _ ports.LoginInput) (ports.LoginResult, error) {
	if sess == nil {
		return ports.LoginResult{}, errors.New("session is required")
	}

	state, err := randomToken()
	if err != nil {
		return ports.LoginResult{}, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomToken()
	if err != nil {
		return ports.LoginResult{}, fmt.Errorf("generate nonce: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	sess.PendingLogin = &domainauth.PendingLogin{
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
		CreatedAt:    d.now(),
	}

	authURL := d.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.S256ChallengeOption(verifier),
	)
	return ports.LoginResult{RedirectURL: authURL}, nil
}

// Callback validates the provider response, redeems the code and maps the ID token to a User.
// The pending login is cleared on every call.
func (d *Driver) Callback(ctx context.Context, sess *domainauth.Session, in ports.CallbackInput) (domainauth.User, error) {
	if sess == nil {
		return domainauth.User{}, errors.New("session is required")
	}
	pending := sess.PendingLogin
	sess.PendingLogin = nil
	q := in.Query

	if pending == nil {
		return domainauth.User{}, apperrors.StateMismatch("no login in progress for this session")
	}
	if code := q.Get("error"); code != "" {
		return domainauth.User{}, apperrors.Authentication("identity provider returned an error",
			fmt.Errorf("%s: %s", code, q.Get("error_description")))
	}
	if subtle.ConstantTimeCompare([]byte(q.Get("state")), []byte(pending.State)) != 1 {
		return domainauth.User{}, apperrors.StateMismatch("state parameter does not match")
	}
	code := q.Get("code")
	if code == "" {
		return domainauth.User{}, apperrors.Authentication("authorization code is missing", nil)
	}

	tok, err := d.exchange(ctx, code, pending.CodeVerifier)
	if err != nil {
		return domainauth.User{}, err
	}

	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return domainauth.User{}, apperrors.Authentication("token response carried no id_token", err)
	}
	vctx, cancel := d.providerContext(ctx)
	defer cancel()
	idTok, err := d.verifier.Verify(vctx, rawID)
	if err != nil {
		return domainauth.User{}, apperrors.Authentication("id token verification failed", err)
	}
	if subtle.ConstantTimeCompare([]byte(idTok.Nonce), []byte(pending.Nonce)) != 1 {
		return domainauth.User{}, apperrors.Authentication("id token nonce does not match", nil)
	}

	var claims map[string]any
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return domainauth.User{}, apperrors.Authentication("decode id token claims", claimsErr)
	}

	user, err := d.mapUser(claims)
	if err != nil {
		return domainauth.User{}, err
	}
	if d.cfg.StoreTokens {
		if encErr := d.storeTokens(user.Attributes, tok, rawID); encErr != nil {
			return domainauth.User{}, encErr
		}
	}
	return user, nil
}

// Logout returns the end-session URL: ENTRA_LOGOUT_URL when configured, else the discovered endpoint.
func (d *Driver) Logout(_ context.Context, _ *domainauth.Session) (ports.LogoutResult, error) {
	target := firstNonEmpty(d.cfg.LogoutURL, d.endSession)
	if target == "" {
		return ports.LogoutResult{}, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return ports.LogoutResult{}, apperrors.Configurationf("invalid logout URL %q", target)
	}
	q := u.Query()
	if d.cfg.PostLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", d.cfg.PostLogoutRedirectURI)
	}
	q.Set("client_id", d.cfg.ClientID)
	u.RawQuery = q.Encode()
	return ports.LogoutResult{RedirectURL: u.String()}, nil
}

func (d *Driver) exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ectx, cancel := d.providerContext(ctx)
	defer cancel()

	tok, err := d.oauth.Exchange(ectx, code, oauth2.VerifierOption(verifier))
	if err == nil {
		return tok, nil
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		d.logger.WarnContext(ctx, "entra-id token exchange rejected",
			"status", status,
			"error_code", re.ErrorCode,
			"body", string(re.Body))
		return nil, apperrors.TokenExchange(fmt.Errorf("token endpoint returned status %d", status))
	}
	d.logger.WarnContext(ctx, "entra-id token exchange failed", "error", err)
	return nil, apperrors.TokenExchange(err)
}

// providerContext bounds outbound calls by the configured timeout and injects the HTTP client.
func (d *Driver) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.httpClient)
	return context.WithTimeout(ctx, d.cfg.HTTPTimeout)
}

func (d *Driver) storeTokens(attrs *domainauth.Attributes, tok *oauth2.Token, rawID string) error {
	for _, f := range []struct {
		dst   *string
		plain string
	}{
		{&attrs.AccessToken, tok.AccessToken},
		{&attrs.RefreshToken, tok.RefreshToken},
		{&attrs.IDToken, rawID},
	} {
		if f.plain == "" {
			continue
		}
		ct, err := d.enc.Encrypt(f.plain)
		if err != nil {
			return fmt.Errorf("encrypt provider token: %w", err)
		}
		*f.dst = ct
	}
	attrs.TokenExpiry = tok.Expiry
	return nil
}

// randomToken returns 32 random bytes, base64url encoded without padding.
func randomToken() (string, error) {
	b := make([]byte, randomTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
