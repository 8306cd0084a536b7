package httpx

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/target/portal-api/internal/errors"
)

const (
	// DefaultCSRFCookieName is the cookie the SPA reads the token from.
	DefaultCSRFCookieName = "csrf_token"
	// DefaultCSRFHeaderName is the header the SPA echoes the token in (canonical form).
	DefaultCSRFHeaderName = "X-Csrf-Token"

	csrfTokenBytes    = 32
	defaultCSRFMaxAge = 12 * time.Hour
)

// CSRFConfig configures CSRFProtection. Zero values select the defaults.
type CSRFConfig struct {
	CookieName   string
	HeaderName   string
	CookieDomain string
	MaxAge       time.Duration
	TrustProxy   bool
	Events       *SecurityEvents
}

// CSRFProtection implements the double-submit cookie check. Every response carries a
// token cookie readable by the SPA; unsafe methods must echo it in the header.
// A token minted during an unsafe request is never accepted.
func CSRFProtection(cfg CSRFConfig) Middleware {
	g := newCSRFGuard(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, minted, err := g.token(w, r)
			if err != nil {
				WriteErrorCode(w, apperrors.ErrCodeInternal)
				return
			}

			if isUnsafeMethod(r.Method) && (minted || !g.matches(r, token)) {
				g.events.Record(r, apperrors.ErrCodeCSRF)
				WriteErrorCode(w, apperrors.ErrCodeCSRF)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfTokenKey{}, token)))
		})
	}
}

type csrfGuard struct {
	cookieName   string
	headerName   string
	cookieDomain string
	maxAge       time.Duration
	trustProxy   bool
	events       *SecurityEvents
}

func newCSRFGuard(cfg CSRFConfig) *csrfGuard {
	g := &csrfGuard{
		cookieName:   cfg.CookieName,
		headerName:   cfg.HeaderName,
		cookieDomain: cfg.CookieDomain,
		maxAge:       cfg.MaxAge,
		trustProxy:   cfg.TrustProxy,
		events:       cfg.Events,
	}
	if g.cookieName == "" {
		g.cookieName = DefaultCSRFCookieName
	}
	if g.headerName == "" {
		g.headerName = DefaultCSRFHeaderName
	}
	if g.maxAge <= 0 {
		g.maxAge = defaultCSRFMaxAge
	}
	return g
}

// token returns the request's cookie token, minting and setting a new one when absent.
func (g *csrfGuard) token(w http.ResponseWriter, r *http.Request) (string, bool, error) {
	if c, err := r.Cookie(g.cookieName); err == nil && c.Value != "" {
		return c.Value, false, nil
	}

	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", false, fmt.Errorf("generate csrf token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName,
		Value:    token,
		Path:     "/",
		Domain:   g.cookieDomain,
		HttpOnly: false,
		Secure:   isSecureRequest(r, g.trustProxy),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(g.maxAge / time.Second),
	})
	return token, true, nil
}

func (g *csrfGuard) matches(r *http.Request, token string) bool {
	header := r.Header.Get(g.headerName)
	if header == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(token)) == 1
}

func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

type csrfTokenKey struct{}

// GetCSRFToken returns the token CSRFProtection attached to the request.
func GetCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenKey{}).(string)
	return token
}
