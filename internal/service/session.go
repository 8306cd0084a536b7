package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/target/portal-api/internal/domain/auth"
	"github.com/target/portal-api/internal/ports"
)

// DefaultSessionTTL applies when SessionManagerConfig.TTL is unset.
const DefaultSessionTTL = 8 * time.Hour

// CookieSigner signs and verifies the session cookie value.
type CookieSigner interface {
	Sign(value string) string
	Verify(signed string) (string, bool)
}

// SessionManagerConfig holds cookie and lifetime settings.
type SessionManagerConfig struct {
	TTL          time.Duration
	CookieName   string
	CookieDomain string
	Secure       bool
	Logger       *slog.Logger
	Now          func() time.Time
}

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Store  ports.SessionStore // Required
	Signer CookieSigner       // Required
	Config SessionManagerConfig
}

// SessionManager loads and persists the server-side session behind the signed cookie.
type SessionManager struct {
	store  ports.SessionStore
	signer CookieSigner
	cfg    SessionManagerConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	if opts.Store == nil {
		panic("SessionStore is required")
	}
	if opts.Signer == nil {
		panic("CookieSigner is required")
	}
	cfg := opts.Config
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "portal.sid"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		store:  opts.Store,
		signer: opts.Signer,
		cfg:    cfg,
		logger: logger,
		now:    now,
	}
}

// CookieName returns the name of the session cookie.
func (m *SessionManager) CookieName() string { return m.cfg.CookieName }

// New returns a fresh, unsaved session.
func (m *SessionManager) New() *domainauth.Session {
	now := m.now()
	return &domainauth.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
}

// Load resolves the session named by a signed cookie value. Missing, tampered,
// unknown and expired cookies all yield a fresh unsaved session.
func (m *SessionManager) Load(ctx context.Context, cookieValue string) (*domainauth.Session, error) {
	if cookieValue == "" {
		return m.New(), nil
	}
	id, ok := m.signer.Verify(cookieValue)
	if !ok {
		m.logger.DebugContext(ctx, "session cookie signature rejected")
		return m.New(), nil
	}

	sess, err := m.store.Get(ctx, id)
	if errors.Is(err, domainauth.ErrSessionNotFound) {
		return m.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Expired(m.now()) {
		return m.New(), nil
	}
	return &sess, nil
}

// Save extends the expiry by the TTL and persists the session.
func (m *SessionManager) Save(ctx context.Context, sess *domainauth.Session) error {
	if sess == nil {
		return errors.New("session is required")
	}
	sess.ExpiresAt = m.now().Add(m.cfg.TTL)
	if err := m.store.Save(ctx, *sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Regenerate persists the session under a fresh ID and then removes the old record.
// If the save fails the session keeps its old ID and the old record is left in place.
// A failed delete of the old record is logged; that record still expires by TTL.
func (m *SessionManager) Regenerate(ctx context.Context, sess *domainauth.Session) error {
	if sess == nil {
		return errors.New("session is required")
	}
	oldID, oldCreated := sess.ID, sess.CreatedAt
	sess.ID = uuid.NewString()
	sess.CreatedAt = m.now()
	if err := m.Save(ctx, sess); err != nil {
		sess.ID, sess.CreatedAt = oldID, oldCreated
		return fmt.Errorf("regenerate session: %w", err)
	}
	if oldID == "" {
		return nil
	}
	if err := m.store.Delete(ctx, oldID); err != nil {
		m.logger.WarnContext(ctx, "delete previous session failed", "error", err)
	}
	return nil
}

// Destroy removes the session record.
func (m *SessionManager) Destroy(ctx context.Context, sess *domainauth.Session) error {
	if sess == nil || sess.ID == "" {
		return nil
	}
	if err := m.store.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// Cookie returns the signed session cookie for sess.
func (m *SessionManager) Cookie(sess *domainauth.Session) *http.Cookie {
	maxAge := int(sess.ExpiresAt.Sub(m.now()).Seconds())
	if maxAge <= 0 {
		maxAge = int(m.cfg.TTL.Seconds())
	}
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    m.signer.Sign(sess.ID),
		Path:     "/",
		Domain:   m.cfg.CookieDomain,
		MaxAge:   maxAge,
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie returns a cookie that removes the session cookie from the browser.
func (m *SessionManager) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.cfg.CookieDomain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
