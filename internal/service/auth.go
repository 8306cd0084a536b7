package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	domainauth "github.com/target/portal-api/internal/domain/auth"
	apperrors "github.com/target/portal-api/internal/errors"
	"github.com/target/portal-api/internal/observability/metrics"
	"github.com/target/portal-api/internal/ports"
)

// DefaultPostLoginPath is the destination when neither the login request nor configuration names one.
const DefaultPostLoginPath = "/profile"

// AuthServiceConfig holds optional settings and observers.
type AuthServiceConfig struct {
	// PostLoginRedirectURL is used when the login request carried no return path.
	PostLoginRedirectURL string
	Metrics              *metrics.Recorder
	Logger               *slog.Logger
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Driver   ports.AuthDriver // Required
	Sessions *SessionManager  // Required
	Config   AuthServiceConfig
}

// AuthService orchestrates the staff login flow: the driver authenticates,
// the session manager persists the result.
type AuthService struct {
	driver   ports.AuthDriver
	sessions *SessionManager
	cfg      AuthServiceConfig
	logger   *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	if opts.Driver == nil {
		panic("AuthDriver is required")
	}
	if opts.Sessions == nil {
		panic("SessionManager is required")
	}
	logger := opts.Config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		driver:   opts.Driver,
		sessions: opts.Sessions,
		cfg:      opts.Config,
		logger:   logger.With("component", "auth", "driver", opts.Driver.Name()),
	}
}

// DriverName returns the active driver identifier.
func (s *AuthService) DriverName() string { return s.driver.Name() }

// BeginLogin records the requested return path, lets the driver start the flow
// and persists the session. in.ReturnTo must already be a validated relative path.
func (s *AuthService) BeginLogin(ctx context.Context, sess *domainauth.Session, in ports.LoginInput) (ports.LoginResult, error) {
	sess.ReturnTo = in.ReturnTo

	res, err := s.driver.Login(ctx, sess, in)
	if err != nil {
		return ports.LoginResult{}, fmt.Errorf("begin login: %w", err)
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return ports.LoginResult{}, err
	}
	return res, nil
}

// CompleteLogin finishes the flow. On success the session moves to a new ID,
// carries the user and the post-login destination is returned.
func (s *AuthService) CompleteLogin(ctx context.Context, sess *domainauth.Session, query url.Values) (string, error) {
	hadPending := sess.PendingLogin != nil
	user, err := s.driver.Callback(ctx, sess, ports.CallbackInput{Query: query})
	if err != nil {
		s.cfg.Metrics.RecordLogin(s.driver.Name(), metrics.ResultError)
		s.logger.WarnContext(ctx, "login callback rejected", "code", apperrors.GetCode(err), "error", err)
		if hadPending {
			s.persistConsumedLogin(ctx, sess)
		}
		return "", err
	}
	if validateErr := user.Validate(); validateErr != nil {
		s.cfg.Metrics.RecordLogin(s.driver.Name(), metrics.ResultError)
		return "", apperrors.ClaimsMapping(validateErr.Error())
	}

	returnTo := sess.ReturnTo
	sess.ReturnTo = ""
	sess.PendingLogin = nil

	sess.User = &user
	if err := s.sessions.Regenerate(ctx, sess); err != nil {
		sess.User = nil
		return "", err
	}

	s.cfg.Metrics.RecordLogin(s.driver.Name(), metrics.ResultSuccess)
	s.logger.InfoContext(ctx, "staff login", "user_id", user.ID, "roles", user.Roles)
	return s.destination(returnTo), nil
}

// Logout ends the session and returns where to send the browser. Driver failures
// are logged and fall back to a local logout.
func (s *AuthService) Logout(ctx context.Context, sess *domainauth.Session) (string, error) {
	redirect := "/"
	res, err := s.driver.Logout(ctx, sess)
	if err != nil {
		s.logger.WarnContext(ctx, "driver logout failed; logging out locally", "error", err)
	} else if res.RedirectURL != "" {
		redirect = res.RedirectURL
	}

	if user := sess.CurrentUser(); user != nil {
		s.logger.InfoContext(ctx, "staff logout", "user_id", user.ID)
	}
	if err := s.sessions.Destroy(ctx, sess); err != nil {
		return "", err
	}
	sess.User = nil
	return redirect, nil
}

// CurrentUser returns the authenticated user of sess or nil.
func (s *AuthService) CurrentUser(sess *domainauth.Session) *domainauth.User {
	return sess.CurrentUser()
}

func (s *AuthService) destination(returnTo string) string {
	switch {
	case returnTo != "":
		return returnTo
	case s.cfg.PostLoginRedirectURL != "":
		return s.cfg.PostLoginRedirectURL
	default:
		return DefaultPostLoginPath
	}
}

// persistConsumedLogin saves a session whose pending login the driver cleared,
// so a replayed callback cannot reuse it.
func (s *AuthService) persistConsumedLogin(ctx context.Context, sess *domainauth.Session) {
	sess.PendingLogin = nil
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.WarnContext(ctx, "persist session after failed callback", "error", err)
	}
}
