package httpx

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/target/portal-api/internal/adapters/mockauth"
	domainauth "github.com/target/portal-api/internal/domain/auth"
	apperrors "github.com/target/portal-api/internal/errors"
	"github.com/target/portal-api/internal/ports"
)

//go:embed templates/mock_login.html
var templateFS embed.FS

//nolint:gochecknoglobals // parsed once at init; read-only
var mockLoginTemplate = template.Must(template.New("mock_login.html").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(templateFS, "templates/mock_login.html"))

// DefaultLoginErrorPath is the SPA page that displays failed sign-ins.
const DefaultLoginErrorPath = "/login"

// AuthFlow is the staff login flow used by the auth handlers.
type AuthFlow interface {
	DriverName() string
	BeginLogin(ctx context.Context, sess *domainauth.Session, in ports.LoginInput) (ports.LoginResult, error)
	CompleteLogin(ctx context.Context, sess *domainauth.Session, query url.Values) (string, error)
	Logout(ctx context.Context, sess *domainauth.Session) (string, error)
}

// MockChooser lists the canned users of the mock driver.
type MockChooser interface {
	Options() []mockauth.Option
	CallbackURL(o mockauth.Option) string
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc      AuthFlow
	Sessions SessionCookies
	// Mock is set only when the mock driver is active.
	Mock           MockChooser
	LoginErrorPath string
	Logger         *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) loginErrorPath() string {
	if h.LoginErrorPath != "" {
		return h.LoginErrorPath
	}
	return DefaultLoginErrorPath
}

// Login handles the login initiation endpoint.
// GET /auth/login?redirect_uri=<optional_relative_path>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		WriteErrorCode(w, apperrors.ErrCodeInternal)
		return
	}

	in := ports.LoginInput{ReturnTo: safeRedirectPath(r.URL.Query().Get("redirect_uri"))}
	res, err := h.Svc.BeginLogin(r.Context(), sess, in)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		WriteAppError(w, err)
		return
	}

	http.SetCookie(w, h.Sessions.Cookie(sess))
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

type mockUserView struct {
	Name  string
	Email string
	Roles []string
	URL   string
}

// MockLogin renders the user chooser of the mock driver.
// GET /auth/mock/login.
func (h *AuthHandlers) MockLogin(w http.ResponseWriter, r *http.Request) {
	if h.Mock == nil {
		WriteErrorCode(w, apperrors.ErrCodeNotFound)
		return
	}
	opts := h.Mock.Options()
	users := make([]mockUserView, 0, len(opts))
	for _, o := range opts {
		users = append(users, mockUserView{
			Name:  o.User.Name,
			Email: o.User.Email,
			Roles: o.User.Roles,
			URL:   h.Mock.CallbackURL(o),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := mockLoginTemplate.Execute(w, struct{ Users []mockUserView }{users}); err != nil {
		h.logger().ErrorContext(r.Context(), "render mock login", "error", err)
	}
}

// Callback completes the login flow.
// GET /auth/callback.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		WriteErrorCode(w, apperrors.ErrCodeInternal)
		return
	}

	dest, err := h.Svc.CompleteLogin(r.Context(), sess, r.URL.Query())
	if err != nil {
		code := apperrors.GetCode(err)
		switch code {
		case apperrors.ErrCodeInvalidSelector:
			WriteErrorCode(w, code)
		case "":
			h.logger().ErrorContext(r.Context(), "login callback failed", "error", err)
			http.Redirect(w, r, h.loginErrorPath()+"?error="+url.QueryEscape(string(apperrors.ErrCodeInternal)), http.StatusFound)
		default:
			http.Redirect(w, r, h.loginErrorPath()+"?error="+url.QueryEscape(string(code)), http.StatusFound)
		}
		return
	}

	http.SetCookie(w, h.Sessions.Cookie(sess))
	http.Redirect(w, r, dest, http.StatusFound)
}

type logoutResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

// Logout ends the staff session.
// POST /auth/logout. JSON callers receive the redirect target; browsers are redirected.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		WriteErrorCode(w, apperrors.ErrCodeInternal)
		return
	}

	dest, err := h.Svc.Logout(r.Context(), sess)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "logout failed", "error", err)
		WriteAppError(w, err)
		return
	}

	http.SetCookie(w, h.Sessions.ClearCookie())
	if wantsJSON(r) {
		WriteData(w, http.StatusOK, logoutResponse{RedirectURL: dest})
		return
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

type meResponse struct {
	User   userView `json:"user"`
	Driver string   `json:"driver"`
}

// Me returns the current staff user.
// GET /auth/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		WriteErrorCode(w, apperrors.ErrCodeUnauthorized)
		return
	}
	WriteData(w, http.StatusOK, meResponse{User: newUserView(user), Driver: h.Svc.DriverName()})
}

type csrfResponse struct {
	Token  string `json:"csrfToken"`
	Header string `json:"headerName"`
}

// CSRF returns the token the SPA must echo on state-changing requests.
// GET /auth/csrf.
func (h *AuthHandlers) CSRF(w http.ResponseWriter, r *http.Request) {
	WriteData(w, http.StatusOK, csrfResponse{Token: GetCSRFToken(r), Header: DefaultCSRFHeaderName})
}

// userView is the browser-facing projection of a user. Encrypted provider tokens stay server-side.
type userView struct {
	ID                string   `json:"id"`
	Email             string   `json:"email"`
	Name              string   `json:"name"`
	Roles             []string `json:"roles"`
	TenantID          string   `json:"tenantId,omitempty"`
	PreferredUsername string   `json:"preferredUsername,omitempty"`
}

func newUserView(u *domainauth.User) userView {
	v := userView{ID: u.ID, Email: u.Email, Name: u.Name, Roles: u.Roles}
	if v.Roles == nil {
		v.Roles = []string{}
	}
	if u.Attributes != nil {
		v.TenantID = u.Attributes.TenantID
		v.PreferredUsername = u.Attributes.PreferredUsername
	}
	return v
}

// wantsJSON reports whether the caller is an XHR/JSON client rather than a browser navigation.
func wantsJSON(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

// safeRedirectPath returns candidate when it is a same-origin relative path, else "".
func safeRedirectPath(candidate string) string {
	if candidate == "" || strings.ContainsAny(candidate, "\\\r\n") {
		return ""
	}
	if !strings.HasPrefix(candidate, "/") || strings.HasPrefix(candidate, "//") {
		return ""
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return candidate
}
