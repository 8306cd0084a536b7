package httpx

import (
	"context"
	"log/slog"
	"net/http"

	domainauth "github.com/target/portal-api/internal/domain/auth"
	apperrors "github.com/target/portal-api/internal/errors"
)

// SessionCookies loads sessions from and renders sessions to cookies.
type SessionCookies interface {
	CookieName() string
	Load(ctx context.Context, cookieValue string) (*domainauth.Session, error)
	Cookie(sess *domainauth.Session) *http.Cookie
	ClearCookie() *http.Cookie
}

// Sessions loads the session named by the session cookie into the request context.
// Requests without a valid cookie get a fresh unsaved session.
func Sessions(sessions SessionCookies, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var value string
			if c, err := r.Cookie(sessions.CookieName()); err == nil {
				value = c.Value
			}
			sess, err := sessions.Load(r.Context(), value)
			if err != nil {
				logger.ErrorContext(r.Context(), "session load failed", "error", err)
				WriteErrorCode(w, apperrors.ErrCodeInternal)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), sess)))
		})
	}
}

// RequireAuth returns 401 unless the session carries a user.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			WriteErrorCode(w, apperrors.ErrCodeUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole returns 401 without a user and 403 unless the user holds one of roles.
func RequireRole(events *SecurityEvents, roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				WriteErrorCode(w, apperrors.ErrCodeUnauthorized)
				return
			}
			if !domainauth.HasRole(user, roles...) {
				events.Record(r, apperrors.ErrCodeForbidden)
				WriteErrorCode(w, apperrors.ErrCodeForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
