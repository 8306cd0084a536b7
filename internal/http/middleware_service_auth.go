package httpx

import (
	"context"
	"net/http"

	domainauth "github.com/target/portal-api/internal/domain/auth"
	apperrors "github.com/target/portal-api/internal/errors"
)

// ServiceAuthenticator verifies the Authorization header of a service caller.
type ServiceAuthenticator interface {
	Authenticate(ctx context.Context, authorization string) (*domainauth.ServiceClient, error)
}

// RequireServiceAuth rejects requests without a verified Bearer token.
func RequireServiceAuth(auth ServiceAuthenticator, events *SecurityEvents) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client, err := auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				code := apperrors.GetCode(err)
				if code == "" {
					code = apperrors.ErrCodeInvalidToken
				}
				events.Record(r, code)
				if code != apperrors.ErrCodeServiceAuthNotConfigured {
					w.Header().Set("WWW-Authenticate", `Bearer error="`+bearerErrorFor(code)+`"`)
				}
				WriteErrorCode(w, code)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetServiceClientInContext(r.Context(), client)))
		})
	}
}

// OptionalServiceAuth attaches the caller when a valid token is presented and
// otherwise continues anonymously. Presented but rejected tokens are still recorded.
func OptionalServiceAuth(auth ServiceAuthenticator, events *SecurityEvents) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client, err := auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				switch apperrors.GetCode(err) {
				case apperrors.ErrCodeServiceAuthNotConfigured, apperrors.ErrCodeMissingToken:
				default:
					events.Record(r, apperrors.GetCode(err))
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetServiceClientInContext(r.Context(), client)))
		})
	}
}

func bearerErrorFor(code apperrors.ErrorCode) string {
	if code == apperrors.ErrCodeMissingToken {
		return "invalid_request"
	}
	return "invalid_token"
}
