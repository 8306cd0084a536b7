package httpx

import (
	"net/http"
	"time"

	apperrors "github.com/target/portal-api/internal/errors"
)

// APIHandlers serves the staff API and the public service API.
type APIHandlers struct {
	Driver    string
	StartedAt time.Time
	Now       func() time.Time
	// ServiceAuthEnabled is reported by the public status endpoint.
	ServiceAuthEnabled bool
}

func (h *APIHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Profile returns the signed-in user.
// GET /api/profile (RequireAuth).
func (h *APIHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		WriteErrorCode(w, apperrors.ErrCodeUnauthorized)
		return
	}
	WriteData(w, http.StatusOK, newUserView(user))
}

type adminStatusResponse struct {
	Driver        string `json:"driver"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	ServiceAuth   bool   `json:"serviceAuthEnabled"`
}

// AdminStatus reports runtime details to administrators.
// GET /api/admin/status (RequireRole admin).
func (h *APIHandlers) AdminStatus(w http.ResponseWriter, _ *http.Request) {
	WriteData(w, http.StatusOK, adminStatusResponse{
		Driver:        h.Driver,
		UptimeSeconds: int64(h.now().Sub(h.StartedAt).Seconds()),
		ServiceAuth:   h.ServiceAuthEnabled,
	})
}

type publicStatusResponse struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
	ClientID      string `json:"clientId,omitempty"`
}

// PublicStatus is readable anonymously; a verified caller is echoed back.
// GET {prefix}/status (OptionalServiceAuth).
func (h *APIHandlers) PublicStatus(w http.ResponseWriter, r *http.Request) {
	resp := publicStatusResponse{Status: "ok"}
	if client, ok := ServiceClientFromContext(r.Context()); ok {
		resp.Authenticated = true
		resp.ClientID = client.ClientID
	}
	WriteData(w, http.StatusOK, resp)
}

// WhoAmI returns the verified service caller.
// GET|POST {prefix}/whoami (RequireServiceAuth).
func (h *APIHandlers) WhoAmI(w http.ResponseWriter, r *http.Request) {
	client, ok := ServiceClientFromContext(r.Context())
	if !ok {
		WriteErrorCode(w, apperrors.ErrCodeMissingToken)
		return
	}
	WriteData(w, http.StatusOK, client)
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health is the liveness probe.
// GET /healthz.
func Health(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// NotFound renders the JSON 404 for unmatched paths.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteErrorCode(w, apperrors.ErrCodeNotFound)
}
