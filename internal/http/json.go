package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/target/portal-api/internal/errors"
)

// successEnvelope wraps every successful JSON payload.
type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorBody struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// errorEnvelope wraps every JSON error.
type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// WriteData writes {success:true,data}.
func WriteData(w http.ResponseWriter, code int, data any) {
	WriteJSON(w, code, successEnvelope{Success: true, Data: data})
}

// WriteErrorCode writes {success:false,error:{code,message}} with the status and
// public message mapped from code.
func WriteErrorCode(w http.ResponseWriter, code apperrors.ErrorCode) {
	WriteJSON(w, apperrors.HTTPStatus(code), errorEnvelope{
		Error: errorBody{Code: code, Message: apperrors.PublicMessage(code)},
	})
}

// WriteAppError renders err through its error code. Errors without a code become internal.
// The cause is never written.
func WriteAppError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	WriteErrorCode(w, code)
}
