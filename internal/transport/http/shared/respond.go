// Package shared holds the response helpers used by every HTTP handler so
// the JSON error envelope stays identical across routes.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "registrar/pkg/domain-errors"
)

type errorBody struct {
	Code    dErrors.Code         `json:"code"`
	Message string               `json:"message"`
	Fields  []dErrors.FieldError `json:"fields,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// WriteJSON serializes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteRaw writes pre-serialized JSON verbatim. Idempotent replays depend on
// the recorded bytes reaching the wire untouched.
func WriteRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteError translates a domain error into the error envelope
// {error: {code, message, fields?}}. Unrecognized errors are masked as
// INTERNAL so infrastructure details never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	var dErr *dErrors.Error
	if !errors.As(err, &dErr) {
		dErr = dErrors.New(dErrors.CodeInternal, "internal error")
	}
	WriteJSON(w, dErrors.ToHTTPStatus(dErr.Code), errorEnvelope{Error: errorBody{
		Code:    dErr.Code,
		Message: dErr.Message,
		Fields:  dErr.Fields,
	}})
}
