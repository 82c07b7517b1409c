// Package shared holds the JSON helpers common to every handler.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "conforma/pkg/domain-errors"
)

// statusOf maps a domain error code to an HTTP status. Guard failures are
// client errors; approval gating is reported as accepted-but-pending.
func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeOrgAccessDenied:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeInvalidTransition, dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeApprovalPending:
		return http.StatusAccepted
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError translates a domain error into the JSON error envelope. Access
// denials keep their generic message; transition failures may be specific
// because they describe workflow shape, not security boundaries.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	switch code {
	case dErrors.CodeForbidden, dErrors.CodeOrgAccessDenied, dErrors.CodeUnauthenticated, dErrors.CodeInternal:
		// no detail
	default:
		body["message"] = err.Error()
	}
	WriteJSON(w, statusOf(code), body)
}

// WriteJSON writes v as the JSON response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// DecodeJSON decodes the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return dErrors.New(dErrors.CodeValidation, "invalid request body")
	}
	return nil
}
