package shared

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "conforma/pkg/domain-errors"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code   dErrors.Code
		status int
	}{
		{dErrors.CodeUnauthenticated, http.StatusUnauthorized},
		{dErrors.CodeForbidden, http.StatusForbidden},
		{dErrors.CodeOrgAccessDenied, http.StatusForbidden},
		{dErrors.CodeNotFound, http.StatusNotFound},
		{dErrors.CodeValidation, http.StatusBadRequest},
		{dErrors.CodeInvalidTransition, http.StatusConflict},
		{dErrors.CodeConflict, http.StatusConflict},
		{dErrors.CodeApprovalPending, http.StatusAccepted},
		{dErrors.CodeInvariantViolation, http.StatusInternalServerError},
		{dErrors.CodeUnavailable, http.StatusServiceUnavailable},
		{dErrors.CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, dErrors.New(tt.code, "detail"))
			assert.Equal(t, tt.status, rr.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, string(tt.code), body["error"])
		})
	}
}

// TestWriteErrorHidesAccessDetail pins that denial responses carry no message
// while ordinary client errors keep theirs.
func TestWriteErrorHidesAccessDetail(t *testing.T) {
	hidden := []dErrors.Code{
		dErrors.CodeForbidden, dErrors.CodeOrgAccessDenied,
		dErrors.CodeUnauthenticated, dErrors.CodeInternal,
	}
	for _, code := range hidden {
		rr := httptest.NewRecorder()
		WriteError(rr, dErrors.New(code, "secret detail"))
		var body map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.NotContains(t, body, "message", string(code))
	}

	rr := httptest.NewRecorder()
	WriteError(rr, dErrors.New(dErrors.CodeInvalidTransition, "transition requires a comment"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "transition requires a comment", body["message"])
}

func TestWriteErrorUncodedFallsBackToInternal(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "internal", body["error"])
	assert.NotContains(t, body, "message")
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("decodes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
		var p payload
		require.NoError(t, DecodeJSON(req, &p))
		assert.Equal(t, "x", p.Name)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","bogus":1}`))
		var p payload
		err := DecodeJSON(req, &p)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		var p payload
		err := DecodeJSON(req, &p)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
