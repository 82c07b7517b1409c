package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conforma/internal/access"
)

var signingKey = []byte("test-signing-key")

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	require.NoError(t, err)
	return token
}

func validClaims() Claims {
	return Claims{
		Role:               string(access.RoleCISO),
		TenantID:           "tenant-1",
		HomeOrganizationID: "org-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestValidateToken(t *testing.T) {
	v := NewValidator(signingKey)

	t.Run("resolves the actor", func(t *testing.T) {
		actor, err := v.ValidateToken(signToken(t, validClaims()))
		require.NoError(t, err)
		assert.Equal(t, "user-1", actor.ID)
		assert.Equal(t, access.RoleCISO, actor.Role)
		assert.Equal(t, "tenant-1", actor.TenantID)
		assert.Equal(t, "org-1", actor.HomeOrganizationID)
	})

	t.Run("rejects a foreign signature", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("other-key"))
		require.NoError(t, err)
		_, err = v.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		claims := validClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := v.ValidateToken(signToken(t, claims))
		assert.Error(t, err)
	})

	t.Run("rejects an unknown role", func(t *testing.T) {
		claims := validClaims()
		claims.Role = "viceroy"
		_, err := v.ValidateToken(signToken(t, claims))
		assert.Error(t, err)
	})

	t.Run("rejects missing subject or tenant", func(t *testing.T) {
		claims := validClaims()
		claims.Subject = ""
		_, err := v.ValidateToken(signToken(t, claims))
		assert.Error(t, err)

		claims = validClaims()
		claims.TenantID = ""
		_, err = v.ValidateToken(signToken(t, claims))
		assert.Error(t, err)
	})

	t.Run("rejects the none algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = v.ValidateToken(token)
		assert.Error(t, err)
	})
}

func TestRequireAuth(t *testing.T) {
	v := NewValidator(signingKey)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seen *access.Actor
	handler := RequireAuth(v, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("passes a valid bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims()))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "user-1", seen.ID)
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"error":"unauthenticated"}`, rr.Body.String())
		assert.Nil(t, seen)
	})

	t.Run("rejects a garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
