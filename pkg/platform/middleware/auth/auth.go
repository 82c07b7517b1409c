// Package auth resolves the acting identity from a bearer token. The core
// never persists identities; every request rebuilds the actor from claims.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"conforma/internal/access"
	"conforma/pkg/requestcontext"
)

// Claims are the token claims the core understands.
type Claims struct {
	Role               string `json:"role"`
	TenantID           string `json:"tenant_id"`
	HomeOrganizationID string `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

// Validator verifies HMAC-signed tokens and extracts the actor.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey []byte) *Validator {
	return &Validator{signingKey: signingKey}
}

// ValidateToken parses and verifies the token, returning the resolved actor.
func (v *Validator) ValidateToken(tokenString string) (*access.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	role := access.Role(claims.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role in token")
	}
	if claims.Subject == "" || claims.TenantID == "" {
		return nil, fmt.Errorf("token missing subject or tenant")
	}
	return &access.Actor{
		ID:                 claims.Subject,
		Role:               role,
		TenantID:           claims.TenantID,
		HomeOrganizationID: claims.HomeOrganizationID,
	}, nil
}

type contextKeyActor struct{}

// ActorFrom returns the authenticated actor, or nil outside RequireAuth.
func ActorFrom(ctx context.Context) *access.Actor {
	actor, _ := ctx.Value(contextKeyActor{}).(*access.Actor)
	return actor
}

// WithActor is the test-side injection point for ActorFrom.
func WithActor(ctx context.Context, actor *access.Actor) context.Context {
	return context.WithValue(ctx, contextKeyActor{}, actor)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// resolved actor in the request context.
func RequireAuth(validator *Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeUnauthorized(w)
				return
			}
			actor, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "rejected bearer token",
					"request_id", requestcontext.RequestID(ctx), "error", err)
				writeUnauthorized(w)
				return
			}
			ctx = WithActor(ctx, actor)
			ctx = requestcontext.WithActorID(ctx, actor.ID)
			ctx = requestcontext.WithTenantID(ctx, actor.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthenticated"}`))
}
