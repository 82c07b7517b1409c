package testutil

import (
	"net/http"

	"conforma/internal/access"
	authmw "conforma/pkg/platform/middleware/auth"
	"conforma/pkg/requestcontext"
)

// WithActor injects an authenticated actor into the request context the way
// the auth middleware would.
func WithActor(req *http.Request, actor *access.Actor) *http.Request {
	ctx := authmw.WithActor(req.Context(), actor)
	if actor != nil {
		ctx = requestcontext.WithActorID(ctx, actor.ID)
		ctx = requestcontext.WithTenantID(ctx, actor.TenantID)
	}
	return req.WithContext(ctx)
}

// NewActor builds an actor for tests.
func NewActor(id string, role access.Role, tenantID, homeOrgID string) *access.Actor {
	return &access.Actor{
		ID:                 id,
		Role:               role,
		TenantID:           tenantID,
		HomeOrganizationID: homeOrgID,
	}
}
