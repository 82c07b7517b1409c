package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"conforma/internal/access"
	"conforma/internal/org"
	"conforma/internal/transport/http/shared"
	"conforma/pkg/platform/middleware/auth"
)

// OrgService is the slice of the organization service the transport needs.
type OrgService interface {
	Get(ctx context.Context, orgID string) (*org.Organization, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*org.Organization, error)
	Create(ctx context.Context, tenantID, name string, parentID *string) (*org.Organization, error)
	Reparent(ctx context.Context, orgID string, newParentID string) (*org.Organization, error)
	Delete(ctx context.Context, orgID string) error
}

// AccessService is the slice of the evaluator the transport needs.
type AccessService interface {
	Require(ctx context.Context, actor *access.Actor, permission access.Permission) error
	RequireOrganization(ctx context.Context, actor *access.Actor, orgID string) error
	ReachableOrganizations(ctx context.Context, actor *access.Actor) ([]string, error)
}

// orgHandler guards the actor-free organization service with the evaluator:
// reads filter by reachability, mutations require the management permission.
type orgHandler struct {
	service OrgService
	access  AccessService
	logger  *slog.Logger
}

func newOrgHandler(service OrgService, accessService AccessService, logger *slog.Logger) *orgHandler {
	return &orgHandler{service: service, access: accessService, logger: logger}
}

func (h *orgHandler) Register(r chi.Router) {
	r.Route("/organizations", func(or chi.Router) {
		or.Get("/", h.list)
		or.Post("/", h.create)
		or.Get("/{orgID}", h.get)
		or.Put("/{orgID}/parent", h.reparent)
		or.Delete("/{orgID}", h.delete)
	})
}

type orgResponse struct {
	ID        string    `json:"id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toOrgResponse(o *org.Organization) orgResponse {
	return orgResponse{
		ID:        o.ID,
		ParentID:  o.ParentID,
		Name:      o.Name,
		Level:     o.Level,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func (h *orgHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.ActorFrom(ctx)
	if err := h.access.Require(ctx, actor, access.OrganizationRead); err != nil {
		shared.WriteError(w, err)
		return
	}
	orgs, err := h.service.ListByTenant(ctx, actor.TenantID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	reachable, err := h.access.ReachableOrganizations(ctx, actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]orgResponse, 0, len(orgs))
	for _, o := range orgs {
		if reachable != nil && !contains(reachable, o.ID) {
			continue
		}
		out = append(out, toOrgResponse(o))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *orgHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.ActorFrom(ctx)
	orgID := chi.URLParam(r, "orgID")
	if err := h.access.Require(ctx, actor, access.OrganizationRead); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.access.RequireOrganization(ctx, actor, orgID); err != nil {
		shared.WriteError(w, err)
		return
	}
	o, err := h.service.Get(ctx, orgID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toOrgResponse(o))
}

func (h *orgHandler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.ActorFrom(ctx)
	if err := h.access.Require(ctx, actor, access.OrganizationManage); err != nil {
		shared.WriteError(w, err)
		return
	}
	var req struct {
		Name     string  `json:"name"`
		ParentID *string `json:"parent_id"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if req.ParentID != nil {
		if err := h.access.RequireOrganization(ctx, actor, *req.ParentID); err != nil {
			shared.WriteError(w, err)
			return
		}
	}
	o, err := h.service.Create(ctx, actor.TenantID, req.Name, req.ParentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toOrgResponse(o))
}

func (h *orgHandler) reparent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.ActorFrom(ctx)
	if err := h.access.Require(ctx, actor, access.OrganizationManage); err != nil {
		shared.WriteError(w, err)
		return
	}
	var req struct {
		ParentID string `json:"parent_id"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	o, err := h.service.Reparent(ctx, chi.URLParam(r, "orgID"), req.ParentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toOrgResponse(o))
}

func (h *orgHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.ActorFrom(ctx)
	if err := h.access.Require(ctx, actor, access.OrganizationDelete); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, chi.URLParam(r, "orgID")); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
