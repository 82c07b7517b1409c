package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"conforma/internal/access"
	"conforma/internal/audit"
	"conforma/internal/transport/http/shared"
	"conforma/pkg/platform/middleware/auth"
)

// AssignmentsService changes role assignments.
type AssignmentsService interface {
	Assign(ctx context.Context, actor *access.Actor, targetActorID string, role access.Role) error
	RoleOf(ctx context.Context, actorID string) (access.Role, error)
}

// AuditService reads the audit trail.
type AuditService interface {
	List(ctx context.Context, tenantID string, limit int) ([]audit.Event, error)
}

type accessHandler struct {
	evaluator   AccessService
	assignments AssignmentsService
	audit       AuditService
	logger      *slog.Logger
}

func newAccessHandler(evaluator AccessService, assignments AssignmentsService, auditService AuditService, logger *slog.Logger) *accessHandler {
	return &accessHandler{evaluator: evaluator, assignments: assignments, audit: auditService, logger: logger}
}

func (h *accessHandler) Register(r chi.Router) {
	r.Get("/organizations/reachable", h.reachable)
	r.Put("/actors/{actorID}/role", h.assignRole)
	r.Get("/actors/{actorID}/role", h.getRole)
	r.Get("/audit", h.listAudit)
}

func (h *accessHandler) reachable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.ActorFrom(ctx)
	if err := h.evaluator.Require(ctx, actor, access.OrganizationRead); err != nil {
		shared.WriteError(w, err)
		return
	}
	ids, err := h.evaluator.ReachableOrganizations(ctx, actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"unrestricted":     ids == nil,
		"organization_ids": ids,
	})
}

func (h *accessHandler) assignRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Role string `json:"role"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	err := h.assignments.Assign(ctx, auth.ActorFrom(ctx), chi.URLParam(r, "actorID"), access.Role(req.Role))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *accessHandler) getRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.evaluator.Require(ctx, auth.ActorFrom(ctx), access.UserRead); err != nil {
		shared.WriteError(w, err)
		return
	}
	role, err := h.assignments.RoleOf(ctx, chi.URLParam(r, "actorID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"role": string(role)})
}

func (h *accessHandler) listAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.ActorFrom(ctx)
	if err := h.evaluator.Require(ctx, actor, access.AuditRead); err != nil {
		shared.WriteError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.audit.List(ctx, actor.TenantID, limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	type eventResponse struct {
		Timestamp    string            `json:"timestamp"`
		ActorID      string            `json:"actor_id"`
		EventType    string            `json:"event_type"`
		ResourceType string            `json:"resource_type"`
		ResourceID   string            `json:"resource_id"`
		Decision     string            `json:"decision,omitempty"`
		Reason       string            `json:"reason,omitempty"`
		Changes      map[string]string `json:"changes,omitempty"`
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			Timestamp:    e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			ActorID:      e.ActorID,
			EventType:    string(e.EventType),
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Decision:     e.Decision,
			Reason:       e.Reason,
			Changes:      e.Changes,
		})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}
