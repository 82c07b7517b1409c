package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"conforma/internal/access"
	"conforma/internal/transport/http/shared"
	"conforma/internal/workflow"
	"conforma/pkg/platform/middleware/auth"
)

// WorkflowService is the slice of the workflow engine the transport needs.
type WorkflowService interface {
	CreateDefinition(ctx context.Context, actor *access.Actor, d *workflow.Definition) (*workflow.Definition, error)
	GetDefinition(ctx context.Context, actor *access.Actor, definitionID string) (*workflow.Definition, error)
	ListDefinitions(ctx context.Context, actor *access.Actor) ([]*workflow.Definition, error)
	Start(ctx context.Context, actor *access.Actor, definitionID, entityType, entityID string, instanceContext map[string]any) (*workflow.Instance, error)
	Execute(ctx context.Context, actor *access.Actor, instanceID, transitionID, comment string, metadata map[string]string) (*workflow.ExecuteResult, error)
	Cancel(ctx context.Context, actor *access.Actor, instanceID string) error
	GetInstance(ctx context.Context, actor *access.Actor, instanceID string) (*workflow.Instance, error)
	History(ctx context.Context, actor *access.Actor, instanceID string) ([]*workflow.HistoryEntry, error)
	Approve(ctx context.Context, actor *access.Actor, instanceID, transitionID, comment string) error
	Reject(ctx context.Context, actor *access.Actor, instanceID, transitionID, comment string) error
}

type workflowHandler struct {
	service WorkflowService
	logger  *slog.Logger
}

func newWorkflowHandler(service WorkflowService, logger *slog.Logger) *workflowHandler {
	return &workflowHandler{service: service, logger: logger}
}

func (h *workflowHandler) Register(r chi.Router) {
	r.Route("/workflows", func(wr chi.Router) {
		wr.Post("/definitions", h.createDefinition)
		wr.Get("/definitions", h.listDefinitions)
		wr.Get("/definitions/{definitionID}", h.getDefinition)
		wr.Post("/instances", h.start)
		wr.Get("/instances/{instanceID}", h.getInstance)
		wr.Get("/instances/{instanceID}/history", h.history)
		wr.Post("/instances/{instanceID}/transitions/{transitionID}", h.execute)
		wr.Post("/instances/{instanceID}/transitions/{transitionID}/approve", h.approve)
		wr.Post("/instances/{instanceID}/transitions/{transitionID}/reject", h.reject)
		wr.Post("/instances/{instanceID}/cancel", h.cancel)
	})
}

type definitionRequest struct {
	Name        string                `json:"name"`
	Type        string                `json:"type"`
	Version     int                   `json:"version"`
	States      []workflow.State      `json:"states"`
	Transitions []workflow.Transition `json:"transitions"`
}

type definitionResponse struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Type        string                `json:"type"`
	Version     int                   `json:"version"`
	States      []workflow.State      `json:"states"`
	Transitions []workflow.Transition `json:"transitions"`
	CreatedAt   time.Time             `json:"created_at"`
}

func toDefinitionResponse(d *workflow.Definition) definitionResponse {
	return definitionResponse{
		ID:          d.ID,
		Name:        d.Name,
		Type:        string(d.Type),
		Version:     d.Version,
		States:      d.States,
		Transitions: d.Transitions,
		CreatedAt:   d.CreatedAt,
	}
}

type instanceResponse struct {
	ID             string         `json:"id"`
	DefinitionID   string         `json:"definition_id"`
	EntityType     string         `json:"entity_type"`
	EntityID       string         `json:"entity_id"`
	CurrentStateID *string        `json:"current_state_id"`
	Status         string         `json:"status"`
	Context        map[string]any `json:"context,omitempty"`
	StartedBy      string         `json:"started_by"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

func toInstanceResponse(inst *workflow.Instance) instanceResponse {
	return instanceResponse{
		ID:             inst.ID,
		DefinitionID:   inst.DefinitionID,
		EntityType:     inst.EntityType,
		EntityID:       inst.EntityID,
		CurrentStateID: inst.CurrentStateID,
		Status:         string(inst.Status),
		Context:        inst.Context,
		StartedBy:      inst.StartedBy,
		CreatedAt:      inst.CreatedAt,
		CompletedAt:    inst.CompletedAt,
	}
}

func (h *workflowHandler) createDefinition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req definitionRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	d, err := h.service.CreateDefinition(ctx, auth.ActorFrom(ctx), &workflow.Definition{
		Name:        req.Name,
		Type:        workflow.DefinitionType(req.Type),
		Version:     req.Version,
		States:      req.States,
		Transitions: req.Transitions,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toDefinitionResponse(d))
}

func (h *workflowHandler) listDefinitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defs, err := h.service.ListDefinitions(ctx, auth.ActorFrom(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]definitionResponse, 0, len(defs))
	for _, d := range defs {
		out = append(out, toDefinitionResponse(d))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *workflowHandler) getDefinition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := h.service.GetDefinition(ctx, auth.ActorFrom(ctx), chi.URLParam(r, "definitionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDefinitionResponse(d))
}

func (h *workflowHandler) start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		DefinitionID string         `json:"definition_id"`
		EntityType   string         `json:"entity_type"`
		EntityID     string         `json:"entity_id"`
		Context      map[string]any `json:"context"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	inst, err := h.service.Start(ctx, auth.ActorFrom(ctx), req.DefinitionID, req.EntityType, req.EntityID, req.Context)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toInstanceResponse(inst))
}

func (h *workflowHandler) getInstance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inst, err := h.service.GetInstance(ctx, auth.ActorFrom(ctx), chi.URLParam(r, "instanceID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toInstanceResponse(inst))
}

func (h *workflowHandler) history(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := h.service.History(ctx, auth.ActorFrom(ctx), chi.URLParam(r, "instanceID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	type historyResponse struct {
		ID           string            `json:"id"`
		FromStateID  *string           `json:"from_state_id"`
		ToStateID    string            `json:"to_state_id"`
		TransitionID string            `json:"transition_id"`
		PerformedBy  string            `json:"performed_by"`
		Comment      string            `json:"comment,omitempty"`
		Metadata     map[string]string `json:"metadata,omitempty"`
		CreatedAt    time.Time         `json:"created_at"`
	}
	out := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyResponse{
			ID:           e.ID,
			FromStateID:  e.FromStateID,
			ToStateID:    e.ToStateID,
			TransitionID: e.TransitionID,
			PerformedBy:  e.PerformedBy,
			Comment:      e.Comment,
			Metadata:     e.Metadata,
			CreatedAt:    e.CreatedAt,
		})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *workflowHandler) execute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Comment  string            `json:"comment"`
		Metadata map[string]string `json:"metadata"`
	}
	if r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.WriteError(w, err)
			return
		}
	}
	result, err := h.service.Execute(ctx, auth.ActorFrom(ctx),
		chi.URLParam(r, "instanceID"), chi.URLParam(r, "transitionID"), req.Comment, req.Metadata)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toInstanceResponse(result.Instance))
}

func (h *workflowHandler) approve(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Approve)
}

func (h *workflowHandler) reject(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Reject)
}

func (h *workflowHandler) respond(w http.ResponseWriter, r *http.Request, respond func(context.Context, *access.Actor, string, string, string) error) {
	ctx := r.Context()
	var req struct {
		Comment string `json:"comment"`
	}
	if r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.WriteError(w, err)
			return
		}
	}
	err := respond(ctx, auth.ActorFrom(ctx),
		chi.URLParam(r, "instanceID"), chi.URLParam(r, "transitionID"), req.Comment)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *workflowHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Cancel(ctx, auth.ActorFrom(ctx), chi.URLParam(r, "instanceID")); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
