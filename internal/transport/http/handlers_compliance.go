package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"conforma/internal/access"
	"conforma/internal/compliance"
	"conforma/internal/compliance/rollup"
	complianceservice "conforma/internal/compliance/service"
	"conforma/internal/transport/http/shared"
	"conforma/pkg/platform/middleware/auth"
)

// ComplianceService is the slice of the compliance service the transport
// needs.
type ComplianceService interface {
	CreateRecord(ctx context.Context, actor *access.Actor, in complianceservice.CreateRecordInput) (*compliance.ComplianceRecord, error)
	GetRecord(ctx context.Context, actor *access.Actor, recordID string) (*compliance.ComplianceRecord, error)
	ListRecords(ctx context.Context, actor *access.Actor) ([]*compliance.ComplianceRecord, error)
	CreateMeasure(ctx context.Context, actor *access.Actor, in complianceservice.CreateMeasureInput) (*compliance.ControlMeasure, error)
	UpdateMeasure(ctx context.Context, actor *access.Actor, in complianceservice.UpdateMeasureInput) (*compliance.ControlMeasure, error)
	SetMeasureStatus(ctx context.Context, actor *access.Actor, measureID string, status compliance.MeasureStatus) (*compliance.ControlMeasure, error)
	GetMeasure(ctx context.Context, actor *access.Actor, measureID string) (*compliance.ControlMeasure, error)
	ListMeasures(ctx context.Context, actor *access.Actor, recordID string) ([]*compliance.ControlMeasure, error)
	MeasureCompletion(ctx context.Context, actor *access.Actor, measureID string) (rollup.Completion, error)
	RegisterEvidence(ctx context.Context, actor *access.Actor, in complianceservice.RegisterEvidenceInput) (*compliance.Evidence, error)
	LinkEvidence(ctx context.Context, actor *access.Actor, evidenceID, measureID string, relevance *int) (*compliance.EvidenceLink, error)
	UnlinkEvidence(ctx context.Context, actor *access.Actor, linkID string) error
	ReviewEvidence(ctx context.Context, actor *access.Actor, evidenceID string, status compliance.ReviewStatus) error
	RecalculateRecord(ctx context.Context, actor *access.Actor, recordID string) (compliance.RecordStatus, rollup.Result, error)
	RecalculateAll(ctx context.Context, actor *access.Actor) (rollup.Result, error)
}

type complianceHandler struct {
	service ComplianceService
	logger  *slog.Logger
}

func newComplianceHandler(service ComplianceService, logger *slog.Logger) *complianceHandler {
	return &complianceHandler{service: service, logger: logger}
}

func (h *complianceHandler) Register(r chi.Router) {
	r.Route("/compliance", func(cr chi.Router) {
		cr.Post("/records", h.createRecord)
		cr.Get("/records", h.listRecords)
		cr.Get("/records/{recordID}", h.getRecord)
		cr.Get("/records/{recordID}/measures", h.listMeasures)
		cr.Post("/records/{recordID}/recalculate", h.recalculateRecord)
		cr.Post("/recalculate", h.recalculateAll)
		cr.Post("/measures", h.createMeasure)
		cr.Get("/measures/{measureID}", h.getMeasure)
		cr.Patch("/measures/{measureID}", h.updateMeasure)
		cr.Put("/measures/{measureID}/status", h.setMeasureStatus)
		cr.Get("/measures/{measureID}/completion", h.measureCompletion)
	})
	r.Route("/evidence", func(er chi.Router) {
		er.Post("/", h.registerEvidence)
		er.Post("/{evidenceID}/links", h.linkEvidence)
		er.Delete("/links/{linkID}", h.unlinkEvidence)
		er.Put("/{evidenceID}/review", h.reviewEvidence)
	})
}

type recordResponse struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	RequirementID  string     `json:"requirement_id"`
	Title          string     `json:"title"`
	Status         string     `json:"status"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	Overdue        bool       `json:"overdue"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toRecordResponse(r *compliance.ComplianceRecord, now time.Time) recordResponse {
	return recordResponse{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		RequirementID:  r.RequirementID,
		Title:          r.Title,
		Status:         string(r.Status),
		DueDate:        r.DueDate,
		Overdue:        r.IsOverdue(now),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type measureResponse struct {
	ID                    string     `json:"id"`
	RecordID              string     `json:"record_id"`
	Name                  string     `json:"name"`
	Description           string     `json:"description,omitempty"`
	Status                string     `json:"status"`
	FromTemplate          bool       `json:"from_template"`
	Locked                bool       `json:"locked"`
	RequiredEvidenceTypes []string   `json:"required_evidence_types"`
	TargetDate            *time.Time `json:"target_date,omitempty"`
	ValidUntil            *time.Time `json:"valid_until,omitempty"`
	Overdue               bool       `json:"overdue"`
	Expired               bool       `json:"expired"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func toMeasureResponse(m *compliance.ControlMeasure, now time.Time) measureResponse {
	return measureResponse{
		ID:                    m.ID,
		RecordID:              m.RecordID,
		Name:                  m.Name,
		Description:           m.Description,
		Status:                string(m.Status),
		FromTemplate:          m.FromTemplate,
		Locked:                m.IsLocked,
		RequiredEvidenceTypes: m.RequiredEvidenceTypes,
		TargetDate:            m.TargetImplementationDate,
		ValidUntil:            m.ValidUntil,
		Overdue:               m.IsOverdue(now),
		Expired:               m.IsExpired(now),
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

func (h *complianceHandler) createRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		OrganizationID string     `json:"organization_id"`
		RequirementID  string     `json:"requirement_id"`
		Title          string     `json:"title"`
		DueDate        *time.Time `json:"due_date"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	record, err := h.service.CreateRecord(ctx, auth.ActorFrom(ctx), complianceservice.CreateRecordInput{
		OrganizationID: req.OrganizationID,
		RequirementID:  req.RequirementID,
		Title:          req.Title,
		DueDate:        req.DueDate,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toRecordResponse(record, time.Now()))
}

func (h *complianceHandler) listRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.service.ListRecords(ctx, auth.ActorFrom(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	now := time.Now()
	out := make([]recordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toRecordResponse(record, now))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *complianceHandler) getRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := h.service.GetRecord(ctx, auth.ActorFrom(ctx), chi.URLParam(r, "recordID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRecordResponse(record, time.Now()))
}

func (h *complianceHandler) listMeasures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	measures, err := h.service.ListMeasures(ctx, auth.ActorFrom(ctx), chi.URLParam(r, "recordID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	now := time.Now()
	out := make([]measureResponse, 0, len(measures))
	for _, m := range measures {
		out = append(out, toMeasureResponse(m, now))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *complianceHandler) createMeasure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		RecordID              string     `json:"record_id"`
		Name                  string     `json:"name"`
		Description           string     `json:"description"`
		FromTemplate          bool       `json:"from_template"`
		RequiredEvidenceTypes []string   `json:"required_evidence_types"`
		TargetDate            *time.Time `json:"target_date"`
		ValidUntil            *time.Time `json:"valid_until"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	m, err := h.service.CreateMeasure(ctx, auth.ActorFrom(ctx), complianceservice.CreateMeasureInput{
		RecordID:              req.RecordID,
		Name:                  req.Name,
		Description:           req.Description,
		FromTemplate:          req.FromTemplate,
		RequiredEvidenceTypes: req.RequiredEvidenceTypes,
		TargetDate:            req.TargetDate,
		ValidUntil:            req.ValidUntil,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toMeasureResponse(m, time.Now()))
}

func (h *complianceHandler) getMeasure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := h.service.GetMeasure(ctx, auth.ActorFrom(ctx), chi.URLParam(r, "measureID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toMeasureResponse(m, time.Now()))
}

func (h *complianceHandler) updateMeasure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Name                  string     `json:"name"`
		Description           string     `json:"description"`
		RequiredEvidenceTypes []string   `json:"required_evidence_types"`
		TargetDate            *time.Time `json:"target_date"`
		ValidUntil            *time.Time `json:"valid_until"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	m, err := h.service.UpdateMeasure(ctx, auth.ActorFrom(ctx), complianceservice.UpdateMeasureInput{
		MeasureID:             chi.URLParam(r, "measureID"),
		Name:                  req.Name,
		Description:           req.Description,
		RequiredEvidenceTypes: req.RequiredEvidenceTypes,
		TargetDate:            req.TargetDate,
		ValidUntil:            req.ValidUntil,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toMeasureResponse(m, time.Now()))
}

func (h *complianceHandler) setMeasureStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Status string `json:"status"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	m, err := h.service.SetMeasureStatus(ctx, auth.ActorFrom(ctx),
		chi.URLParam(r, "measureID"), compliance.MeasureStatus(req.Status))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toMeasureResponse(m, time.Now()))
}

func (h *complianceHandler) measureCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	completion, err := h.service.MeasureCompletion(ctx, auth.ActorFrom(ctx), chi.URLParam(r, "measureID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"required_count": completion.RequiredCount,
		"provided_count": completion.ProvidedCount,
		"percentage":     completion.Percentage,
	})
}

func (h *complianceHandler) recalculateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, result, err := h.service.RecalculateRecord(ctx, auth.ActorFrom(ctx), chi.URLParam(r, "recordID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"status":           string(status),
		"measures_updated": result.MeasuresUpdated,
		"records_updated":  result.ComplianceRecordsUpdated,
	})
}

func (h *complianceHandler) recalculateAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.service.RecalculateAll(ctx, auth.ActorFrom(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"measures_updated": result.MeasuresUpdated,
		"records_updated":  result.ComplianceRecordsUpdated,
	})
}

func (h *complianceHandler) registerEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Name         string `json:"name"`
		EvidenceType string `json:"evidence_type"`
		URI          string `json:"uri"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	ev, err := h.service.RegisterEvidence(ctx, auth.ActorFrom(ctx), complianceservice.RegisterEvidenceInput{
		Name:         req.Name,
		EvidenceType: req.EvidenceType,
		URI:          req.URI,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":            ev.ID,
		"name":          ev.Name,
		"evidence_type": ev.EvidenceType,
		"uri":           ev.URI,
		"review_status": string(ev.ReviewStatus),
		"created_at":    ev.CreatedAt,
	})
}

func (h *complianceHandler) linkEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		MeasureID string `json:"measure_id"`
		Relevance *int   `json:"relevance"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	link, err := h.service.LinkEvidence(ctx, auth.ActorFrom(ctx),
		chi.URLParam(r, "evidenceID"), req.MeasureID, req.Relevance)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":          link.ID,
		"evidence_id": link.EvidenceID,
		"measure_id":  link.MeasureID,
		"active":      link.Active,
		"created_at":  link.CreatedAt,
	})
}

func (h *complianceHandler) unlinkEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.UnlinkEvidence(ctx, auth.ActorFrom(ctx), chi.URLParam(r, "linkID")); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *complianceHandler) reviewEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Status string `json:"status"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	err := h.service.ReviewEvidence(ctx, auth.ActorFrom(ctx),
		chi.URLParam(r, "evidenceID"), compliance.ReviewStatus(req.Status))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
