// Package service orchestrates compliance mutations. Nothing in here writes
// a derived status directly: operations mutate measures, evidence, and links,
// then ask the rollup engine to recompute. That keeps one writer for every
// status field.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"conforma/internal/access"
	"conforma/internal/audit"
	"conforma/internal/compliance"
	"conforma/internal/compliance/rollup"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	platformstrings "conforma/pkg/platform/strings"
	"conforma/pkg/requestcontext"
)

// Access is the slice of the evaluator this service needs.
type Access interface {
	Require(ctx context.Context, actor *access.Actor, permission access.Permission) error
	RequireOrganization(ctx context.Context, actor *access.Actor, orgID string) error
	ReachableOrganizations(ctx context.Context, actor *access.Actor) ([]string, error)
}

// Recalculator triggers status recomputation after link or measure changes
// and serves the derived completion view.
type Recalculator interface {
	RecalculateRecord(ctx context.Context, recordID string) (compliance.RecordStatus, rollup.Result, error)
	RecalculateAll(ctx context.Context, tenantID string) (rollup.Result, error)
	Completion(ctx context.Context, measureID string) (rollup.Completion, error)
}

// AuditPublisher receives mutation events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the mutation surface for compliance records, measures, evidence,
// and links.
type Service struct {
	store   compliance.Store
	access  Access
	rollup  Recalculator
	logger  *slog.Logger
	auditor AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

func New(store compliance.Store, acc Access, recompute Recalculator, opts ...Option) *Service {
	s := &Service{store: store, access: acc, rollup: recompute, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRecordInput carries the caller-supplied fields for a new record.
type CreateRecordInput struct {
	OrganizationID string
	RequirementID  string
	Title          string
	DueDate        *time.Time
}

func (s *Service) CreateRecord(ctx context.Context, actor *access.Actor, in CreateRecordInput) (*compliance.ComplianceRecord, error) {
	if err := s.access.Require(ctx, actor, access.ComplianceCreate); err != nil {
		return nil, err
	}
	if err := s.access.RequireOrganization(ctx, actor, in.OrganizationID); err != nil {
		return nil, err
	}
	if in.RequirementID == "" || in.Title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "requirement and title are required")
	}

	now := requestcontext.Now(ctx)
	r := &compliance.ComplianceRecord{
		ID:             uuid.NewString(),
		TenantID:       actor.TenantID,
		OrganizationID: in.OrganizationID,
		RequirementID:  in.RequirementID,
		Title:          in.Title,
		Status:         compliance.RecordNotStarted,
		DueDate:        in.DueDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateRecord(ctx, r); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create compliance record")
	}
	return r, nil
}

// GetRecord applies the organization reachability filter the way reads do.
func (s *Service) GetRecord(ctx context.Context, actor *access.Actor, recordID string) (*compliance.ComplianceRecord, error) {
	r, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "compliance record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "compliance store unavailable")
	}
	if err := s.access.RequireOrganization(ctx, actor, r.OrganizationID); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRecords returns the records in organizations the actor can reach.
func (s *Service) ListRecords(ctx context.Context, actor *access.Actor) ([]*compliance.ComplianceRecord, error) {
	if actor == nil {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "no resolvable actor")
	}
	reachable, err := s.access.ReachableOrganizations(ctx, actor)
	if err != nil {
		return nil, err
	}
	if reachable == nil {
		return s.listTenant(ctx, actor.TenantID)
	}
	var out []*compliance.ComplianceRecord
	for _, orgID := range reachable {
		records, err := s.store.ListRecordsByOrganization(ctx, orgID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "compliance store unavailable")
		}
		out = append(out, records...)
	}
	return out, nil
}

func (s *Service) listTenant(ctx context.Context, tenantID string) ([]*compliance.ComplianceRecord, error) {
	records, err := s.store.ListRecordsByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "compliance store unavailable")
	}
	return records, nil
}

// CreateMeasureInput carries the caller-supplied fields for a new measure.
type CreateMeasureInput struct {
	RecordID              string
	Name                  string
	Description           string
	FromTemplate          bool
	RequiredEvidenceTypes []string
	TargetDate            *time.Time
	ValidUntil            *time.Time
}

func (s *Service) CreateMeasure(ctx context.Context, actor *access.Actor, in CreateMeasureInput) (*compliance.ControlMeasure, error) {
	if err := s.access.Require(ctx, actor, access.MeasureCreate); err != nil {
		return nil, err
	}
	record, err := s.GetRecord(ctx, actor, in.RecordID)
	if err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "measure name is required")
	}

	now := requestcontext.Now(ctx)
	m := &compliance.ControlMeasure{
		ID:                       uuid.NewString(),
		RecordID:                 record.ID,
		TenantID:                 record.TenantID,
		Name:                     in.Name,
		Description:              in.Description,
		Status:                   compliance.MeasurePlanned,
		FromTemplate:             in.FromTemplate,
		IsLocked:                 in.FromTemplate,
		RequiredEvidenceTypes:    platformstrings.DedupeAndTrim(in.RequiredEvidenceTypes),
		TargetImplementationDate: in.TargetDate,
		ValidUntil:               in.ValidUntil,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := s.store.CreateMeasure(ctx, m); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create control measure")
	}
	if _, _, err := s.rollup.RecalculateRecord(ctx, record.ID); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMeasureInput carries structural edits. A template-locked measure
// rejects these; status edits go through SetMeasureStatus instead.
type UpdateMeasureInput struct {
	MeasureID             string
	Name                  string
	Description           string
	RequiredEvidenceTypes []string
	TargetDate            *time.Time
	ValidUntil            *time.Time
}

func (s *Service) UpdateMeasure(ctx context.Context, actor *access.Actor, in UpdateMeasureInput) (*compliance.ControlMeasure, error) {
	if err := s.access.Require(ctx, actor, access.MeasureUpdate); err != nil {
		return nil, err
	}
	m, err := s.measureWithAccess(ctx, actor, in.MeasureID)
	if err != nil {
		return nil, err
	}
	if m.IsLocked {
		return nil, dErrors.New(dErrors.CodeValidation, "measure is template-locked against structural edits")
	}

	m.Name = in.Name
	m.Description = in.Description
	m.RequiredEvidenceTypes = platformstrings.DedupeAndTrim(in.RequiredEvidenceTypes)
	m.TargetImplementationDate = in.TargetDate
	m.ValidUntil = in.ValidUntil
	m.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.UpdateMeasure(ctx, m); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update control measure")
	}
	// Changing the required types changes completion.
	if _, _, err := s.rollup.RecalculateRecord(ctx, m.RecordID); err != nil {
		return nil, err
	}
	return m, nil
}

// SetMeasureStatus is the manual status edit. Advancing to verified needs the
// verify permission; other targets need plain update. The edit is followed by
// a recompute, so a manual value that contradicts the evidence is overridden
// immediately, except verified which the rollup treats as terminal.
func (s *Service) SetMeasureStatus(ctx context.Context, actor *access.Actor, measureID string, status compliance.MeasureStatus) (*compliance.ControlMeasure, error) {
	perm := access.MeasureUpdate
	if status == compliance.MeasureVerified {
		perm = access.MeasureVerify
	}
	if err := s.access.Require(ctx, actor, perm); err != nil {
		return nil, err
	}
	switch status {
	case compliance.MeasurePlanned, compliance.MeasureInProgress, compliance.MeasureImplemented,
		compliance.MeasureVerified, compliance.MeasureFailed:
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown measure status %q", status)
	}
	m, err := s.measureWithAccess(ctx, actor, measureID)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateMeasureStatus(ctx, measureID, status); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update measure status")
	}
	s.emit(ctx, actor, audit.EventMeasureStatusEdited, "control_measure", measureID,
		map[string]string{"from": string(m.Status), "to": string(status)})

	if _, _, err := s.rollup.RecalculateRecord(ctx, m.RecordID); err != nil {
		return nil, err
	}
	return s.getMeasure(ctx, measureID)
}

// RegisterEvidenceInput describes a new evidence item. The file itself lives
// in external storage; the core records type and location only.
type RegisterEvidenceInput struct {
	Name         string
	EvidenceType string
	URI          string
}

func (s *Service) RegisterEvidence(ctx context.Context, actor *access.Actor, in RegisterEvidenceInput) (*compliance.Evidence, error) {
	if err := s.access.Require(ctx, actor, access.EvidenceUpload); err != nil {
		return nil, err
	}
	if in.EvidenceType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "evidence type is required")
	}
	now := requestcontext.Now(ctx)
	e := &compliance.Evidence{
		ID:           uuid.NewString(),
		TenantID:     actor.TenantID,
		Name:         in.Name,
		EvidenceType: in.EvidenceType,
		URI:          in.URI,
		ReviewStatus: compliance.ReviewPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateEvidence(ctx, e); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create evidence")
	}
	return e, nil
}

// LinkEvidence binds evidence to a measure and recomputes the record.
func (s *Service) LinkEvidence(ctx context.Context, actor *access.Actor, evidenceID, measureID string, relevance *int) (*compliance.EvidenceLink, error) {
	if err := s.access.Require(ctx, actor, access.EvidenceLink); err != nil {
		return nil, err
	}
	m, err := s.measureWithAccess(ctx, actor, measureID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetEvidence(ctx, evidenceID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "evidence not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "evidence store unavailable")
	}

	l := &compliance.EvidenceLink{
		ID:         uuid.NewString(),
		EvidenceID: evidenceID,
		MeasureID:  measureID,
		Relevance:  relevance,
		Active:     true,
		CreatedAt:  requestcontext.Now(ctx),
	}
	if err := s.store.CreateLink(ctx, l); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to link evidence")
	}
	s.emit(ctx, actor, audit.EventEvidenceLinked, "evidence_link", l.ID,
		map[string]string{"evidence_id": evidenceID, "measure_id": measureID})

	if _, _, err := s.rollup.RecalculateRecord(ctx, m.RecordID); err != nil {
		return nil, err
	}
	return l, nil
}

// UnlinkEvidence deactivates a link and recomputes. Links are never deleted.
func (s *Service) UnlinkEvidence(ctx context.Context, actor *access.Actor, linkID string) error {
	if err := s.access.Require(ctx, actor, access.EvidenceLink); err != nil {
		return err
	}
	l, err := s.store.GetLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "evidence link not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "link store unavailable")
	}
	m, err := s.measureWithAccess(ctx, actor, l.MeasureID)
	if err != nil {
		return err
	}

	if err := s.store.DeactivateLink(ctx, linkID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to unlink evidence")
	}
	s.emit(ctx, actor, audit.EventEvidenceUnlinked, "evidence_link", linkID,
		map[string]string{"evidence_id": l.EvidenceID, "measure_id": l.MeasureID})

	_, _, err = s.rollup.RecalculateRecord(ctx, m.RecordID)
	return err
}

// ReviewEvidence records a review outcome and recomputes every record whose
// measures link the evidence, since a rejection fails those measures.
func (s *Service) ReviewEvidence(ctx context.Context, actor *access.Actor, evidenceID string, status compliance.ReviewStatus) error {
	if err := s.access.Require(ctx, actor, access.EvidenceReview); err != nil {
		return err
	}
	if status != compliance.ReviewApproved && status != compliance.ReviewRejected {
		return dErrors.New(dErrors.CodeValidation, "review status must be approved or rejected")
	}
	if err := s.store.UpdateEvidenceReview(ctx, evidenceID, status); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "evidence not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update evidence review")
	}
	s.emit(ctx, actor, audit.EventEvidenceReviewed, "evidence", evidenceID,
		map[string]string{"review": string(status)})

	links, err := s.store.ListLinksByEvidence(ctx, evidenceID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "link store unavailable")
	}
	recomputed := make(map[string]bool)
	for _, l := range links {
		if !l.Active {
			continue
		}
		m, err := s.getMeasure(ctx, l.MeasureID)
		if err != nil {
			return err
		}
		if recomputed[m.RecordID] {
			continue
		}
		recomputed[m.RecordID] = true
		if _, _, err := s.rollup.RecalculateRecord(ctx, m.RecordID); err != nil {
			return err
		}
	}
	return nil
}

// MeasureCompletion returns the measure's derived completion view.
func (s *Service) MeasureCompletion(ctx context.Context, actor *access.Actor, measureID string) (rollup.Completion, error) {
	if err := s.access.Require(ctx, actor, access.MeasureRead); err != nil {
		return rollup.Completion{}, err
	}
	if _, err := s.measureWithAccess(ctx, actor, measureID); err != nil {
		return rollup.Completion{}, err
	}
	return s.rollup.Completion(ctx, measureID)
}

// RecalculateRecord re-derives one record's statuses on demand.
func (s *Service) RecalculateRecord(ctx context.Context, actor *access.Actor, recordID string) (compliance.RecordStatus, rollup.Result, error) {
	if err := s.access.Require(ctx, actor, access.ComplianceUpdate); err != nil {
		return "", rollup.Result{}, err
	}
	if _, err := s.GetRecord(ctx, actor, recordID); err != nil {
		return "", rollup.Result{}, err
	}
	return s.rollup.RecalculateRecord(ctx, recordID)
}

// RecalculateAll sweeps every record in the actor's tenant. The sweep is
// idempotent; running it twice in a row changes nothing the second time.
func (s *Service) RecalculateAll(ctx context.Context, actor *access.Actor) (rollup.Result, error) {
	if err := s.access.Require(ctx, actor, access.ComplianceUpdate); err != nil {
		return rollup.Result{}, err
	}
	return s.rollup.RecalculateAll(ctx, actor.TenantID)
}

// GetMeasure returns one measure after checking read permission and
// organization reach.
func (s *Service) GetMeasure(ctx context.Context, actor *access.Actor, measureID string) (*compliance.ControlMeasure, error) {
	if err := s.access.Require(ctx, actor, access.MeasureRead); err != nil {
		return nil, err
	}
	return s.measureWithAccess(ctx, actor, measureID)
}

// ListMeasures returns a record's measures after checking read permission
// and organization reach.
func (s *Service) ListMeasures(ctx context.Context, actor *access.Actor, recordID string) ([]*compliance.ControlMeasure, error) {
	if err := s.access.Require(ctx, actor, access.MeasureRead); err != nil {
		return nil, err
	}
	if _, err := s.GetRecord(ctx, actor, recordID); err != nil {
		return nil, err
	}
	measures, err := s.store.ListMeasuresByRecord(ctx, recordID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "measure store unavailable")
	}
	return measures, nil
}

func (s *Service) getMeasure(ctx context.Context, measureID string) (*compliance.ControlMeasure, error) {
	m, err := s.store.GetMeasure(ctx, measureID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "control measure not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "measure store unavailable")
	}
	return m, nil
}

// measureWithAccess loads a measure and checks the actor can reach its
// record's organization.
func (s *Service) measureWithAccess(ctx context.Context, actor *access.Actor, measureID string) (*compliance.ControlMeasure, error) {
	m, err := s.getMeasure(ctx, measureID)
	if err != nil {
		return nil, err
	}
	orgID, err := s.store.RecordOrganizationID(ctx, m.RecordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "compliance record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "compliance store unavailable")
	}
	if err := s.access.RequireOrganization(ctx, actor, orgID); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) emit(ctx context.Context, actor *access.Actor, eventType audit.EventType, resourceType, resourceID string, changes map[string]string) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		EventType:    eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Changes:      changes,
	}
	if actor != nil {
		event.ActorID = actor.ID
		event.TenantID = actor.TenantID
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "event", eventType, "error", err)
	}
}
