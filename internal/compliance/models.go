package compliance

import "time"

// RecordStatus is the rolled-up status of a compliance record. It is always
// a pure function of the record's measures (see rollup); no other code path
// writes it.
type RecordStatus string

const (
	RecordNotStarted    RecordStatus = "not_started"
	RecordInProgress    RecordStatus = "in_progress"
	RecordPendingReview RecordStatus = "pending_review"
	RecordApproved      RecordStatus = "approved"
	RecordRejected      RecordStatus = "rejected"
	RecordCompliant     RecordStatus = "compliant"
	RecordNonCompliant  RecordStatus = "non_compliant"
	RecordOverdue       RecordStatus = "overdue"
)

// MeasureStatus is the status of a control measure. verified is terminal for
// automatic rollup; only an explicit authorized action moves it onward.
type MeasureStatus string

const (
	MeasurePlanned     MeasureStatus = "planned"
	MeasureInProgress  MeasureStatus = "in_progress"
	MeasureImplemented MeasureStatus = "implemented"
	MeasureVerified    MeasureStatus = "verified"
	MeasureFailed      MeasureStatus = "failed"
)

// ReviewStatus is the review outcome of an evidence item.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// ComplianceRecord binds one regulatory requirement to one organization.
type ComplianceRecord struct {
	ID             string
	TenantID       string
	OrganizationID string
	RequirementID  string
	Title          string
	Status         RecordStatus
	DueDate        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ControlMeasure is a concrete obligation under a compliance record.
// RequiredEvidenceTypes declares which distinct evidence types must be linked
// before the measure counts as complete. Measures instantiated from a
// template are locked against structural edits while status edits remain
// allowed.
type ControlMeasure struct {
	ID                       string
	RecordID                 string
	TenantID                 string
	Name                     string
	Description              string
	Status                   MeasureStatus
	FromTemplate             bool
	IsLocked                 bool
	RequiredEvidenceTypes    []string
	TargetImplementationDate *time.Time
	ValidUntil               *time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Evidence is a content item, either an uploaded file or an external
// reference. Storage and signed-URL issuance live outside the core; the core
// only reasons about type and review status.
type Evidence struct {
	ID           string
	TenantID     string
	Name         string
	EvidenceType string
	URI          string
	ReviewStatus ReviewStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EvidenceLink binds one evidence item to one control measure. Links are
// deactivated, not deleted, so history survives; only active links feed the
// rollup.
type EvidenceLink struct {
	ID         string
	EvidenceID string
	MeasureID  string
	Relevance  *int
	Active     bool
	CreatedAt  time.Time
}

// LinkedEvidence is the rollup's view of one active link: the evidence type
// it provides and how review went. Derived per call, never denormalized.
type LinkedEvidence struct {
	LinkID       string
	EvidenceID   string
	EvidenceType string
	ReviewStatus ReviewStatus
}

// IsOverdue is a presentation-time predicate; overdue is never written back
// as a stored status because it would drift from wall-clock time.
func (r *ComplianceRecord) IsOverdue(now time.Time) bool {
	if r.DueDate == nil {
		return false
	}
	if r.Status == RecordCompliant || r.Status == RecordApproved {
		return false
	}
	return now.After(*r.DueDate)
}

// IsOverdue follows the same presentation-time-only rule as the record's.
func (m *ControlMeasure) IsOverdue(now time.Time) bool {
	if m.TargetImplementationDate == nil {
		return false
	}
	if m.Status == MeasureImplemented || m.Status == MeasureVerified {
		return false
	}
	return now.After(*m.TargetImplementationDate)
}

// IsExpired reports whether the measure's validity window has lapsed. Same
// presentation-time-only rule as IsOverdue.
func (m *ControlMeasure) IsExpired(now time.Time) bool {
	return m.ValidUntil != nil && now.After(*m.ValidUntil)
}
