package compliance

import "context"

// Store is the persistence contract for compliance entities. Status writes
// are split out (UpdateRecordStatus, UpdateMeasureStatus) so the rollup
// engine can be the only caller of those methods; everything else mutates
// measures, evidence, and links and then asks the rollup to recompute.
type Store interface {
	// Compliance records.
	GetRecord(ctx context.Context, recordID string) (*ComplianceRecord, error)
	ListRecordsByTenant(ctx context.Context, tenantID string) ([]*ComplianceRecord, error)
	ListRecordsByOrganization(ctx context.Context, orgID string) ([]*ComplianceRecord, error)
	CreateRecord(ctx context.Context, r *ComplianceRecord) error
	UpdateRecordStatus(ctx context.Context, recordID string, status RecordStatus) error
	// RecordOrganizationID resolves a record to its owning organization
	// without loading the full row; the access evaluator is the caller.
	RecordOrganizationID(ctx context.Context, recordID string) (string, error)

	// Control measures.
	GetMeasure(ctx context.Context, measureID string) (*ControlMeasure, error)
	ListMeasuresByRecord(ctx context.Context, recordID string) ([]*ControlMeasure, error)
	CreateMeasure(ctx context.Context, m *ControlMeasure) error
	UpdateMeasure(ctx context.Context, m *ControlMeasure) error
	UpdateMeasureStatus(ctx context.Context, measureID string, status MeasureStatus) error

	// Evidence and links.
	GetEvidence(ctx context.Context, evidenceID string) (*Evidence, error)
	CreateEvidence(ctx context.Context, e *Evidence) error
	UpdateEvidenceReview(ctx context.Context, evidenceID string, status ReviewStatus) error
	CreateLink(ctx context.Context, l *EvidenceLink) error
	GetLink(ctx context.Context, linkID string) (*EvidenceLink, error)
	ListLinksByEvidence(ctx context.Context, evidenceID string) ([]*EvidenceLink, error)
	DeactivateLink(ctx context.Context, linkID string) error
	// ListLinkedEvidence returns the active links of a measure joined with
	// their evidence type and review status. The rollup recomputes from this
	// view every time; counts are never stored.
	ListLinkedEvidence(ctx context.Context, measureID string) ([]LinkedEvidence, error)
	// HasActiveEvidence reports whether an entity has at least one active
	// evidence link, for the workflow evidence guard. For compliance records
	// the links of all measures count.
	HasActiveEvidence(ctx context.Context, entityType, entityID string) (bool, error)
}
