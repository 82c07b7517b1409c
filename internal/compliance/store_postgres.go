package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
)

// PostgresStore persists compliance entities. Evidence counts are never
// denormalized; ListLinkedEvidence joins links to evidence on every call so
// the rollup always recomputes from source.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetRecord(ctx context.Context, recordID string) (*ComplianceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, organization_id, requirement_id, title, status, due_date, created_at, updated_at
		FROM compliance_records WHERE id = $1`, recordID)
	var r ComplianceRecord
	var status string
	err := row.Scan(&r.ID, &r.TenantID, &r.OrganizationID, &r.RequirementID, &r.Title, &status, &r.DueDate, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	r.Status = RecordStatus(status)
	return &r, nil
}

func (s *PostgresStore) listRecords(ctx context.Context, where string, arg any) ([]*ComplianceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, organization_id, requirement_id, title, status, due_date, created_at, updated_at
		FROM compliance_records WHERE `+where+` ORDER BY created_at`, arg)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*ComplianceRecord
	for rows.Next() {
		var r ComplianceRecord
		var status string
		if err := rows.Scan(&r.ID, &r.TenantID, &r.OrganizationID, &r.RequirementID, &r.Title, &status, &r.DueDate, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Status = RecordStatus(status)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListRecordsByTenant(ctx context.Context, tenantID string) ([]*ComplianceRecord, error) {
	return s.listRecords(ctx, "tenant_id = $1", tenantID)
}

func (s *PostgresStore) ListRecordsByOrganization(ctx context.Context, orgID string) ([]*ComplianceRecord, error) {
	return s.listRecords(ctx, "organization_id = $1", orgID)
}

func (s *PostgresStore) CreateRecord(ctx context.Context, r *ComplianceRecord) error {
	exec := txcontext.Resolve(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO compliance_records (id, tenant_id, organization_id, requirement_id, title, status, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.TenantID, r.OrganizationID, r.RequirementID, r.Title, string(r.Status), r.DueDate, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateRecordStatus(ctx context.Context, recordID string, status RecordStatus) error {
	exec := txcontext.Resolve(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		"UPDATE compliance_records SET status = $2, updated_at = now() WHERE id = $1",
		recordID, string(status))
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordOrganizationID(ctx context.Context, recordID string) (string, error) {
	var orgID string
	err := s.db.QueryRowContext(ctx,
		"SELECT organization_id FROM compliance_records WHERE id = $1", recordID).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("record organization: %w", err)
	}
	return orgID, nil
}

const measureColumns = `id, record_id, tenant_id, name, description, status, from_template, is_locked,
	required_evidence_types, target_implementation_date, valid_until, created_at, updated_at`

func scanMeasure(row interface{ Scan(...any) error }) (*ControlMeasure, error) {
	var m ControlMeasure
	var status string
	var types []byte
	err := row.Scan(&m.ID, &m.RecordID, &m.TenantID, &m.Name, &m.Description, &status,
		&m.FromTemplate, &m.IsLocked, &types, &m.TargetImplementationDate, &m.ValidUntil,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Status = MeasureStatus(status)
	if len(types) > 0 {
		if err := json.Unmarshal(types, &m.RequiredEvidenceTypes); err != nil {
			return nil, fmt.Errorf("unmarshal evidence types: %w", err)
		}
	}
	return &m, nil
}

func (s *PostgresStore) GetMeasure(ctx context.Context, measureID string) (*ControlMeasure, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+measureColumns+" FROM control_measures WHERE id = $1", measureID)
	m, err := scanMeasure(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get measure: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListMeasuresByRecord(ctx context.Context, recordID string) ([]*ControlMeasure, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+measureColumns+" FROM control_measures WHERE record_id = $1 ORDER BY created_at", recordID)
	if err != nil {
		return nil, fmt.Errorf("list measures: %w", err)
	}
	defer rows.Close()

	var out []*ControlMeasure
	for rows.Next() {
		m, err := scanMeasure(rows)
		if err != nil {
			return nil, fmt.Errorf("scan measure: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateMeasure(ctx context.Context, m *ControlMeasure) error {
	types, err := json.Marshal(m.RequiredEvidenceTypes)
	if err != nil {
		return fmt.Errorf("marshal evidence types: %w", err)
	}
	exec := txcontext.Resolve(ctx, s.db)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO control_measures (`+measureColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID, m.RecordID, m.TenantID, m.Name, m.Description, string(m.Status),
		m.FromTemplate, m.IsLocked, types, m.TargetImplementationDate, m.ValidUntil,
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create measure: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateMeasure(ctx context.Context, m *ControlMeasure) error {
	types, err := json.Marshal(m.RequiredEvidenceTypes)
	if err != nil {
		return fmt.Errorf("marshal evidence types: %w", err)
	}
	exec := txcontext.Resolve(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE control_measures
		SET name = $2, description = $3, status = $4, is_locked = $5,
		    required_evidence_types = $6, target_implementation_date = $7,
		    valid_until = $8, updated_at = now()
		WHERE id = $1`,
		m.ID, m.Name, m.Description, string(m.Status), m.IsLocked, types,
		m.TargetImplementationDate, m.ValidUntil)
	if err != nil {
		return fmt.Errorf("update measure: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateMeasureStatus(ctx context.Context, measureID string, status MeasureStatus) error {
	exec := txcontext.Resolve(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		"UPDATE control_measures SET status = $2, updated_at = now() WHERE id = $1",
		measureID, string(status))
	if err != nil {
		return fmt.Errorf("update measure status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetEvidence(ctx context.Context, evidenceID string) (*Evidence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, evidence_type, uri, review_status, created_at, updated_at
		FROM evidence WHERE id = $1`, evidenceID)
	var e Evidence
	var review string
	err := row.Scan(&e.ID, &e.TenantID, &e.Name, &e.EvidenceType, &e.URI, &review, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get evidence: %w", err)
	}
	e.ReviewStatus = ReviewStatus(review)
	return &e, nil
}

func (s *PostgresStore) CreateEvidence(ctx context.Context, e *Evidence) error {
	exec := txcontext.Resolve(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO evidence (id, tenant_id, name, evidence_type, uri, review_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TenantID, e.Name, e.EvidenceType, e.URI, string(e.ReviewStatus), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create evidence: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateEvidenceReview(ctx context.Context, evidenceID string, status ReviewStatus) error {
	exec := txcontext.Resolve(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		"UPDATE evidence SET review_status = $2, updated_at = now() WHERE id = $1",
		evidenceID, string(status))
	if err != nil {
		return fmt.Errorf("update evidence review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateLink(ctx context.Context, l *EvidenceLink) error {
	exec := txcontext.Resolve(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO evidence_links (id, evidence_id, measure_id, relevance, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID, l.EvidenceID, l.MeasureID, l.Relevance, l.Active, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLink(ctx context.Context, linkID string) (*EvidenceLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, evidence_id, measure_id, relevance, active, created_at
		FROM evidence_links WHERE id = $1`, linkID)
	var l EvidenceLink
	err := row.Scan(&l.ID, &l.EvidenceID, &l.MeasureID, &l.Relevance, &l.Active, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return &l, nil
}

func (s *PostgresStore) ListLinksByEvidence(ctx context.Context, evidenceID string) ([]*EvidenceLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, evidence_id, measure_id, relevance, active, created_at
		FROM evidence_links WHERE evidence_id = $1`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("list links by evidence: %w", err)
	}
	defer rows.Close()

	var out []*EvidenceLink
	for rows.Next() {
		var l EvidenceLink
		if err := rows.Scan(&l.ID, &l.EvidenceID, &l.MeasureID, &l.Relevance, &l.Active, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeactivateLink(ctx context.Context, linkID string) error {
	exec := txcontext.Resolve(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		"UPDATE evidence_links SET active = false WHERE id = $1", linkID)
	if err != nil {
		return fmt.Errorf("deactivate link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListLinkedEvidence(ctx context.Context, measureID string) ([]LinkedEvidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, e.id, e.evidence_type, e.review_status
		FROM evidence_links l
		JOIN evidence e ON e.id = l.evidence_id
		WHERE l.measure_id = $1 AND l.active`, measureID)
	if err != nil {
		return nil, fmt.Errorf("list linked evidence: %w", err)
	}
	defer rows.Close()

	var out []LinkedEvidence
	for rows.Next() {
		var le LinkedEvidence
		var review string
		if err := rows.Scan(&le.LinkID, &le.EvidenceID, &le.EvidenceType, &review); err != nil {
			return nil, fmt.Errorf("scan linked evidence: %w", err)
		}
		le.ReviewStatus = ReviewStatus(review)
		out = append(out, le)
	}
	return out, rows.Err()
}

func (s *PostgresStore) HasActiveEvidence(ctx context.Context, entityType, entityID string) (bool, error) {
	var query string
	switch entityType {
	case "control_measure":
		query = "SELECT EXISTS (SELECT 1 FROM evidence_links WHERE measure_id = $1 AND active)"
	case "compliance_record":
		query = `SELECT EXISTS (
			SELECT 1 FROM evidence_links l
			JOIN control_measures m ON m.id = l.measure_id
			WHERE m.record_id = $1 AND l.active)`
	default:
		return false, nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, entityID).Scan(&exists); err != nil {
		return false, fmt.Errorf("has active evidence: %w", err)
	}
	return exists, nil
}
