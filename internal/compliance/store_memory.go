package compliance

import (
	"context"
	"sync"

	"conforma/pkg/platform/sentinel"
)

// InMemoryStore holds compliance entities under a single RWMutex. Default
// store for tests and DSN-less deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*ComplianceRecord
	measures map[string]*ControlMeasure
	evidence map[string]*Evidence
	links    map[string]*EvidenceLink
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:  make(map[string]*ComplianceRecord),
		measures: make(map[string]*ControlMeasure),
		evidence: make(map[string]*Evidence),
		links:    make(map[string]*EvidenceLink),
	}
}

func (s *InMemoryStore) GetRecord(_ context.Context, recordID string) (*ComplianceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *InMemoryStore) ListRecordsByTenant(_ context.Context, tenantID string) ([]*ComplianceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ComplianceRecord
	for _, r := range s.records {
		if r.TenantID == tenantID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListRecordsByOrganization(_ context.Context, orgID string) ([]*ComplianceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ComplianceRecord
	for _, r := range s.records {
		if r.OrganizationID == orgID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) CreateRecord(_ context.Context, r *ComplianceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[r.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *r
	s.records[r.ID] = &cp
	return nil
}

func (s *InMemoryStore) UpdateRecordStatus(_ context.Context, recordID string, status RecordStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordID]
	if !ok {
		return sentinel.ErrNotFound
	}
	r.Status = status
	return nil
}

func (s *InMemoryStore) RecordOrganizationID(_ context.Context, recordID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return r.OrganizationID, nil
}

func (s *InMemoryStore) GetMeasure(_ context.Context, measureID string) (*ControlMeasure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.measures[measureID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *m
	cp.RequiredEvidenceTypes = append([]string{}, m.RequiredEvidenceTypes...)
	return &cp, nil
}

func (s *InMemoryStore) ListMeasuresByRecord(_ context.Context, recordID string) ([]*ControlMeasure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ControlMeasure
	for _, m := range s.measures {
		if m.RecordID == recordID {
			cp := *m
			cp.RequiredEvidenceTypes = append([]string{}, m.RequiredEvidenceTypes...)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) CreateMeasure(_ context.Context, m *ControlMeasure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.measures[m.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, ok := s.records[m.RecordID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *m
	cp.RequiredEvidenceTypes = append([]string{}, m.RequiredEvidenceTypes...)
	s.measures[m.ID] = &cp
	return nil
}

func (s *InMemoryStore) UpdateMeasure(_ context.Context, m *ControlMeasure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.measures[m.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *m
	cp.RequiredEvidenceTypes = append([]string{}, m.RequiredEvidenceTypes...)
	s.measures[m.ID] = &cp
	return nil
}

func (s *InMemoryStore) UpdateMeasureStatus(_ context.Context, measureID string, status MeasureStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.measures[measureID]
	if !ok {
		return sentinel.ErrNotFound
	}
	m.Status = status
	return nil
}

func (s *InMemoryStore) GetEvidence(_ context.Context, evidenceID string) (*Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.evidence[evidenceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *InMemoryStore) CreateEvidence(_ context.Context, e *Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.evidence[e.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *e
	s.evidence[e.ID] = &cp
	return nil
}

func (s *InMemoryStore) UpdateEvidenceReview(_ context.Context, evidenceID string, status ReviewStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.evidence[evidenceID]
	if !ok {
		return sentinel.ErrNotFound
	}
	e.ReviewStatus = status
	return nil
}

func (s *InMemoryStore) CreateLink(_ context.Context, l *EvidenceLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[l.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, ok := s.evidence[l.EvidenceID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := s.measures[l.MeasureID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *l
	s.links[l.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetLink(_ context.Context, linkID string) (*EvidenceLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[linkID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *InMemoryStore) ListLinksByEvidence(_ context.Context, evidenceID string) ([]*EvidenceLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*EvidenceLink
	for _, l := range s.links {
		if l.EvidenceID == evidenceID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) DeactivateLink(_ context.Context, linkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[linkID]
	if !ok {
		return sentinel.ErrNotFound
	}
	l.Active = false
	return nil
}

func (s *InMemoryStore) ListLinkedEvidence(_ context.Context, measureID string) ([]LinkedEvidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.linkedEvidenceLocked(measureID), nil
}

func (s *InMemoryStore) linkedEvidenceLocked(measureID string) []LinkedEvidence {
	var out []LinkedEvidence
	for _, l := range s.links {
		if l.MeasureID != measureID || !l.Active {
			continue
		}
		e, ok := s.evidence[l.EvidenceID]
		if !ok {
			continue
		}
		out = append(out, LinkedEvidence{
			LinkID:       l.ID,
			EvidenceID:   e.ID,
			EvidenceType: e.EvidenceType,
			ReviewStatus: e.ReviewStatus,
		})
	}
	return out
}

func (s *InMemoryStore) HasActiveEvidence(_ context.Context, entityType, entityID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch entityType {
	case "control_measure":
		return len(s.linkedEvidenceLocked(entityID)) > 0, nil
	case "compliance_record":
		for _, m := range s.measures {
			if m.RecordID == entityID && len(s.linkedEvidenceLocked(m.ID)) > 0 {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}
