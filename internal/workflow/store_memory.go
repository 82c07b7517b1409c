package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"conforma/pkg/platform/sentinel"
)

// InMemoryStore keeps workflow entities under a single mutex so a
// StateUpdate applies atomically.
type InMemoryStore struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	instances   map[string]*Instance
	history     map[string][]*HistoryEntry
	approvals   map[string]*PendingApproval
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		definitions: make(map[string]*Definition),
		instances:   make(map[string]*Instance),
		history:     make(map[string][]*HistoryEntry),
		approvals:   make(map[string]*PendingApproval),
	}
}

func (s *InMemoryStore) GetDefinition(_ context.Context, definitionID string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.definitions[definitionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *InMemoryStore) ListDefinitionsByTenant(_ context.Context, tenantID string) ([]*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Definition
	for _, d := range s.definitions {
		if d.TenantID == tenantID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) CreateDefinition(_ context.Context, d *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.definitions[d.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *d
	s.definitions[d.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetInstance(_ context.Context, instanceID string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyInstance(inst), nil
}

func (s *InMemoryStore) FindActiveInstance(_ context.Context, entityType, entityID, definitionID string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst := s.findActiveLocked(entityType, entityID, definitionID)
	if inst == nil {
		return nil, sentinel.ErrNotFound
	}
	return copyInstance(inst), nil
}

func (s *InMemoryStore) findActiveLocked(entityType, entityID, definitionID string) *Instance {
	for _, inst := range s.instances {
		if inst.EntityType == entityType && inst.EntityID == entityID &&
			inst.DefinitionID == definitionID && inst.Status == InstanceActive {
			return inst
		}
	}
	return nil
}

func (s *InMemoryStore) CreateInstance(_ context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.instances[inst.ID]; exists {
		return sentinel.ErrConflict
	}
	if inst.Status == InstanceActive {
		if dup := s.findActiveLocked(inst.EntityType, inst.EntityID, inst.DefinitionID); dup != nil {
			return sentinel.ErrConflict
		}
	}
	s.instances[inst.ID] = copyInstance(inst)
	return nil
}

func (s *InMemoryStore) ApplyStateUpdate(_ context.Context, update StateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[update.InstanceID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !stateIDEqual(inst.CurrentStateID, update.ExpectedStateID) {
		return sentinel.ErrConflict
	}

	newState := update.NewStateID
	inst.CurrentStateID = &newState
	inst.Status = update.Status
	inst.CompletedAt = update.CompletedAt
	inst.UpdatedAt = update.History.CreatedAt

	entry := *update.History
	s.history[update.InstanceID] = append(s.history[update.InstanceID], &entry)
	return nil
}

func (s *InMemoryStore) CancelInstance(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if inst.Status != InstanceActive {
		return sentinel.ErrInvalidState
	}
	inst.Status = InstanceCancelled
	return nil
}

func (s *InMemoryStore) ListHistory(_ context.Context, instanceID string) ([]*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[instanceID]
	out := make([]*HistoryEntry, len(entries))
	for i, e := range entries {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (s *InMemoryStore) CreateApproval(_ context.Context, a *PendingApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.approvals {
		if existing.InstanceID == a.InstanceID && existing.TransitionID == a.TransitionID &&
			existing.ApproverID == a.ApproverID {
			return sentinel.ErrConflict
		}
	}
	cp := *a
	s.approvals[a.ID] = &cp
	return nil
}

func (s *InMemoryStore) ListApprovals(_ context.Context, instanceID, transitionID string) ([]*PendingApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*PendingApproval
	for _, a := range s.approvals {
		if a.InstanceID == instanceID && a.TransitionID == transitionID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) UpdateApproval(_ context.Context, approvalID string, status ApprovalStatus, comment string, respondedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[approvalID]
	if !ok {
		return sentinel.ErrNotFound
	}
	a.Status = status
	a.Comment = comment
	a.RespondedAt = &respondedAt
	return nil
}

func copyInstance(inst *Instance) *Instance {
	cp := *inst
	if inst.Context != nil {
		cp.Context = make(map[string]any, len(inst.Context))
		for k, v := range inst.Context {
			cp.Context[k] = v
		}
	}
	return &cp
}

func stateIDEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
