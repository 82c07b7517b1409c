package org

import (
	"context"
	"sync"

	"conforma/pkg/platform/sentinel"
)

// InMemoryStore keeps the tree in an adjacency map under a RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	orgs     map[string]*Organization
	children map[string][]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		orgs:     make(map[string]*Organization),
		children: make(map[string][]string),
	}
}

func (s *InMemoryStore) Get(_ context.Context, orgID string) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[orgID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *InMemoryStore) Exists(_ context.Context, orgID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.orgs[orgID]
	return ok, nil
}

func (s *InMemoryStore) ListByTenant(_ context.Context, tenantID string) ([]*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Organization
	for _, o := range s.orgs {
		if o.TenantID == tenantID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListChildren(_ context.Context, orgID string) ([]*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Organization
	for _, id := range s.children[orgID] {
		cp := *s.orgs[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) DescendantsOf(_ context.Context, orgID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	queue := append([]string{}, s.children[orgID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		queue = append(queue, s.children[id]...)
	}
	return out, nil
}

func (s *InMemoryStore) Create(_ context.Context, o *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orgs[o.ID]; exists {
		return sentinel.ErrConflict
	}
	if o.ParentID != nil {
		if _, ok := s.orgs[*o.ParentID]; !ok {
			return sentinel.ErrNotFound
		}
		s.children[*o.ParentID] = append(s.children[*o.ParentID], o.ID)
	}
	cp := *o
	s.orgs[o.ID] = &cp
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, o *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.orgs[o.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !parentEqual(existing.ParentID, o.ParentID) {
		s.detachLocked(existing)
		if o.ParentID != nil {
			if _, ok := s.orgs[*o.ParentID]; !ok {
				return sentinel.ErrNotFound
			}
			s.children[*o.ParentID] = append(s.children[*o.ParentID], o.ID)
		}
	}
	cp := *o
	s.orgs[o.ID] = &cp
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[orgID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if len(s.children[orgID]) > 0 {
		return sentinel.ErrInvalidState
	}
	s.detachLocked(o)
	delete(s.orgs, orgID)
	delete(s.children, orgID)
	return nil
}

func (s *InMemoryStore) detachLocked(o *Organization) {
	if o.ParentID == nil {
		return
	}
	siblings := s.children[*o.ParentID]
	for i, id := range siblings {
		if id == o.ID {
			s.children[*o.ParentID] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
}

func parentEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
