package org

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

// Service enforces tree invariants on top of the store: no cycles, and a
// tenant root cannot be deleted while any child exists. The core otherwise
// treats the tree as read-only; these operations exist for the management
// surface.
type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context, orgID string) (*Organization, error) {
	o, err := s.store.Get(ctx, orgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "organization store unavailable")
	}
	return o, nil
}

func (s *Service) ListByTenant(ctx context.Context, tenantID string) ([]*Organization, error) {
	out, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "organization store unavailable")
	}
	return out, nil
}

// Create adds a node under parentID, or a tenant root when parentID is nil.
func (s *Service) Create(ctx context.Context, tenantID, name string, parentID *string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "organization name is required")
	}

	level := 0
	if parentID != nil {
		parent, err := s.store.Get(ctx, *parentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "parent organization not found")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "organization store unavailable")
		}
		if parent.TenantID != tenantID {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "parent belongs to a different tenant")
		}
		level = parent.Level + 1
	}

	now := requestcontext.Now(ctx)
	o := &Organization{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		ParentID:  parentID,
		Name:      name,
		Level:     level,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create organization")
	}
	return o, nil
}

// Reparent moves an organization under a new parent. Moving a node under its
// own descendant would introduce a cycle; that is rejected as an invariant
// violation before any write happens.
func (s *Service) Reparent(ctx context.Context, orgID string, newParentID string) (*Organization, error) {
	o, err := s.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if orgID == newParentID {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization cannot be its own parent")
	}

	descendants, err := s.store.DescendantsOf(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "organization store unavailable")
	}
	for _, id := range descendants {
		if id == newParentID {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "reparenting under a descendant would create a cycle")
		}
	}

	parent, err := s.Get(ctx, newParentID)
	if err != nil {
		return nil, err
	}
	if parent.TenantID != o.TenantID {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "parent belongs to a different tenant")
	}

	o.ParentID = &parent.ID
	o.Level = parent.Level + 1
	o.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, o); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update organization")
	}
	return o, nil
}

// Delete removes a leaf node. A root with children is protected; the error is
// an invariant violation because callers should never offer the action.
func (s *Service) Delete(ctx context.Context, orgID string) error {
	if err := s.store.Delete(ctx, orgID); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "organization not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			s.logger.ErrorContext(ctx, "attempt to delete organization with children", "org_id", orgID)
			return dErrors.New(dErrors.CodeInvariantViolation, "organization has children")
		default:
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to delete organization")
		}
	}
	return nil
}
