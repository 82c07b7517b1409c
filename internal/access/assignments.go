package access

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"conforma/internal/audit"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
)

// AssignmentStore persists role assignments.
type AssignmentStore interface {
	GetRole(ctx context.Context, actorID string) (Role, error)
	SetRole(ctx context.Context, actorID string, role Role) error
}

// Assignments changes role assignments and keeps cached permission sets
// consistent with them. Invalidation happens synchronously before Assign
// returns, so the next permission check for the affected actor recomputes
// from the catalog.
type Assignments struct {
	store   AssignmentStore
	cache   Cache
	logger  *slog.Logger
	auditor interface {
		Emit(ctx context.Context, event audit.Event) error
	}
}

type AssignmentsOption func(*Assignments)

func AssignmentsWithLogger(logger *slog.Logger) AssignmentsOption {
	return func(a *Assignments) { a.logger = logger }
}

func AssignmentsWithAuditPublisher(publisher *audit.Publisher) AssignmentsOption {
	return func(a *Assignments) { a.auditor = publisher }
}

func NewAssignments(store AssignmentStore, cache Cache, opts ...AssignmentsOption) *Assignments {
	a := &Assignments{
		store:  store,
		cache:  cache,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assign grants the role to the target actor. The caller needs user:manage;
// only super_admin may hand out the super_admin role.
func (a *Assignments) Assign(ctx context.Context, actor *Actor, targetActorID string, role Role) error {
	if actor == nil {
		return dErrors.New(dErrors.CodeUnauthenticated, "no resolvable actor")
	}
	if !PermissionsOf(actor.Role)[UserManage] {
		return dErrors.New(dErrors.CodeForbidden, "forbidden")
	}
	if role == RoleSuperAdmin && actor.Role != RoleSuperAdmin {
		return dErrors.New(dErrors.CodeForbidden, "forbidden")
	}
	if !role.Valid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown role %q", role)
	}

	previous, err := a.store.GetRole(ctx, targetActorID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "assignment store unavailable")
	}

	if err := a.store.SetRole(ctx, targetActorID, role); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "assignment store unavailable")
	}

	if a.cache != nil {
		a.cache.Invalidate(ctx, targetActorID)
	}

	if a.auditor != nil {
		event := audit.Event{
			ActorID:      actor.ID,
			TenantID:     actor.TenantID,
			EventType:    audit.EventRoleAssigned,
			ResourceType: "actor",
			ResourceID:   targetActorID,
			Decision:     "allowed",
			Changes: map[string]string{
				"from_role": string(previous),
				"to_role":   string(role),
			},
		}
		if err := a.auditor.Emit(ctx, event); err != nil {
			a.logger.WarnContext(ctx, "audit emit failed", "event", audit.EventRoleAssigned, "error", err)
		}
	}
	return nil
}

// RoleOf returns the target actor's current role.
func (a *Assignments) RoleOf(ctx context.Context, actorID string) (Role, error) {
	role, err := a.store.GetRole(ctx, actorID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.New(dErrors.CodeNotFound, "actor has no role assignment")
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "assignment store unavailable")
	}
	return role, nil
}

// InMemoryAssignmentStore keeps role assignments in a map.
type InMemoryAssignmentStore struct {
	mu    sync.RWMutex
	roles map[string]Role
}

func NewInMemoryAssignmentStore() *InMemoryAssignmentStore {
	return &InMemoryAssignmentStore{roles: make(map[string]Role)}
}

func (s *InMemoryAssignmentStore) GetRole(_ context.Context, actorID string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[actorID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return role, nil
}

func (s *InMemoryAssignmentStore) SetRole(_ context.Context, actorID string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[actorID] = role
	return nil
}
