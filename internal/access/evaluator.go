package access

import (
	"context"
	"errors"
	"log/slog"

	"conforma/internal/access/metrics"
	"conforma/internal/audit"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
)

// OrganizationReader is the hierarchy query the evaluator needs. It is
// deliberately narrow: reachability decisions are security-sensitive, so the
// evaluator always reads the current tree, never a snapshot of its own.
type OrganizationReader interface {
	Exists(ctx context.Context, orgID string) (bool, error)
	DescendantsOf(ctx context.Context, orgID string) ([]string, error)
}

// ComplianceRecordReader resolves a compliance record to its owning
// organization for the composite edit check.
type ComplianceRecordReader interface {
	OrganizationID(ctx context.Context, recordID string) (string, error)
}

// AuditPublisher receives permission check outcomes that gate mutations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Evaluator answers "can this actor perform this permission" and "can this
// actor reach this organization". Role to permission resolution is static and
// cached; organization reachability is recomputed per call because the tree
// can change between requests.
type Evaluator struct {
	orgs    OrganizationReader
	records ComplianceRecordReader
	cache   Cache
	logger  *slog.Logger
	auditor AuditPublisher
	metrics *metrics.Metrics
}

// Option configures an Evaluator.
type Option func(*Evaluator)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(e *Evaluator) { e.auditor = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

func WithCache(c Cache) Option {
	return func(e *Evaluator) { e.cache = c }
}

// NewEvaluator constructs an Evaluator. Without WithCache it resolves the
// catalog on every call, which is still cheap; the cache exists to keep the
// hot path free of map rebuilds.
func NewEvaluator(orgs OrganizationReader, records ComplianceRecordReader, opts ...Option) *Evaluator {
	e := &Evaluator{orgs: orgs, records: records, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// permissionsFor resolves the actor's permission set, consulting the cache
// when configured.
func (e *Evaluator) permissionsFor(ctx context.Context, actor *Actor) map[Permission]bool {
	if e.cache == nil {
		return PermissionsOf(actor.Role)
	}
	if perms, ok := e.cache.Get(ctx, actor.ID); ok {
		if e.metrics != nil {
			e.metrics.CacheHits.Inc()
		}
		return perms
	}
	if e.metrics != nil {
		e.metrics.CacheMisses.Inc()
	}
	perms := PermissionsOf(actor.Role)
	e.cache.Set(ctx, actor.ID, perms)
	return perms
}

// Can reports whether the actor holds the permission. A nil actor never can.
func (e *Evaluator) Can(ctx context.Context, actor *Actor, permission Permission) bool {
	if actor == nil {
		return false
	}
	return e.permissionsFor(ctx, actor)[permission]
}

// Require fails with a forbidden error when the actor lacks the permission.
// It is the guard at the start of every mutating operation; reads filter by
// organization reachability instead. The outcome is audited either way.
// The error message stays generic: permission names are not disclosed to
// unprivileged callers.
func (e *Evaluator) Require(ctx context.Context, actor *Actor, permission Permission) error {
	if actor == nil {
		return dErrors.New(dErrors.CodeUnauthenticated, "no resolvable actor")
	}
	allowed := e.Can(ctx, actor, permission)
	e.recordCheck(ctx, actor, permission, allowed)
	if !allowed {
		return dErrors.New(dErrors.CodeForbidden, "forbidden")
	}
	return nil
}

func (e *Evaluator) recordCheck(ctx context.Context, actor *Actor, permission Permission, allowed bool) {
	if e.metrics != nil {
		if allowed {
			e.metrics.ChecksAllowed.Inc()
		} else {
			e.metrics.ChecksDenied.Inc()
		}
	}
	if e.auditor == nil {
		return
	}
	decision := "denied"
	if allowed {
		decision = "granted"
	}
	if err := e.auditor.Emit(ctx, audit.Event{
		ActorID:      actor.ID,
		TenantID:     actor.TenantID,
		EventType:    audit.EventPermissionCheck,
		ResourceType: "permission",
		ResourceID:   string(permission),
		Decision:     decision,
	}); err != nil {
		e.logger.WarnContext(ctx, "audit emit failed", "event", audit.EventPermissionCheck, "error", err)
	}
}

// CanAccessOrganization reports whether the actor can reach the organization.
// super_admin reaches everything; an exact home match always passes; beyond
// that only hierarchy-aware roles may reach descendants of their home
// organization. Store failures surface as unavailable, never as a silent
// deny-or-allow.
func (e *Evaluator) CanAccessOrganization(ctx context.Context, actor *Actor, orgID string) (bool, error) {
	if actor == nil {
		return false, nil
	}
	if actor.Role == RoleSuperAdmin {
		return true, nil
	}
	if actor.HomeOrganizationID == "" {
		return false, nil
	}
	if actor.HomeOrganizationID == orgID {
		return true, nil
	}
	if !HierarchyAware(actor.Role) {
		return false, nil
	}
	descendants, err := e.orgs.DescendantsOf(ctx, actor.HomeOrganizationID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "organization hierarchy unavailable")
	}
	for _, id := range descendants {
		if id == orgID {
			return true, nil
		}
	}
	return false, nil
}

// RequireOrganization fails with an access-denied error when the actor cannot
// reach the organization. The message carries no hierarchy detail.
func (e *Evaluator) RequireOrganization(ctx context.Context, actor *Actor, orgID string) error {
	ok, err := e.CanAccessOrganization(ctx, actor, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.New(dErrors.CodeOrgAccessDenied, "organization access denied")
	}
	return nil
}

// ReachableOrganizations returns the set of organization ids the actor may
// read. For confined roles this is just the home organization; for
// hierarchy-aware roles it is the home subtree. super_admin returns nil,
// meaning unrestricted; callers skip filtering in that case.
func (e *Evaluator) ReachableOrganizations(ctx context.Context, actor *Actor) ([]string, error) {
	if actor == nil {
		return []string{}, nil
	}
	if actor.Role == RoleSuperAdmin {
		return nil, nil
	}
	if actor.HomeOrganizationID == "" {
		return []string{}, nil
	}
	if !HierarchyAware(actor.Role) {
		return []string{actor.HomeOrganizationID}, nil
	}
	descendants, err := e.orgs.DescendantsOf(ctx, actor.HomeOrganizationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "organization hierarchy unavailable")
	}
	return append([]string{actor.HomeOrganizationID}, descendants...), nil
}

// CanEditComplianceRecord is the composite check for record mutations:
// permission first, then organization reachability. A missing record
// evaluates to false rather than an error; callers distinguish not-found
// upstream.
func (e *Evaluator) CanEditComplianceRecord(ctx context.Context, actor *Actor, recordID string) (bool, error) {
	if !e.Can(ctx, actor, ComplianceUpdate) {
		return false, nil
	}
	orgID, err := e.records.OrganizationID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "compliance store unavailable")
	}
	return e.CanAccessOrganization(ctx, actor, orgID)
}

// InvalidateActor drops the actor's cached permission set. The role
// assignment path calls this synchronously before returning, so the next
// check for that actor re-resolves from the catalog.
func (e *Evaluator) InvalidateActor(ctx context.Context, actorID string) {
	if e.cache != nil {
		e.cache.Invalidate(ctx, actorID)
	}
}
