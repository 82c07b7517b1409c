package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
)

// PostgresStore persists workflow definitions, instances, history and
// approvals. States and transitions live as jsonb on the definition row;
// they are immutable once created, so no per-state table is needed.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetDefinition(ctx context.Context, definitionID string) (*Definition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, type, version, states, transitions, created_at, updated_at
		FROM workflow_definitions WHERE id = $1`, definitionID)
	return scanDefinition(row)
}

func (s *PostgresStore) ListDefinitionsByTenant(ctx context.Context, tenantID string) ([]*Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, type, version, states, transitions, created_at, updated_at
		FROM workflow_definitions WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var out []*Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateDefinition(ctx context.Context, d *Definition) error {
	states, err := json.Marshal(d.States)
	if err != nil {
		return fmt.Errorf("marshal states: %w", err)
	}
	transitions, err := json.Marshal(d.Transitions)
	if err != nil {
		return fmt.Errorf("marshal transitions: %w", err)
	}

	exec := txcontext.Resolve(ctx, s.db)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO workflow_definitions (id, tenant_id, name, type, version, states, transitions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.TenantID, d.Name, string(d.Type), d.Version, states, transitions, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create definition: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInstance(ctx context.Context, instanceID string) (*Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, definition_id, tenant_id, entity_type, entity_id, current_state_id, status, context, started_by, created_at, updated_at, completed_at
		FROM workflow_instances WHERE id = $1`, instanceID)
	return scanInstance(row)
}

func (s *PostgresStore) FindActiveInstance(ctx context.Context, entityType, entityID, definitionID string) (*Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, definition_id, tenant_id, entity_type, entity_id, current_state_id, status, context, started_by, created_at, updated_at, completed_at
		FROM workflow_instances
		WHERE entity_type = $1 AND entity_id = $2 AND definition_id = $3 AND status = 'active'`,
		entityType, entityID, definitionID)
	return scanInstance(row)
}

// CreateInstance inserts the instance inside a transaction that first probes
// for another active instance on the same entity and definition. The partial
// unique index on (entity_type, entity_id, definition_id) WHERE status =
// 'active' backs the same guarantee across processes.
func (s *PostgresStore) CreateInstance(ctx context.Context, inst *Instance) error {
	contextJSON, err := json.Marshal(inst.Context)
	if err != nil {
		return fmt.Errorf("marshal instance context: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create instance: %w", err)
	}
	defer tx.Rollback()

	if inst.Status == InstanceActive {
		var existing string
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM workflow_instances
			WHERE entity_type = $1 AND entity_id = $2 AND definition_id = $3 AND status = 'active'
			FOR UPDATE`,
			inst.EntityType, inst.EntityID, inst.DefinitionID).Scan(&existing)
		if err == nil {
			return sentinel.ErrConflict
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("probe active instance: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_instances (id, definition_id, tenant_id, entity_type, entity_id, current_state_id, status, context, started_by, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inst.ID, inst.DefinitionID, inst.TenantID, inst.EntityType, inst.EntityID,
		inst.CurrentStateID, string(inst.Status), contextJSON, inst.StartedBy,
		inst.CreatedAt, inst.UpdatedAt, inst.CompletedAt)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	return tx.Commit()
}

// ApplyStateUpdate moves the instance and appends the history entry in one
// transaction. The UPDATE carries the expected current state in its WHERE
// clause; zero rows affected means another writer won the race.
func (s *PostgresStore) ApplyStateUpdate(ctx context.Context, update StateUpdate) error {
	metadata, err := json.Marshal(update.History.Metadata)
	if err != nil {
		return fmt.Errorf("marshal history metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state update: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE workflow_instances
		SET current_state_id = $1, status = $2, completed_at = $3, updated_at = $4
		WHERE id = $5 AND current_state_id IS NOT DISTINCT FROM $6`,
		update.NewStateID, string(update.Status), update.CompletedAt,
		update.History.CreatedAt, update.InstanceID, update.ExpectedStateID)
	if err != nil {
		return fmt.Errorf("update instance state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update instance state: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)`,
			update.InstanceID).Scan(&exists); err != nil {
			return fmt.Errorf("probe instance: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}

	h := update.History
	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_history (id, instance_id, from_state_id, to_state_id, transition_id, performed_by, comment, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		h.ID, h.InstanceID, h.FromStateID, h.ToStateID, h.TransitionID,
		h.PerformedBy, h.Comment, metadata, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) CancelInstance(ctx context.Context, instanceID string) error {
	exec := txcontext.Resolve(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE workflow_instances SET status = 'cancelled'
		WHERE id = $1 AND status = 'active'`, instanceID)
	if err != nil {
		return fmt.Errorf("cancel instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel instance: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)`,
			instanceID).Scan(&exists); err != nil {
			return fmt.Errorf("probe instance: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, instanceID string) ([]*HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, from_state_id, to_state_id, transition_id, performed_by, comment, metadata, created_at
		FROM workflow_history WHERE instance_id = $1 ORDER BY created_at`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var metadata []byte
		if err := rows.Scan(&h.ID, &h.InstanceID, &h.FromStateID, &h.ToStateID, &h.TransitionID,
			&h.PerformedBy, &h.Comment, &metadata, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &h.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal history metadata: %w", err)
			}
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateApproval(ctx context.Context, a *PendingApproval) error {
	exec := txcontext.Resolve(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		INSERT INTO workflow_approvals (id, instance_id, transition_id, approver_id, status, comment, responded_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (instance_id, transition_id, approver_id) DO NOTHING`,
		a.ID, a.InstanceID, a.TransitionID, a.ApproverID, string(a.Status),
		a.Comment, a.RespondedAt, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) ListApprovals(ctx context.Context, instanceID, transitionID string) ([]*PendingApproval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, transition_id, approver_id, status, comment, responded_at, created_at
		FROM workflow_approvals WHERE instance_id = $1 AND transition_id = $2 ORDER BY created_at`,
		instanceID, transitionID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []*PendingApproval
	for rows.Next() {
		var a PendingApproval
		var status string
		if err := rows.Scan(&a.ID, &a.InstanceID, &a.TransitionID, &a.ApproverID,
			&status, &a.Comment, &a.RespondedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		a.Status = ApprovalStatus(status)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateApproval(ctx context.Context, approvalID string, status ApprovalStatus, comment string, respondedAt time.Time) error {
	exec := txcontext.Resolve(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE workflow_approvals SET status = $1, comment = $2, responded_at = $3
		WHERE id = $4`, string(status), comment, respondedAt, approvalID)
	if err != nil {
		return fmt.Errorf("update approval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update approval: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*Definition, error) {
	var d Definition
	var defType string
	var states, transitions []byte
	err := row.Scan(&d.ID, &d.TenantID, &d.Name, &defType, &d.Version, &states, &transitions, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan definition: %w", err)
	}
	d.Type = DefinitionType(defType)
	if err := json.Unmarshal(states, &d.States); err != nil {
		return nil, fmt.Errorf("unmarshal states: %w", err)
	}
	if err := json.Unmarshal(transitions, &d.Transitions); err != nil {
		return nil, fmt.Errorf("unmarshal transitions: %w", err)
	}
	return &d, nil
}

func scanInstance(row rowScanner) (*Instance, error) {
	var inst Instance
	var status string
	var contextJSON []byte
	err := row.Scan(&inst.ID, &inst.DefinitionID, &inst.TenantID, &inst.EntityType, &inst.EntityID,
		&inst.CurrentStateID, &status, &contextJSON, &inst.StartedBy,
		&inst.CreatedAt, &inst.UpdatedAt, &inst.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan instance: %w", err)
	}
	inst.Status = InstanceStatus(status)
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &inst.Context); err != nil {
			return nil, fmt.Errorf("unmarshal instance context: %w", err)
		}
	}
	return &inst, nil
}
