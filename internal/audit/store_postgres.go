package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	txcontext "conforma/pkg/platform/tx"
)

// PostgresStore appends events to a single audit table. Rows are never
// updated or deleted; retention is an operational concern outside the core.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	changes, err := json.Marshal(event.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}

	exec := txcontext.Resolve(ctx, s.db)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_events (id, occurred_at, actor_id, tenant_id, event_type, resource_type, resource_id, decision, reason, changes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.NewString(), event.Timestamp, event.ActorID, event.TenantID,
		string(event.EventType), event.ResourceType, event.ResourceID,
		event.Decision, event.Reason, changes,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, actor_id, tenant_id, event_type, resource_type, resource_id, decision, reason, changes
		FROM audit_events
		WHERE tenant_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var eventType string
		var changes []byte
		if err := rows.Scan(&e.Timestamp, &e.ActorID, &e.TenantID, &eventType,
			&e.ResourceType, &e.ResourceID, &e.Decision, &e.Reason, &changes); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.EventType = EventType(eventType)
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, fmt.Errorf("unmarshal audit changes: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
