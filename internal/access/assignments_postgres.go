package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
)

// PostgresAssignmentStore persists role assignments as one row per actor.
type PostgresAssignmentStore struct {
	db *sql.DB
}

func NewPostgresAssignmentStore(db *sql.DB) *PostgresAssignmentStore {
	return &PostgresAssignmentStore{db: db}
}

func (s *PostgresAssignmentStore) GetRole(ctx context.Context, actorID string) (Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM role_assignments WHERE actor_id = $1`, actorID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get role: %w", err)
	}
	return Role(role), nil
}

func (s *PostgresAssignmentStore) SetRole(ctx context.Context, actorID string, role Role) error {
	exec := txcontext.Resolve(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO role_assignments (actor_id, role, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (actor_id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()`,
		actorID, string(role))
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return nil
}
