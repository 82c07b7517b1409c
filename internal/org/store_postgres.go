package org

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
)

// PostgresStore persists the tree in an adjacency-list table and answers
// DescendantsOf with a recursive CTE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orgColumns = "id, tenant_id, parent_id, name, level, created_at, updated_at"

func scanOrg(row interface{ Scan(...any) error }) (*Organization, error) {
	var o Organization
	if err := row.Scan(&o.ID, &o.TenantID, &o.ParentID, &o.Name, &o.Level, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) Get(ctx context.Context, orgID string) (*Organization, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+orgColumns+" FROM organizations WHERE id = $1", orgID)
	o, err := scanOrg(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) Exists(ctx context.Context, orgID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM organizations WHERE id = $1)", orgID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("organization exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orgColumns+" FROM organizations WHERE tenant_id = $1 ORDER BY level, name", tenantID)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()
	return collectOrgs(rows)
}

func (s *PostgresStore) ListChildren(ctx context.Context, orgID string) ([]*Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orgColumns+" FROM organizations WHERE parent_id = $1 ORDER BY name", orgID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()
	return collectOrgs(rows)
}

func (s *PostgresStore) DescendantsOf(ctx context.Context, orgID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE subtree AS (
			SELECT id FROM organizations WHERE parent_id = $1
			UNION ALL
			SELECT o.id FROM organizations o
			JOIN subtree s ON o.parent_id = s.id
		)
		SELECT id FROM subtree`, orgID)
	if err != nil {
		return nil, fmt.Errorf("descendants of: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan descendant: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, o *Organization) error {
	exec := txcontext.Resolve(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO organizations (`+orgColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.TenantID, o.ParentID, o.Name, o.Level, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, o *Organization) error {
	exec := txcontext.Resolve(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE organizations
		SET parent_id = $2, name = $3, level = $4, updated_at = $5
		WHERE id = $1`,
		o.ID, o.ParentID, o.Name, o.Level, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, orgID string) error {
	exec := txcontext.Resolve(ctx, s.db)
	var hasChildren bool
	err := exec.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM organizations WHERE parent_id = $1)", orgID).Scan(&hasChildren)
	if err != nil {
		return fmt.Errorf("check children: %w", err)
	}
	if hasChildren {
		return sentinel.ErrInvalidState
	}
	res, err := exec.ExecContext(ctx, "DELETE FROM organizations WHERE id = $1", orgID)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func collectOrgs(rows *sql.Rows) ([]*Organization, error) {
	var out []*Organization
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
