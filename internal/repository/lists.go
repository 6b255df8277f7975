package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// SaveList stores a compliance list. The active code namespace is unique
// per tenant; re-creating a deleted code is allowed.
func (r *SQLRepository) SaveList(ctx context.Context, tenantID string, list *domain.ComplianceList) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO compliance_lists (
			id, tenant_id, code, name, kind, entity_type, created_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		list.ID, tenantID, list.Code, list.Name, list.Kind, list.EntityType,
		list.CreatedAt, list.DeletedAt,
	)
	return err
}

// GetListByCode retrieves an active list by code with tenant isolation.
func (r *SQLRepository) GetListByCode(ctx context.Context, tenantID string, code string) (*domain.ComplianceList, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, code, name, kind, entity_type, created_at, deleted_at
		FROM compliance_lists
		WHERE tenant_id = ? AND code = ? AND deleted_at IS NULL
	`

	list, err := scanList(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return list, err
}

// ListLists returns the tenant's active lists.
func (r *SQLRepository) ListLists(ctx context.Context, tenantID string) ([]*domain.ComplianceList, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, code, name, kind, entity_type, created_at, deleted_at
		FROM compliance_lists
		WHERE tenant_id = ? AND deleted_at IS NULL
		ORDER BY code
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []*domain.ComplianceList
	for rows.Next() {
		list, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	return lists, rows.Err()
}

// DeleteList soft-deletes a list; its entries stop matching immediately.
func (r *SQLRepository) DeleteList(ctx context.Context, tenantID string, code string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE compliance_lists
		SET deleted_at = ?
		WHERE tenant_id = ? AND code = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, code)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveListEntry stores one list entry.
func (r *SQLRepository) SaveListEntry(ctx context.Context, tenantID string, entry *domain.ComplianceListEntry) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	metadata, _ := json.Marshal(entry.Metadata)

	query := `
		INSERT INTO compliance_list_entries (
			id, tenant_id, list_id, value, label, metadata, created_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, tenantID, entry.ListID, entry.Value, entry.Label,
		string(metadata), entry.CreatedAt, entry.DeletedAt,
	)
	return err
}

// DeleteListEntry soft-deletes one entry by value.
func (r *SQLRepository) DeleteListEntry(ctx context.Context, tenantID string, listID string, value string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE compliance_list_entries
		SET deleted_at = ?
		WHERE tenant_id = ? AND list_id = ? AND value = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, listID, value)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// QueryListEntries returns active entries matching value across all
// active lists of the given entity type. Matching is exact and
// case-sensitive.
func (r *SQLRepository) QueryListEntries(ctx context.Context, tenantID string, entityType string, value string) ([]*domain.ListMatch, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT l.code, l.kind, l.entity_type, e.value, e.metadata
		FROM compliance_list_entries e
		JOIN compliance_lists l
		  ON l.id = e.list_id AND l.tenant_id = e.tenant_id
		WHERE e.tenant_id = ?
		  AND l.entity_type = ?
		  AND e.value = ?
		  AND l.deleted_at IS NULL
		  AND e.deleted_at IS NULL
		ORDER BY l.code
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, entityType, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*domain.ListMatch
	for rows.Next() {
		var m domain.ListMatch
		var metadata string
		if err := rows.Scan(&m.ListCode, &m.ListKind, &m.EntityType, &m.Value, &metadata); err != nil {
			return nil, err
		}
		m.Matched = true
		if metadata != "" && metadata != "null" {
			json.Unmarshal([]byte(metadata), &m.EntryMetadata)
		}
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

func scanList(row rowScanner) (*domain.ComplianceList, error) {
	var list domain.ComplianceList
	var deletedAt sql.NullTime

	err := row.Scan(
		&list.ID, &list.TenantID, &list.Code, &list.Name,
		&list.Kind, &list.EntityType, &list.CreatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		list.DeletedAt = &t
	}
	return &list, nil
}
