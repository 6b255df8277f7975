package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

// SaveSignatureRule stores a signature rule with tenant isolation.
func (r *SQLRepository) SaveSignatureRule(ctx context.Context, tenantID string, rule *domain.SignatureRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	definition, _ := json.Marshal(rule.Definition)

	query := `
		INSERT INTO signature_rules (
			id, tenant_id, schema_name, faculty, definition, priority, active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Schema, rule.Faculty,
		string(definition), rule.Priority, boolInt(rule.Active), rule.CreatedAt,
	)
	return err
}

// GetSignatureRule retrieves a signature rule by ID.
func (r *SQLRepository) GetSignatureRule(ctx context.Context, tenantID string, id string) (*domain.SignatureRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, schema_name, faculty, definition, priority, active, created_at
		FROM signature_rules
		WHERE tenant_id = ? AND id = ?
	`

	var rule domain.SignatureRule
	var definition string
	var active int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&rule.ID, &rule.TenantID, &rule.Schema, &rule.Faculty,
		&definition, &rule.Priority, &active, &rule.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Active = active == 1
	var node domain.SignatureNode
	if err := json.Unmarshal([]byte(definition), &node); err != nil {
		return nil, fmt.Errorf("failed to parse signature rule definition for %s: %w", rule.ID, err)
	}
	rule.Definition = &node
	return &rule, nil
}

// SaveSignerGroup stores a signer group.
func (r *SQLRepository) SaveSignerGroup(ctx context.Context, tenantID string, group *domain.SignerGroup) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `INSERT INTO signer_groups (id, tenant_id, name) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query), group.ID, tenantID, group.Name)
	return err
}

// SaveSigner stores a signer and its group memberships.
func (r *SQLRepository) SaveSigner(ctx context.Context, tenantID string, signer *domain.Signer) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	groupIDs, _ := json.Marshal(signer.GroupIDs)

	query := `INSERT INTO signers (id, tenant_id, name, group_ids) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query), signer.ID, tenantID, signer.Name, string(groupIDs))
	return err
}

// GetSigner retrieves a signer by ID.
func (r *SQLRepository) GetSigner(ctx context.Context, tenantID string, id string) (*domain.Signer, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `SELECT id, tenant_id, name, group_ids FROM signers WHERE tenant_id = ? AND id = ?`

	var signer domain.Signer
	var groupIDs string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&signer.ID, &signer.TenantID, &signer.Name, &groupIDs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(groupIDs), &signer.GroupIDs)
	return &signer, nil
}

// SaveSignatureRequest stores a signature request.
func (r *SQLRepository) SaveSignatureRequest(ctx context.Context, tenantID string, req *domain.SignatureRequest) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO signature_requests (id, tenant_id, rule_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		req.ID, tenantID, req.RuleID, req.Status, req.CreatedAt, req.UpdatedAt,
	)
	return err
}

// GetSignatureRequest retrieves a signature request by ID.
func (r *SQLRepository) GetSignatureRequest(ctx context.Context, tenantID string, id string) (*domain.SignatureRequest, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, rule_id, status, created_at, updated_at
		FROM signature_requests
		WHERE tenant_id = ? AND id = ?
	`

	var req domain.SignatureRequest
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&req.ID, &req.TenantID, &req.RuleID, &req.Status, &req.CreatedAt, &req.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateSignatureRequest persists a request's status transition.
func (r *SQLRepository) UpdateSignatureRequest(ctx context.Context, tenantID string, req *domain.SignatureRequest) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE signature_requests
		SET status = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), req.Status, req.UpdatedAt, tenantID, req.ID)
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

// SaveSignature stores a signature.
func (r *SQLRepository) SaveSignature(ctx context.Context, tenantID string, sig *domain.Signature) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO signatures (id, tenant_id, request_id, signer_id, status, created_at, signed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		sig.ID, tenantID, sig.RequestID, sig.SignerID, sig.Status, sig.CreatedAt, sig.SignedAt,
	)
	return err
}

// GetSignature retrieves a signature by ID.
func (r *SQLRepository) GetSignature(ctx context.Context, tenantID string, id string) (*domain.Signature, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, request_id, signer_id, status, created_at, signed_at
		FROM signatures
		WHERE tenant_id = ? AND id = ?
	`

	sig, err := scanSignature(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return sig, err
}

// GetSignaturesByRequest returns a request's signatures.
func (r *SQLRepository) GetSignaturesByRequest(ctx context.Context, tenantID string, requestID string) ([]*domain.Signature, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, request_id, signer_id, status, created_at, signed_at
		FROM signatures
		WHERE tenant_id = ? AND request_id = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sigs []*domain.Signature
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// UpdateSignature persists a signature's status transition.
func (r *SQLRepository) UpdateSignature(ctx context.Context, tenantID string, sig *domain.Signature) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE signatures
		SET status = ?, signed_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), sig.Status, sig.SignedAt, tenantID, sig.ID)
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

func scanSignature(row rowScanner) (*domain.Signature, error) {
	var sig domain.Signature
	var signedAt sql.NullTime

	err := row.Scan(
		&sig.ID, &sig.TenantID, &sig.RequestID, &sig.SignerID,
		&sig.Status, &sig.CreatedAt, &signedAt,
	)
	if err != nil {
		return nil, err
	}
	if signedAt.Valid {
		t := signedAt.Time
		sig.SignedAt = &t
	}
	return &sig, nil
}
