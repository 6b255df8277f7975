// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// SQLRepository implements domain.Store using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new store based on configuration.
func New(cfg domain.StoreConfig) (domain.Store, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction with tenant isolation.
// Transactions are append-only; there is no update path.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	metadata, _ := json.Marshal(tx.Metadata)

	query := `
		INSERT INTO transactions (
			id, tenant_id, account_id, type, sub_type,
			amount, currency, base_amount, base_currency,
			counterparty_id, country, channel, asset, quantity, price,
			timestamp, created_at, voided, blocked, deleted, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.AccountID, tx.Type, tx.SubType,
		tx.Amount.String(), tx.Currency, tx.BaseAmount.String(), tx.BaseCurrency,
		tx.CounterpartyID, tx.Country, tx.Channel, tx.Asset,
		tx.Quantity.String(), tx.Price.String(),
		tx.Timestamp, tx.CreatedAt,
		boolInt(tx.Voided), boolInt(tx.Blocked), boolInt(tx.Deleted),
		string(metadata),
	)
	return err
}

const transactionColumns = `id, tenant_id, account_id, type, sub_type,
		amount, currency, base_amount, base_currency,
		counterparty_id, country, channel, asset, quantity, price,
		timestamp, created_at, voided, blocked, deleted, metadata`

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tenant_id = ? AND id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return tx, err
}

// QueryTransactions returns the account's transactions in [from, to),
// ordered by timestamp ascending.
func (r *SQLRepository) QueryTransactions(ctx context.Context, tenantID string, accountID string, from, to time.Time) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE tenant_id = ? AND account_id = ?
		  AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amount, baseAmount, quantity, price, metadata string
	var voided, blocked, deleted int

	err := row.Scan(
		&tx.ID, &tx.TenantID, &tx.AccountID, &tx.Type, &tx.SubType,
		&amount, &tx.Currency, &baseAmount, &tx.BaseCurrency,
		&tx.CounterpartyID, &tx.Country, &tx.Channel, &tx.Asset, &quantity, &price,
		&tx.Timestamp, &tx.CreatedAt, &voided, &blocked, &deleted, &metadata,
	)
	if err != nil {
		return nil, err
	}

	tx.Amount = parseDecimal(amount)
	tx.BaseAmount = parseDecimal(baseAmount)
	tx.Quantity = parseDecimal(quantity)
	tx.Price = parseDecimal(price)
	tx.Voided = voided == 1
	tx.Blocked = blocked == 1
	tx.Deleted = deleted == 1
	if metadata != "" && metadata != "null" {
		json.Unmarshal([]byte(metadata), &tx.Metadata)
	}
	return &tx, nil
}

// SaveRuleVersion stores an immutable rule version.
func (r *SQLRepository) SaveRuleVersion(ctx context.Context, tenantID string, rv *domain.RuleVersion) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	var conditions []byte
	if rv.Conditions != nil {
		conditions, _ = json.Marshal(rv.Conditions)
	}
	actions, _ := json.Marshal(rv.Actions)
	var windowSpec []byte
	if rv.Window != nil {
		windowSpec, _ = json.Marshal(rv.Window)
	}

	query := `
		INSERT INTO rule_versions (
			id, tenant_id, template_id, version, name, description,
			conditions, expression, actions, window_spec,
			priority, enabled, activated_at, deactivated_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rv.ID, tenantID, rv.TemplateID, rv.Version, rv.Name, rv.Description,
		string(conditions), rv.Expression, string(actions), string(windowSpec),
		rv.Priority, boolInt(rv.Enabled), rv.ActivatedAt, rv.DeactivatedAt, rv.CreatedAt,
	)
	return err
}

const ruleVersionColumns = `id, tenant_id, template_id, version, name, description,
		conditions, expression, actions, window_spec,
		priority, enabled, activated_at, deactivated_at, created_at`

// GetRuleVersion retrieves one rule version with tenant isolation.
func (r *SQLRepository) GetRuleVersion(ctx context.Context, tenantID string, id string) (*domain.RuleVersion, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `SELECT ` + ruleVersionColumns + ` FROM rule_versions WHERE tenant_id = ? AND id = ?`

	rv, err := scanRuleVersion(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rv, err
}

// ListRuleVersions returns all versions of a template, newest first.
func (r *SQLRepository) ListRuleVersions(ctx context.Context, tenantID string, templateID string) ([]*domain.RuleVersion, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT ` + ruleVersionColumns + `
		FROM rule_versions
		WHERE tenant_id = ? AND template_id = ?
		ORDER BY version DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*domain.RuleVersion
	for rows.Next() {
		rv, err := scanRuleVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, rv)
	}
	return versions, rows.Err()
}

// GetActiveRuleVersions returns versions active at asOf, priority descending.
func (r *SQLRepository) GetActiveRuleVersions(ctx context.Context, tenantID string, asOf time.Time) ([]*domain.RuleVersion, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT ` + ruleVersionColumns + `
		FROM rule_versions
		WHERE tenant_id = ? AND enabled = 1
		  AND activated_at <= ?
		  AND (deactivated_at IS NULL OR deactivated_at > ?)
		ORDER BY priority DESC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, asOf, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*domain.RuleVersion
	for rows.Next() {
		rv, err := scanRuleVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, rv)
	}
	return versions, rows.Err()
}

// DeactivateRuleVersion closes a version's activation interval.
func (r *SQLRepository) DeactivateRuleVersion(ctx context.Context, tenantID string, id string, at time.Time) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE rule_versions
		SET deactivated_at = ?
		WHERE tenant_id = ? AND id = ? AND deactivated_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), at, tenantID, id)
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

func scanRuleVersion(row rowScanner) (*domain.RuleVersion, error) {
	var rv domain.RuleVersion
	var conditions, expression, actions, windowSpec string
	var enabled int
	var deactivatedAt sql.NullTime

	err := row.Scan(
		&rv.ID, &rv.TenantID, &rv.TemplateID, &rv.Version, &rv.Name, &rv.Description,
		&conditions, &expression, &actions, &windowSpec,
		&rv.Priority, &enabled, &rv.ActivatedAt, &deactivatedAt, &rv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rv.Expression = expression
	rv.Enabled = enabled == 1
	if deactivatedAt.Valid {
		t := deactivatedAt.Time
		rv.DeactivatedAt = &t
	}
	if conditions != "" {
		var c domain.Condition
		if err := json.Unmarshal([]byte(conditions), &c); err != nil {
			return nil, fmt.Errorf("failed to parse rule conditions for %s: %w", rv.ID, err)
		}
		rv.Conditions = &c
	}
	if err := json.Unmarshal([]byte(actions), &rv.Actions); err != nil {
		return nil, fmt.Errorf("failed to parse rule actions for %s: %w", rv.ID, err)
	}
	if windowSpec != "" {
		var w domain.Window
		if err := json.Unmarshal([]byte(windowSpec), &w); err != nil {
			return nil, fmt.Errorf("failed to parse rule window for %s: %w", rv.ID, err)
		}
		rv.Window = &w
	}
	return &rv, nil
}

// InsertAlert stores an alert and returns its ID.
func (r *SQLRepository) InsertAlert(ctx context.Context, tenantID string, alert *domain.Alert) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO alerts (
			id, tenant_id, tx_id, rule_version_id,
			severity, category, message, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, tenantID, alert.TxID, alert.RuleVersionID,
		alert.Severity, alert.Category, alert.Message, alert.Status,
		alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return "", err
	}
	return alert.ID, nil
}

// GetAlert retrieves an alert by ID with tenant isolation.
func (r *SQLRepository) GetAlert(ctx context.Context, tenantID string, alertID string) (*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, tx_id, rule_version_id,
			   severity, category, message, status, created_at, updated_at
		FROM alerts
		WHERE tenant_id = ? AND id = ?
	`

	var alert domain.Alert
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, alertID).Scan(
		&alert.ID, &alert.TenantID, &alert.TxID, &alert.RuleVersionID,
		&alert.Severity, &alert.Category, &alert.Message, &alert.Status,
		&alert.CreatedAt, &alert.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// UpdateAlertStatus persists an alert's status transition.
func (r *SQLRepository) UpdateAlertStatus(ctx context.Context, tenantID string, alert *domain.Alert) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE alerts
		SET status = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), alert.Status, alert.UpdatedAt, tenantID, alert.ID)
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

// SaveEvaluation stores an evaluation result with tenant isolation.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	triggered, _ := json.Marshal(eval.TriggeredRuleIDs)
	alertIDs, _ := json.Marshal(eval.AlertIDs)
	ruleResults, _ := json.Marshal(eval.RuleResults)
	metadata, _ := json.Marshal(eval.Metadata)

	query := `
		INSERT INTO evaluations (
			id, tenant_id, tx_id, decision, triggered_rule_ids, alert_ids,
			partial, timestamp, rule_results, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, tenantID, eval.TxID, eval.Decision,
		string(triggered), string(alertIDs),
		boolInt(eval.Partial), eval.Timestamp,
		string(ruleResults), string(metadata),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID with tenant isolation.
func (r *SQLRepository) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.Evaluation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, tx_id, decision, triggered_rule_ids, alert_ids,
			   partial, timestamp, rule_results, metadata
		FROM evaluations
		WHERE tenant_id = ? AND id = ?
	`

	var eval domain.Evaluation
	var triggered, alertIDs, ruleResults, metadata string
	var partial int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, evalID).Scan(
		&eval.ID, &eval.TenantID, &eval.TxID, &eval.Decision,
		&triggered, &alertIDs, &partial, &eval.Timestamp,
		&ruleResults, &metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	eval.Partial = partial == 1
	json.Unmarshal([]byte(triggered), &eval.TriggeredRuleIDs)
	json.Unmarshal([]byte(alertIDs), &eval.AlertIDs)
	json.Unmarshal([]byte(ruleResults), &eval.RuleResults)
	json.Unmarshal([]byte(metadata), &eval.Metadata)
	return &eval, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
