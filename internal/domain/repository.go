// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Store defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation; reads
// are point-in-time consistent as of the supplied timestamp.
type Store interface {
	// Transaction operations. Transactions are append-only.
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*Transaction, error)
	// QueryTransactions returns the account's transactions in [from, to),
	// ordered by timestamp ascending.
	QueryTransactions(ctx context.Context, tenantID string, accountID string, from, to time.Time) ([]*Transaction, error)

	// Rule version operations. Versions are immutable once created.
	SaveRuleVersion(ctx context.Context, tenantID string, rv *RuleVersion) error
	GetRuleVersion(ctx context.Context, tenantID string, id string) (*RuleVersion, error)
	ListRuleVersions(ctx context.Context, tenantID string, templateID string) ([]*RuleVersion, error)
	// GetActiveRuleVersions returns versions active at asOf, priority descending.
	GetActiveRuleVersions(ctx context.Context, tenantID string, asOf time.Time) ([]*RuleVersion, error)
	DeactivateRuleVersion(ctx context.Context, tenantID string, id string, at time.Time) error

	// Alert operations
	InsertAlert(ctx context.Context, tenantID string, alert *Alert) (string, error)
	GetAlert(ctx context.Context, tenantID string, alertID string) (*Alert, error)
	UpdateAlertStatus(ctx context.Context, tenantID string, alert *Alert) error

	// Evaluation results
	SaveEvaluation(ctx context.Context, tenantID string, eval *Evaluation) error
	GetEvaluation(ctx context.Context, tenantID string, evalID string) (*Evaluation, error)

	// Compliance list operations. Deletes are soft.
	SaveList(ctx context.Context, tenantID string, list *ComplianceList) error
	GetListByCode(ctx context.Context, tenantID string, code string) (*ComplianceList, error)
	ListLists(ctx context.Context, tenantID string) ([]*ComplianceList, error)
	DeleteList(ctx context.Context, tenantID string, code string) error
	SaveListEntry(ctx context.Context, tenantID string, entry *ComplianceListEntry) error
	DeleteListEntry(ctx context.Context, tenantID string, listID string, value string) error
	// QueryListEntries returns active entries matching value across all
	// active lists of the given entity type.
	QueryListEntries(ctx context.Context, tenantID string, entityType string, value string) ([]*ListMatch, error)

	// Signature authorization operations
	SaveSignatureRule(ctx context.Context, tenantID string, rule *SignatureRule) error
	GetSignatureRule(ctx context.Context, tenantID string, id string) (*SignatureRule, error)
	SaveSignerGroup(ctx context.Context, tenantID string, group *SignerGroup) error
	SaveSigner(ctx context.Context, tenantID string, signer *Signer) error
	GetSigner(ctx context.Context, tenantID string, id string) (*Signer, error)
	SaveSignatureRequest(ctx context.Context, tenantID string, req *SignatureRequest) error
	GetSignatureRequest(ctx context.Context, tenantID string, id string) (*SignatureRequest, error)
	UpdateSignatureRequest(ctx context.Context, tenantID string, req *SignatureRequest) error
	SaveSignature(ctx context.Context, tenantID string, sig *Signature) error
	GetSignature(ctx context.Context, tenantID string, id string) (*Signature, error)
	GetSignaturesByRequest(ctx context.Context, tenantID string, requestID string) ([]*Signature, error)
	UpdateSignature(ctx context.Context, tenantID string, sig *Signature) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// StoreConfig holds configuration for store initialization.
type StoreConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
