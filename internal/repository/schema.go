package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL. Monetary columns are TEXT:
// amounts round-trip through exact decimal strings, never floats.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    type TEXT NOT NULL,
    sub_type TEXT,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    base_amount TEXT NOT NULL,
    base_currency TEXT,
    counterparty_id TEXT,
    country TEXT,
    channel TEXT,
    asset TEXT,
    quantity TEXT,
    price TEXT,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    voided INTEGER NOT NULL DEFAULT 0,
    blocked INTEGER NOT NULL DEFAULT 0,
    deleted INTEGER NOT NULL DEFAULT 0,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_account_ts ON transactions(tenant_id, account_id, timestamp);
`

const schemaRuleVersions = `
CREATE TABLE IF NOT EXISTS rule_versions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    template_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    conditions TEXT,
    expression TEXT,
    actions TEXT NOT NULL,
    window_spec TEXT,
    priority INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    activated_at TIMESTAMP NOT NULL,
    deactivated_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_rule_versions_template ON rule_versions(tenant_id, template_id, version);
CREATE INDEX IF NOT EXISTS idx_rule_versions_active ON rule_versions(tenant_id, enabled, activated_at);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    rule_version_id TEXT NOT NULL,
    severity TEXT NOT NULL,
    category TEXT,
    message TEXT,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_tenant ON alerts(tenant_id);
CREATE INDEX IF NOT EXISTS idx_alerts_tx ON alerts(tenant_id, tx_id);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(tenant_id, status);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    decision TEXT NOT NULL,
    triggered_rule_ids TEXT NOT NULL,
    alert_ids TEXT NOT NULL,
    partial INTEGER NOT NULL DEFAULT 0,
    timestamp TIMESTAMP NOT NULL,
    rule_results TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_tenant ON evaluations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_tx ON evaluations(tenant_id, tx_id);
`

const schemaComplianceLists = `
CREATE TABLE IF NOT EXISTS compliance_lists (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    code TEXT NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    deleted_at TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_lists_code ON compliance_lists(tenant_id, code) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_lists_entity ON compliance_lists(tenant_id, entity_type);
`

const schemaComplianceListEntries = `
CREATE TABLE IF NOT EXISTS compliance_list_entries (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    list_id TEXT NOT NULL,
    value TEXT NOT NULL,
    label TEXT,
    metadata TEXT,
    created_at TIMESTAMP NOT NULL,
    deleted_at TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_list_entries_value ON compliance_list_entries(tenant_id, list_id, value) WHERE deleted_at IS NULL;
`

const schemaSignatureRules = `
CREATE TABLE IF NOT EXISTS signature_rules (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    schema_name TEXT NOT NULL,
    faculty TEXT NOT NULL,
    definition TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signature_rules_scope ON signature_rules(tenant_id, schema_name, faculty);
`

const schemaSigners = `
CREATE TABLE IF NOT EXISTS signer_groups (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signer_groups_tenant ON signer_groups(tenant_id);

CREATE TABLE IF NOT EXISTS signers (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    group_ids TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signers_tenant ON signers(tenant_id);
`

const schemaSignatureRequests = `
CREATE TABLE IF NOT EXISTS signature_requests (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signature_requests_tenant ON signature_requests(tenant_id);

CREATE TABLE IF NOT EXISTS signatures (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    request_id TEXT NOT NULL,
    signer_id TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    signed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_signatures_request ON signatures(tenant_id, request_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaRuleVersions,
		schemaAlerts,
		schemaEvaluations,
		schemaComplianceLists,
		schemaComplianceListEntries,
		schemaSignatureRules,
		schemaSigners,
		schemaSignatureRequests,
	}
}
