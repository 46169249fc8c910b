package repository

// Schema definitions for the fraud scoring audit store.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    elapsed_secs REAL NOT NULL,
    signals TEXT NOT NULL,
    amount REAL NOT NULL,
    received_at TIMESTAMP NOT NULL,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_received ON transactions(tenant_id, received_at);
`

const schemaScorings = `
CREATE TABLE IF NOT EXISTS scorings (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    score REAL NOT NULL,
    tier TEXT NOT NULL,
    action TEXT NOT NULL,
    components TEXT NOT NULL,
    decision TEXT NOT NULL,
    attribution TEXT,
    timings TEXT NOT NULL,
    model_version TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scorings_tenant ON scorings(tenant_id);
CREATE INDEX IF NOT EXISTS idx_scorings_tx ON scorings(tenant_id, tx_id);
CREATE INDEX IF NOT EXISTS idx_scorings_tier ON scorings(tenant_id, tier);
CREATE INDEX IF NOT EXISTS idx_scorings_created ON scorings(tenant_id, created_at);
`

const schemaOverrideRules = `
CREATE TABLE IF NOT EXISTS override_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    tier TEXT NOT NULL,
    action TEXT NOT NULL,
    reason TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_override_rules_tenant ON override_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_override_rules_enabled ON override_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaScorings,
		schemaOverrideRules,
	}
}
