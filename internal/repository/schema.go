package repository

import "fmt"

// Schema definitions for the Lendguard database.
// Column types that differ between SQLite and PostgreSQL are filled in by
// columnTypes; everything else is shared.

const schemaAuditLog = `
CREATE TABLE IF NOT EXISTS audit_log (
    log_id %[1]s,
    operator TEXT NOT NULL,
    operation TEXT NOT NULL,
    error_info TEXT,
    exception_info TEXT,
    is_warning INTEGER NOT NULL DEFAULT 0,
    is_done INTEGER NOT NULL DEFAULT 0,
    warning_type TEXT NOT NULL DEFAULT '',
    created_at %[2]s NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_log_pending ON audit_log(is_done, is_warning);
`

const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    rule_id %[1]s,
    log_id BIGINT REFERENCES audit_log(log_id) ON DELETE SET NULL,
    name TEXT NOT NULL,
    expression TEXT NOT NULL,
    is_external INTEGER NOT NULL DEFAULT 0,
    priority TEXT NOT NULL DEFAULT 'medium' CHECK (priority IN ('low', 'medium', 'high')),
    enabled INTEGER NOT NULL DEFAULT 1,
    creator TEXT NOT NULL,
    created_at %[2]s NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rules_active ON rules(enabled, priority, created_at);
CREATE INDEX IF NOT EXISTS idx_rules_expression ON rules(expression);
`

// name_list.rule_id is RESTRICT: a rule that produced entries cannot be
// deleted until the entries are.
const schemaNameList = `
CREATE TABLE IF NOT EXISTS name_list (
    id %[1]s,
    rule_id BIGINT NOT NULL REFERENCES rules(rule_id) ON DELETE RESTRICT,
    log_id BIGINT REFERENCES audit_log(log_id) ON DELETE SET NULL,
    risk_level INTEGER NOT NULL CHECK (risk_level BETWEEN 1 AND 5),
    list_type INTEGER NOT NULL,
    business_line INTEGER NOT NULL,
    risk_label INTEGER NOT NULL,
    risk_domain INTEGER NOT NULL,
    value TEXT NOT NULL,
    value_type INTEGER NOT NULL,
    creator TEXT NOT NULL,
    created_at %[2]s NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_name_list_value ON name_list(value, value_type);
CREATE INDEX IF NOT EXISTS idx_name_list_rule ON name_list(rule_id);
CREATE INDEX IF NOT EXISTS idx_name_list_created ON name_list(created_at);
`

// columnTypes returns the identity column and timestamp types for a driver.
func columnTypes(driver string) (id, ts string) {
	if driver == "postgres" {
		return "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT", "TIMESTAMP"
}

// AllSchemas returns all schema statements for driver in dependency order.
func AllSchemas(driver string) []string {
	id, ts := columnTypes(driver)
	return []string{
		fmt.Sprintf(schemaAuditLog, id, ts),
		fmt.Sprintf(schemaRules, id, ts),
		fmt.Sprintf(schemaNameList, id, ts),
	}
}
