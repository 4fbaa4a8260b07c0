// Package ledger records which generated schema-change statements have been
// applied, in a local SQLite database.
//
// ClickHouse ALTER statements for property groups are not idempotent (ADD
// COLUMN fails if the column exists), so the migration runner consults the
// ledger before executing each statement and records it after success.
//
// # Identity
//
// A statement is identified by StatementID: SHA-256 over the migration name,
// the statement's ordinal within the migration and its NFC-normalized text,
// with domain separation. Regenerating a migration whose output changed
// therefore yields new IDs instead of silently matching old entries.
//
// # Ordering
//
// Entries carry a seq assigned by SQLite (INTEGER PRIMARY KEY). All reads
// ORDER BY seq ASC so listings are stable.
//
// # Database Configuration
//
//   - WAL mode
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - schema version tracked with PRAGMA user_version
package ledger
