package sqldb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Platform abstracts the SQL dialect differences the store depends on. All
// queries are written with ? placeholders and rebound through sqlx for the
// platform's driver, so a platform only has to supply the schema, the date
// truncation expression, the key-return strategy and duplicate-key detection.
type Platform interface {
	// DriverName is the database/sql driver name, used by sqlx to pick
	// the placeholder bind type.
	DriverName() string

	// Schema returns the DDL statements creating the store's tables and
	// indexes. Statements must be idempotent.
	Schema(o *options) []string

	// DateExpr wraps a timestamp column in the platform's day-truncation
	// expression for date-only comparison.
	DateExpr(column string) string

	// SupportsReturning reports whether INSERT ... RETURNING is available
	// for reading back generated keys. Platforms without it fall back to
	// LastInsertId.
	SupportsReturning() bool

	// IsDuplicate reports whether the error is a unique-constraint
	// violation.
	IsDuplicate(err error) bool
}

// PostgresPlatform is the PostgreSQL dialect, the production default.
type PostgresPlatform struct{}

func (PostgresPlatform) DriverName() string { return "postgres" }

func (PostgresPlatform) Schema(o *options) []string {
	return []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				msg_no BIGSERIAL PRIMARY KEY,
				account_id INTEGER,
				direction VARCHAR(8) NOT NULL,
				received TIMESTAMPTZ NOT NULL,
				delivered TIMESTAMPTZ,
				sender VARCHAR(64) NOT NULL,
				receiver VARCHAR(64) NOT NULL,
				channel VARCHAR(128) NOT NULL,
				document_id VARCHAR(256) NOT NULL,
				process_id VARCHAR(128),
				reception_id VARCHAR(64),
				transmission_id VARCHAR(128),
				instance_id VARCHAR(128),
				remote_host VARCHAR(128),
				payload_url VARCHAR(256),
				evidence_url VARCHAR(256)
			)
		`, o.messageTable),
		// COALESCE keeps unattributed rows (NULL account_id, distinct
		// under a plain unique index) in one dedup scope.
		fmt.Sprintf(`
			CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_reception
			ON %s(COALESCE(account_id, 0), direction, reception_id)
			WHERE reception_id IS NOT NULL
		`, o.messageTable, o.messageTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_account ON %s(account_id, direction, delivered)`, o.messageTable, o.messageTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_received ON %s(received)`, o.messageTable, o.messageTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				msg_no BIGINT NOT NULL UNIQUE,
				state VARCHAR(16) NOT NULL DEFAULT 'QUEUED'
			)
		`, o.queueTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				queue_id BIGINT NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				details TEXT NOT NULL DEFAULT '',
				stacktrace TEXT NOT NULL DEFAULT '',
				create_dt TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`, o.queueErrorTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY,
				name VARCHAR(128) NOT NULL DEFAULT '',
				contact_email VARCHAR(128) NOT NULL DEFAULT ''
			)
		`, o.accountTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				account_id INTEGER NOT NULL,
				participant_id VARCHAR(64) NOT NULL,
				PRIMARY KEY (account_id, participant_id)
			)
		`, o.receiverTable),
	}
}

func (PostgresPlatform) DateExpr(column string) string {
	return fmt.Sprintf("date_trunc('day', %s)", column)
}

func (PostgresPlatform) SupportsReturning() bool { return true }

func (PostgresPlatform) IsDuplicate(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" // unique_violation
}

// MySQLPlatform is the MySQL dialect. The reception dedup index uses a
// functional key part and needs MySQL 8.0.13 or later.
type MySQLPlatform struct{}

func (MySQLPlatform) DriverName() string { return "mysql" }

func (MySQLPlatform) Schema(o *options) []string {
	return []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				msg_no BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				account_id INTEGER,
				direction VARCHAR(8) NOT NULL,
				received DATETIME NOT NULL,
				delivered DATETIME,
				sender VARCHAR(64) NOT NULL,
				receiver VARCHAR(64) NOT NULL,
				channel VARCHAR(128) NOT NULL,
				document_id VARCHAR(256) NOT NULL,
				process_id VARCHAR(128),
				reception_id VARCHAR(64),
				transmission_id VARCHAR(128),
				instance_id VARCHAR(128),
				remote_host VARCHAR(128),
				payload_url VARCHAR(256),
				evidence_url VARCHAR(256),
				UNIQUE KEY idx_reception ((COALESCE(account_id, 0)), direction, reception_id),
				KEY idx_account (account_id, direction, delivered),
				KEY idx_received (received)
			)
		`, o.messageTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				msg_no BIGINT NOT NULL UNIQUE,
				state VARCHAR(16) NOT NULL DEFAULT 'QUEUED'
			)
		`, o.queueTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				queue_id BIGINT NOT NULL,
				message TEXT,
				details TEXT,
				stacktrace TEXT,
				create_dt DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
		`, o.queueErrorTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY,
				name VARCHAR(128) NOT NULL DEFAULT '',
				contact_email VARCHAR(128) NOT NULL DEFAULT ''
			)
		`, o.accountTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				account_id INTEGER NOT NULL,
				participant_id VARCHAR(64) NOT NULL,
				PRIMARY KEY (account_id, participant_id)
			)
		`, o.receiverTable),
	}
}

func (MySQLPlatform) DateExpr(column string) string {
	return fmt.Sprintf("DATE(%s)", column)
}

func (MySQLPlatform) SupportsReturning() bool { return false }

func (MySQLPlatform) IsDuplicate(err error) bool {
	// Error 1062: ER_DUP_ENTRY. Matched on the message to avoid a hard
	// dependency on the mysql driver package.
	return err != nil && strings.Contains(err.Error(), "Error 1062")
}
