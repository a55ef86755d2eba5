package auth

import (
	"context"
	"database/sql"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// OpenDB opens a SQLite-backed bun handle. Pass ":memory:" for tests.
func OpenDB(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to open database")
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT DEFAULT '',
		username TEXT DEFAULT '',
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT DEFAULT '',
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		picture TEXT DEFAULT '',
		set_password BOOLEAN NOT NULL DEFAULT FALSE,
		set_username BOOLEAN NOT NULL DEFAULT FALSE,
		token TEXT NOT NULL,
		auth TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS google_users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT DEFAULT '',
		nickname TEXT DEFAULT '',
		email TEXT NOT NULL UNIQUE,
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		picture TEXT DEFAULT '',
		sub TEXT NOT NULL,
		google_token TEXT DEFAULT '',
		token TEXT NOT NULL,
		auth TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		data TEXT NOT NULL DEFAULT '',
		session_end BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS otps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL,
		code TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		is_expired BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_open ON sessions (user_id, session_end)`,
	`CREATE INDEX IF NOT EXISTS idx_otps_user ON otps (user_id)`,
}

// isUniqueViolation matches the SQLite unique-index error text. The
// availability prechecks race with concurrent inserts; this is the backstop
// that tells a lost race apart from a storage fault.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateSchema bootstraps the four tables. Intended for SQLite deployments
// and tests; production stores should run managed migrations instead.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, errors.CategoryOperation, "failed to create schema")
		}
	}
	return nil
}
