// Package sqlstore implements the ranch tables and local accounts on
// database/sql.
//
// Two drivers are supported:
//   - "sqlite" (modernc.org/sqlite, pure Go) for local and single-host
//     deployments; ":memory:" works for tests.
//   - "pgx" (github.com/jackc/pgx/v5/stdlib) for a hosted Postgres.
//
// Queries are written once with `?` placeholders and rebound to `$n` for
// Postgres. The schema is applied on open with CREATE ... IF NOT EXISTS,
// so opening an existing database is safe.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// DefaultAvailableStalls seeds the settings row of a new database.
const DefaultAvailableStalls = 14

// DB wraps a sql.DB connection pool and implements both
// remote.TableStore and repository.UserRepository.
type DB struct {
	conn   *sql.DB
	driver string
}

// New opens a SQLite database at dbPath.
func New(dbPath string) (*DB, error) {
	return Open(DriverSQLite, dbPath)
}

// Open connects with the given driver, applies driver pragmas and runs
// migrations.
func Open(driver, dsn string) (*DB, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening database: %w", err)
	}

	// Ping forces a real connection so a bad DSN fails here, not on the
	// first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: pinging database: %w", err)
	}

	if driver == DriverSQLite {
		// Every pooled connection to ":memory:" is a separate database.
		if dsn == ":memory:" {
			conn.SetMaxOpenConns(1)
		}
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
			if _, err := conn.Exec(pragma); err != nil {
				conn.Close()
				return nil, fmt.Errorf("sqlstore: %s: %w", pragma, err)
			}
		}
	}

	db := &DB{conn: conn, driver: driver}
	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable, for health checks.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Driver reports the driver the database was opened with.
func (db *DB) Driver() string { return db.driver }

// rebind rewrites `?` placeholders as `$1, $2, ...` for Postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (db *DB) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if db.driver == DriverPostgres {
		schema = postgresSchema
	}

	for i, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}

	// Seed the single settings row once.
	_, err := db.conn.ExecContext(ctx, db.rebind(
		`INSERT INTO settings (id, available_stalls)
		 SELECT 1, ? WHERE NOT EXISTS (SELECT 1 FROM settings WHERE id = 1)`),
		DefaultAvailableStalls,
	)
	if err != nil {
		return fmt.Errorf("seeding settings: %w", err)
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		verified      BOOLEAN NOT NULL DEFAULT 0,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		id           TEXT PRIMARY KEY,
		email        TEXT NOT NULL DEFAULT '',
		uses_wifi    BOOLEAN NOT NULL DEFAULT 0,
		uses_trailer BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS horses (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id           TEXT NOT NULL,
		name              TEXT NOT NULL DEFAULT '',
		owners            TEXT NOT NULL DEFAULT '',
		owner_contact     TEXT NOT NULL DEFAULT '',
		emergency_contact TEXT NOT NULL DEFAULT '',
		vet_contact       TEXT NOT NULL DEFAULT '',
		stall_number      INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_horses_user_id ON horses(user_id)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id               INTEGER PRIMARY KEY,
		available_stalls INTEGER NOT NULL
	)`,
	`CREATE VIEW IF NOT EXISTS wifi_subscribers AS
		SELECT id AS user_id FROM user_profiles WHERE uses_wifi = 1`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		verified      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		id           TEXT PRIMARY KEY,
		email        TEXT NOT NULL DEFAULT '',
		uses_wifi    BOOLEAN NOT NULL DEFAULT FALSE,
		uses_trailer BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS horses (
		id                BIGSERIAL PRIMARY KEY,
		user_id           TEXT NOT NULL,
		name              TEXT NOT NULL DEFAULT '',
		owners            TEXT NOT NULL DEFAULT '',
		owner_contact     TEXT NOT NULL DEFAULT '',
		emergency_contact TEXT NOT NULL DEFAULT '',
		vet_contact       TEXT NOT NULL DEFAULT '',
		stall_number      INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_horses_user_id ON horses(user_id)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id               INTEGER PRIMARY KEY,
		available_stalls INTEGER NOT NULL
	)`,
	`CREATE OR REPLACE VIEW wifi_subscribers AS
		SELECT id AS user_id FROM user_profiles WHERE uses_wifi`,
}
