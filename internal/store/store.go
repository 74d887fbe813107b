package store

import (
	_ "embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragmas are applied to every connection the store opens.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// migration upgrades the schema to version.
type migration struct {
	version int
	stmt    string
}

// migrations run in order against databases whose user_version is below
// their version. Version 0 is the bare schema.sql layout.
var migrations = []migration{
	// Siblings of a grouped alert are loaded by (group_key, date).
	{1, `CREATE INDEX IF NOT EXISTS idx_mappings_group_date
		ON notification_mappings(group_key, date)`},
	// Check-in rows carry NULL medication and schedule ids, which the
	// table-level UNIQUE constraint treats as distinct.
	{2, `CREATE UNIQUE INDEX IF NOT EXISTS idx_mappings_checkin_date
		ON notification_mappings(date) WHERE source_type = 'daily_checkin'`},
}

// schemaVersion is the user_version of a fully migrated database.
var schemaVersion = migrations[len(migrations)-1].version

// Store is the durable Mapping Store, a single-connection SQLite database.
type Store struct {
	db *sqlx.DB
}

// Open creates or opens the SQLite database at path (":memory:" for a
// private in-memory one) and brings its schema up to date.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// One connection: SQLite has a single writer, and each :memory:
	// connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initialize(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initialize(db *sqlx.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return migrate(db)
}

// migrate applies every migration newer than the stored user_version.
func migrate(db *sqlx.DB) error {
	var version int
	if err := db.Get(&version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
	}

	if version < schemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
