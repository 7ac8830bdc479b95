// Package export materializes a repository's object graph into SQLite for
// ad-hoc SQL.
//
// The database is a read-only consumer of the object store:
//   - objects: one row per verified object, body is the canonical JSON
//   - edges: every outgoing reference (src, field, dst)
//   - impacts: impact tags of intents and constraints
//   - streams: stream names, tips and which one HEAD selects
//   - corrupted: entries the scan could not verify
package export

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// formatVersion is stamped into user_version. Snapshot rewrites every row,
// so a database in another format is refused rather than migrated.
const formatVersion = 1

// pragmas are applied on every Open. A snapshot is rebuilt from the object
// store at will, so NORMAL sync is enough.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// Store is an export database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the export database at path. Opening an existing
// export of the same format is harmless.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("export: open %s: %w", path, err)
	}
	// One connection: pragmas are per connection and Snapshot is the only
	// writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("export: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func prepare(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read format version: %w", err)
	}
	if version != 0 && version != formatVersion {
		return fmt.Errorf("database has export format %d, want %d; remove it and export again", version, formatVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", formatVersion)); err != nil {
		return fmt.Errorf("stamp format version: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// pragma returns the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	err := s.db.QueryRow("PRAGMA " + name).Scan(&value)
	return value, err
}
