package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the version of the local schema, reported in exports
const SchemaVersion = 1

// DatabaseFile is the file name of the local store inside the data directory
const DatabaseFile = "receipts.db"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS receipts (
		id         TEXT PRIMARY KEY,
		date       TEXT NOT NULL,
		company    TEXT NOT NULL DEFAULT '',
		item       TEXT NOT NULL DEFAULT '',
		price      INTEGER NOT NULL DEFAULT 0,
		timestamp  INTEGER NOT NULL,
		status     TEXT NOT NULL,
		synced     INTEGER NOT NULL DEFAULT 0,
		local_only INTEGER NOT NULL DEFAULT 0,
		remote_id  TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_date ON receipts(date)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_status ON receipts(status)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_timestamp ON receipts(timestamp)`,
	`CREATE TABLE IF NOT EXISTS images (
		id         TEXT PRIMARY KEY,
		receipt_id TEXT NOT NULL UNIQUE,
		data       TEXT NOT NULL,
		mime_type  TEXT NOT NULL,
		size       INTEGER NOT NULL,
		timestamp  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		type         TEXT NOT NULL,
		receipt_id   TEXT NOT NULL,
		data         TEXT NOT NULL,
		attempts     INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 3,
		status       TEXT NOT NULL DEFAULT 'pending',
		last_error   TEXT NOT NULL DEFAULT '',
		timestamp    INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_timestamp ON sync_queue(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_type ON sync_queue(type)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

// SQLiteDB manages the local store connection
type SQLiteDB struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (and creates if needed) the local store in dataDir
func OpenSQLite(ctx context.Context, dataDir string) (*SQLiteDB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; pragmas below are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteDB{db: db, path: dbPath}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate creates the local tables and indexes
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	return s.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return nil
	})
}

// DB returns the underlying handle for direct use
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

// Path returns the database file path
func (s *SQLiteDB) Path() string {
	return s.path
}

// Close closes the database
func (s *SQLiteDB) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ExecuteTransaction executes txFunc inside one transaction, rolling back on error
func (s *SQLiteDB) ExecuteTransaction(ctx context.Context, txFunc func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := txFunc(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
