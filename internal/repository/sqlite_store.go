package repository

import (
	"context"
	"database/sql"

	"github.com/ridwanfathin/receipt-sync-service/internal/database"
	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store on the local SQLite database
type SQLiteStore struct {
	db   *database.SQLiteDB
	q    querier
	inTx bool
}

// NewSQLiteStore creates a store backed by db
func NewSQLiteStore(db *database.SQLiteDB) *SQLiteStore {
	return &SQLiteStore{
		db: db,
		q:  db.DB(),
	}
}

// WithTx runs fn inside one transaction. Nested calls reuse the outer transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	return s.db.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		return fn(&SQLiteStore{db: s.db, q: tx, inTx: true})
	})
}

// Stats summarises the local store
func (s *SQLiteStore) Stats(ctx context.Context) (*domain.StorageStats, error) {
	stats := &domain.StorageStats{}

	err := s.q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN synced = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN local_only = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM receipts
	`, string(domain.StatusSyncFailed)).Scan(
		&stats.TotalReceipts, &stats.SyncedReceipts, &stats.OfflineReceipts, &stats.FailedReceipts,
	)
	if err != nil {
		return nil, &domain.StoreError{Op: "receipt_stats", Err: err}
	}

	err = s.q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM sync_queue
	`, string(domain.OpStatusPending), string(domain.OpStatusFailed)).Scan(
		&stats.PendingOperations, &stats.FailedOperations,
	)
	if err != nil {
		return nil, &domain.StoreError{Op: "queue_stats", Err: err}
	}

	return stats, nil
}

// ClearAll empties every table in one transaction
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	return s.WithTx(ctx, func(tx Store) error {
		q := tx.(*SQLiteStore).q
		for _, table := range []string{"receipts", "images", "sync_queue", "settings"} {
			if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return &domain.StoreError{Op: "clear_" + table, Err: err}
			}
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
