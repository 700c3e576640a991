package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

const operationColumns = `id, type, receipt_id, data, attempts, max_attempts, status, last_error, timestamp`

// Enqueue appends an operation to the persisted sync queue
func (s *SQLiteStore) Enqueue(ctx context.Context, op *domain.PendingOperation) error {
	if op.MaxAttempts <= 0 {
		op.MaxAttempts = domain.DefaultMaxAttempts
	}
	if op.Status == "" {
		op.Status = domain.OpStatusPending
	}
	payload := string(op.Payload)
	if payload == "" {
		payload = "null"
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO sync_queue (type, receipt_id, data, attempts, max_attempts, status, last_error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(op.Kind), op.ReceiptID, payload, op.Attempts, op.MaxAttempts, string(op.Status), op.LastError, op.Timestamp)
	if err != nil {
		return &domain.StoreError{Op: "enqueue_operation", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return &domain.StoreError{Op: "enqueue_operation", Err: err}
	}
	op.ID = id
	return nil
}

// GetOperation retrieves a queued operation by ID
func (s *SQLiteStore) GetOperation(ctx context.Context, id int64) (*domain.PendingOperation, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM sync_queue WHERE id = ?`, id)
	op, err := scanOperation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operation %d: %w", id, domain.ErrNotFound)
		}
		return nil, &domain.StoreError{Op: "get_operation", Err: err}
	}
	return op, nil
}

// ListOperations returns operations in FIFO order
func (s *SQLiteStore) ListOperations(ctx context.Context, status domain.OperationStatus) ([]domain.PendingOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM sync_queue`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.StoreError{Op: "list_operations", Err: err}
	}
	defer rows.Close()

	ops := []domain.PendingOperation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, &domain.StoreError{Op: "scan_operation", Err: err}
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "list_operations", Err: err}
	}
	return ops, nil
}

// UpdateOperation persists the attempt counter, status and last error
func (s *SQLiteStore) UpdateOperation(ctx context.Context, op *domain.PendingOperation) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE sync_queue SET attempts = ?, status = ?, last_error = ? WHERE id = ?
	`, op.Attempts, string(op.Status), op.LastError, op.ID)
	if err != nil {
		return &domain.StoreError{Op: "update_operation", Err: err}
	}
	return requireAffected(res, fmt.Sprintf("operation %d", op.ID))
}

// DeleteOperation removes an operation from the queue
func (s *SQLiteStore) DeleteOperation(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return &domain.StoreError{Op: "delete_operation", Err: err}
	}
	return requireAffected(res, fmt.Sprintf("operation %d", id))
}

func scanOperation(row rowScanner) (*domain.PendingOperation, error) {
	var (
		op      domain.PendingOperation
		kind    string
		payload string
		status  string
	)
	err := row.Scan(&op.ID, &kind, &op.ReceiptID, &payload, &op.Attempts, &op.MaxAttempts, &status, &op.LastError, &op.Timestamp)
	if err != nil {
		return nil, err
	}
	op.Kind = domain.OperationKind(kind)
	op.Payload = []byte(payload)
	op.Status = domain.OperationStatus(status)
	return &op, nil
}
