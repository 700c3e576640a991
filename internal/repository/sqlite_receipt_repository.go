package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

const receiptColumns = `id, date, company, item, price, timestamp, status, synced, local_only, remote_id, last_error`

// CreateReceipt saves a new receipt
func (s *SQLiteStore) CreateReceipt(ctx context.Context, receipt *domain.Receipt) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO receipts (`+receiptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, receipt.ID, receipt.Date, receipt.Company, receipt.Item, int64(receipt.Price), receipt.Timestamp,
		string(receipt.Status), boolToInt(receipt.Synced), boolToInt(receipt.LocalOnly),
		receipt.RemoteID, receipt.LastError)
	if err != nil {
		return &domain.StoreError{Op: "insert_receipt", Err: err}
	}
	return nil
}

// GetReceiptByID retrieves a receipt by its ID
func (s *SQLiteStore) GetReceiptByID(ctx context.Context, receiptID string) (*domain.Receipt, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = ?`, receiptID)

	receipt, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("receipt %s: %w", receiptID, domain.ErrNotFound)
		}
		return nil, &domain.StoreError{Op: "get_receipt", Err: err}
	}
	return receipt, nil
}

// UpdateReceipt overwrites every stored field of an existing receipt
func (s *SQLiteStore) UpdateReceipt(ctx context.Context, receipt *domain.Receipt) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE receipts
		SET date = ?, company = ?, item = ?, price = ?, timestamp = ?, status = ?,
			synced = ?, local_only = ?, remote_id = ?, last_error = ?
		WHERE id = ?
	`, receipt.Date, receipt.Company, receipt.Item, int64(receipt.Price), receipt.Timestamp,
		string(receipt.Status), boolToInt(receipt.Synced), boolToInt(receipt.LocalOnly),
		receipt.RemoteID, receipt.LastError, receipt.ID)
	if err != nil {
		return &domain.StoreError{Op: "update_receipt", Err: err}
	}
	return requireAffected(res, "receipt "+receipt.ID)
}

// DeleteReceipt deletes the receipt and its image in one transaction
func (s *SQLiteStore) DeleteReceipt(ctx context.Context, receiptID string) error {
	return s.WithTx(ctx, func(tx Store) error {
		q := tx.(*SQLiteStore).q

		res, err := q.ExecContext(ctx, `DELETE FROM receipts WHERE id = ?`, receiptID)
		if err != nil {
			return &domain.StoreError{Op: "delete_receipt", Err: err}
		}
		if err := requireAffected(res, "receipt "+receiptID); err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM images WHERE receipt_id = ?`, receiptID); err != nil {
			return &domain.StoreError{Op: "delete_receipt_image", Err: err}
		}
		return nil
	})
}

// ListReceipts returns receipts matching filter, newest first
func (s *SQLiteStore) ListReceipts(ctx context.Context, filter domain.ReceiptFilter) ([]domain.Receipt, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Date != "" {
		conditions = append(conditions, "date = ?")
		args = append(args, filter.Date)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + receiptColumns + ` FROM receipts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.StoreError{Op: "list_receipts", Err: err}
	}
	defer rows.Close()

	receipts := []domain.Receipt{}
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, &domain.StoreError{Op: "scan_receipt", Err: err}
		}
		// Company matching is done here so that case folding covers non-ASCII names.
		if filter.Matches(receipt) {
			receipts = append(receipts, *receipt)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "list_receipts", Err: err}
	}

	return receipts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*domain.Receipt, error) {
	var (
		r         domain.Receipt
		price     int64
		status    string
		synced    int
		localOnly int
	)
	err := row.Scan(&r.ID, &r.Date, &r.Company, &r.Item, &price, &r.Timestamp, &status,
		&synced, &localOnly, &r.RemoteID, &r.LastError)
	if err != nil {
		return nil, err
	}

	r.Price = domain.Price(price)
	r.Status = domain.SyncStatus(status)
	r.Synced = synced == 1
	r.LocalOnly = localOnly == 1
	return &r, nil
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.StoreError{Op: "rows_affected", Err: err}
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}
