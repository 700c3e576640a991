package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ridwanfathin/receipt-sync-service/internal/database"
	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

const remoteSchema = `
CREATE TABLE IF NOT EXISTS remote_receipts (
	id           TEXT PRIMARY KEY,
	receipt_date DATE,
	company      TEXT NOT NULL DEFAULT '',
	item         TEXT NOT NULL DEFAULT '',
	price        BIGINT NOT NULL DEFAULT 0,
	captured_at  TIMESTAMPTZ NOT NULL,
	image_mime   TEXT,
	image_data   TEXT,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_remote_receipts_date ON remote_receipts(receipt_date);
`

// PostgresGateway mirrors receipts into a PostgreSQL table
type PostgresGateway struct {
	db *database.PostgresDB
}

// NewPostgresGateway creates a new PostgreSQL gateway
func NewPostgresGateway(db *database.PostgresDB) *PostgresGateway {
	return &PostgresGateway{db: db}
}

// EnsureSchema creates the mirror table when it does not exist
func (g *PostgresGateway) EnsureSchema(ctx context.Context) error {
	if _, err := g.db.GetPool().Exec(ctx, remoteSchema); err != nil {
		return &GatewayError{Backend: "postgres", Op: "ensure_schema", Err: err}
	}
	return nil
}

// UploadReceipt inserts the receipt row; the remote ID is the receipt ID
func (g *PostgresGateway) UploadReceipt(ctx context.Context, receipt *domain.Receipt, image *domain.Image) (string, error) {
	if err := g.upsert(ctx, receipt, image); err != nil {
		return "", err
	}
	return receipt.ID, nil
}

// UpdateReceipt upserts the receipt row
func (g *PostgresGateway) UpdateReceipt(ctx context.Context, receipt *domain.Receipt, image *domain.Image) error {
	return g.upsert(ctx, receipt, image)
}

// DeleteReceipt removes the receipt row; a missing row is not an error
func (g *PostgresGateway) DeleteReceipt(ctx context.Context, receiptID, remoteID string) error {
	id := remoteID
	if id == "" {
		id = receiptID
	}
	if _, err := g.db.GetPool().Exec(ctx, `DELETE FROM remote_receipts WHERE id = $1`, id); err != nil {
		return &GatewayError{Backend: "postgres", Op: "delete_receipt", Err: err}
	}
	return nil
}

func (g *PostgresGateway) upsert(ctx context.Context, receipt *domain.Receipt, image *domain.Image) error {
	var receiptDate *time.Time
	if receipt.Date != "" {
		if d, err := time.Parse(domain.DateLayout, receipt.Date); err == nil {
			receiptDate = &d
		}
	}

	var mimeType, data *string
	if image != nil && len(image.Data) > 0 {
		m := imageContentType(image)
		encoded := base64.StdEncoding.EncodeToString(image.Data)
		mimeType, data = &m, &encoded
	}

	err := g.db.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO remote_receipts (id, receipt_date, company, item, price, captured_at, image_mime, image_data, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			ON CONFLICT (id) DO UPDATE SET
				receipt_date = EXCLUDED.receipt_date,
				company = EXCLUDED.company,
				item = EXCLUDED.item,
				price = EXCLUDED.price,
				image_mime = COALESCE(EXCLUDED.image_mime, remote_receipts.image_mime),
				image_data = COALESCE(EXCLUDED.image_data, remote_receipts.image_data),
				updated_at = NOW()
		`, receipt.ID, receiptDate, receipt.Company, receipt.Item, int64(receipt.Price),
			receipt.Time(), mimeType, data)
		if err != nil {
			return fmt.Errorf("receipt %s: %w", receipt.ID, err)
		}
		return nil
	})
	if err != nil {
		return &GatewayError{Backend: "postgres", Op: "upsert_receipt", Err: err}
	}
	return nil
}
