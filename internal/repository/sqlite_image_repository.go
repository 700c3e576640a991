package repository

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

// SaveImage stores the image as a base64 data URL, replacing any previous image of the receipt
func (s *SQLiteStore) SaveImage(ctx context.Context, image *domain.Image) error {
	image.ID = domain.ImageID(image.ReceiptID)
	image.Size = int64(len(image.Data))

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO images (id, receipt_id, data, mime_type, size, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			mime_type = excluded.mime_type,
			size = excluded.size,
			timestamp = excluded.timestamp
	`, image.ID, image.ReceiptID, encodeDataURL(image.MimeType, image.Data), image.MimeType, image.Size, image.Timestamp)
	if err != nil {
		return &domain.StoreError{Op: "save_image", Err: err}
	}
	return nil
}

// GetImage retrieves and decodes the image of a receipt
func (s *SQLiteStore) GetImage(ctx context.Context, receiptID string) (*domain.Image, error) {
	var (
		image   domain.Image
		encoded string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, receipt_id, data, mime_type, size, timestamp
		FROM images
		WHERE id = ?
	`, domain.ImageID(receiptID)).Scan(
		&image.ID, &image.ReceiptID, &encoded, &image.MimeType, &image.Size, &image.Timestamp,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("image for receipt %s: %w", receiptID, domain.ErrNotFound)
		}
		return nil, &domain.StoreError{Op: "get_image", Err: err}
	}

	data, err := decodeDataURL(encoded)
	if err != nil {
		return nil, &domain.StoreError{Op: "decode_image", Err: err}
	}
	image.Data = data
	return &image, nil
}

// DeleteImage removes the image of a receipt; a missing image is not an error
func (s *SQLiteStore) DeleteImage(ctx context.Context, receiptID string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, domain.ImageID(receiptID)); err != nil {
		return &domain.StoreError{Op: "delete_image", Err: err}
	}
	return nil
}

func encodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func decodeDataURL(encoded string) ([]byte, error) {
	payload := encoded
	if strings.HasPrefix(encoded, "data:") {
		idx := strings.IndexByte(encoded, ',')
		if idx < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		payload = encoded[idx+1:]
	}
	return base64.StdEncoding.DecodeString(payload)
}
