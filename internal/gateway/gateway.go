// Package gateway implements the remote side of receipt synchronisation.
package gateway

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

// RemoteGateway is the remote store the sync queue replays mutations against.
// Each call either succeeds or fails as a whole.
type RemoteGateway interface {
	// UploadReceipt creates the remote copy and returns its remote identifier
	UploadReceipt(ctx context.Context, receipt *domain.Receipt, image *domain.Image) (string, error)
	UpdateReceipt(ctx context.Context, receipt *domain.Receipt, image *domain.Image) error
	DeleteReceipt(ctx context.Context, receiptID, remoteID string) error
}

// GatewayError represents an error that occurred while talking to a remote backend
type GatewayError struct {
	Backend string
	Op      string
	Err     error
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	if e.Err == nil {
		return e.Backend + " gateway error: " + e.Op
	}
	return e.Backend + " gateway error: " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ErrUnauthorized is returned when the backend rejected the credentials
var ErrUnauthorized = fmt.Errorf("remote backend rejected credentials")

// NopGateway accepts every call without contacting anything.
// It backs local-only deployments.
type NopGateway struct{}

// UploadReceipt returns the receipt ID as the remote ID
func (NopGateway) UploadReceipt(_ context.Context, receipt *domain.Receipt, _ *domain.Image) (string, error) {
	log.Printf("[gateway] local-only mode, upload of %s skipped", receipt.ID)
	return receipt.ID, nil
}

// UpdateReceipt does nothing
func (NopGateway) UpdateReceipt(_ context.Context, receipt *domain.Receipt, _ *domain.Image) error {
	log.Printf("[gateway] local-only mode, update of %s skipped", receipt.ID)
	return nil
}

// DeleteReceipt does nothing
func (NopGateway) DeleteReceipt(_ context.Context, receiptID, _ string) error {
	log.Printf("[gateway] local-only mode, delete of %s skipped", receiptID)
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]+`)

// ReceiptFilename builds the remote file name <date>_<company>_<item>_<price>.<ext>
func ReceiptFilename(receipt *domain.Receipt, mimeType string) string {
	return receiptBaseName(receipt) + extensionFor(mimeType)
}

func receiptBaseName(receipt *domain.Receipt) string {
	parts := []string{
		receipt.Date,
		receipt.Company,
		receipt.Item,
		fmt.Sprintf("%d", receipt.Price),
	}
	for i, p := range parts {
		p = unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(p), "-")
		if p == "" {
			p = "unknown"
		}
		parts[i] = p
	}
	return strings.Join(parts, "_")
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "application/json":
		return ".json"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// imageContentType returns the image MIME type, defaulting to JPEG
func imageContentType(image *domain.Image) string {
	if image == nil || image.MimeType == "" {
		return "image/jpeg"
	}
	return image.MimeType
}
