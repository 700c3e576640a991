package repository

import (
	"context"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

// ReceiptRepository defines the interface for receipt data operations
type ReceiptRepository interface {
	CreateReceipt(ctx context.Context, receipt *domain.Receipt) error
	GetReceiptByID(ctx context.Context, receiptID string) (*domain.Receipt, error)
	UpdateReceipt(ctx context.Context, receipt *domain.Receipt) error
	// DeleteReceipt removes the receipt and its image atomically
	DeleteReceipt(ctx context.Context, receiptID string) error
	// ListReceipts returns matching receipts, newest timestamp first
	ListReceipts(ctx context.Context, filter domain.ReceiptFilter) ([]domain.Receipt, error)
}

// ImageRepository defines the interface for receipt image storage
type ImageRepository interface {
	SaveImage(ctx context.Context, image *domain.Image) error
	GetImage(ctx context.Context, receiptID string) (*domain.Image, error)
	DeleteImage(ctx context.Context, receiptID string) error
}

// QueueRepository defines the interface for persisted pending operations
type QueueRepository interface {
	// Enqueue stores op and assigns its ID
	Enqueue(ctx context.Context, op *domain.PendingOperation) error
	GetOperation(ctx context.Context, id int64) (*domain.PendingOperation, error)
	// ListOperations returns operations in enqueue order; an empty status lists all
	ListOperations(ctx context.Context, status domain.OperationStatus) ([]domain.PendingOperation, error)
	UpdateOperation(ctx context.Context, op *domain.PendingOperation) error
	DeleteOperation(ctx context.Context, id int64) error
}

// SettingsRepository defines the interface for named settings
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (*domain.Setting, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
	ListSettings(ctx context.Context) ([]domain.Setting, error)
}

// Store groups the local repositories behind one transactional handle
type Store interface {
	ReceiptRepository
	ImageRepository
	QueueRepository
	SettingsRepository

	// WithTx runs fn against a store bound to a single transaction
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Stats(ctx context.Context) (*domain.StorageStats, error)
	// ClearAll empties every table
	ClearAll(ctx context.Context) error
}
