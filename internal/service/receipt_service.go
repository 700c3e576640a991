package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ridwanfathin/receipt-sync-service/internal/database"
	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
	"github.com/ridwanfathin/receipt-sync-service/internal/imageutil"
	"github.com/ridwanfathin/receipt-sync-service/internal/network"
	"github.com/ridwanfathin/receipt-sync-service/internal/openrouter"
	"github.com/ridwanfathin/receipt-sync-service/internal/repository"
	"github.com/ridwanfathin/receipt-sync-service/internal/syncer"
	"github.com/ridwanfathin/receipt-sync-service/internal/worker"
)

// SettingVisionAPIKey overrides the configured vision API key when set
const SettingVisionAPIKey = "vision_api_key"

// ReceiptServiceError represents an error in the receipt service
type ReceiptServiceError struct {
	Op  string
	Err error
}

func (e *ReceiptServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

// Unwrap returns the underlying error
func (e *ReceiptServiceError) Unwrap() error {
	return e.Err
}

// ScanResult is the outcome of running vision extraction on a receipt image.
// When extraction fails the suggestion is blank and dated today.
type ScanResult struct {
	Suggestion domain.ReceiptInput `json:"suggestion"`
	Extracted  bool                `json:"extracted"`
	Error      string              `json:"error,omitempty"`
}

// ReceiptService defines the interface for receipt-related business logic
type ReceiptService interface {
	// Local store operations
	SaveReceipt(ctx context.Context, input domain.ReceiptInput) (*domain.Receipt, error)
	GetReceipts(ctx context.Context, filter domain.ReceiptFilter) ([]domain.Receipt, error)
	GetReceipt(ctx context.Context, receiptID string) (*domain.Receipt, error)
	UpdateReceipt(ctx context.Context, receiptID string, update domain.ReceiptUpdate) (*domain.Receipt, error)
	DeleteReceipt(ctx context.Context, receiptID string) error
	SaveImage(ctx context.Context, receiptID string, data []byte, mimeType string) (*domain.Image, error)
	GetImage(ctx context.Context, receiptID string) (*domain.Image, error)

	// Capture operations
	CaptureReceipt(ctx context.Context, input domain.ReceiptInput, imageData []byte) (*domain.Receipt, error)
	ScanReceipt(ctx context.Context, imageData []byte) (*ScanResult, error)

	// Sync operations
	ProcessSyncQueue(ctx context.Context) (syncer.DrainResult, error)
	SyncQueue(ctx context.Context) ([]domain.PendingOperation, error)
	RetryOperation(ctx context.Context, opID int64) (*domain.PendingOperation, error)
	DiscardOperation(ctx context.Context, opID int64) error
	IsOnline() bool
	SetOnline(online bool)

	// Maintenance operations
	Stats(ctx context.Context) (*domain.StorageStats, error)
	Export(ctx context.Context) (*domain.Export, error)
	ClearAll(ctx context.Context) error
	GetSetting(ctx context.Context, key string) (*domain.Setting, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Config holds the tunables of the receipt service
type Config struct {
	// MaxWorkers bounds concurrent capture/scan pipelines
	MaxWorkers int
	Image      *imageutil.ProcessConfig
}

// ReceiptServiceImpl implements the ReceiptService interface
type ReceiptServiceImpl struct {
	store        repository.Store
	runner       *worker.Runner
	syncer       *syncer.Syncer
	monitor      *network.Monitor
	visionClient *openrouter.Client
	imageConfig  *imageutil.ProcessConfig
	workers      *semaphore.Weighted
	now          func() time.Time
}

// NewReceiptService creates a new ReceiptService. Every mutation and drain runs on runner.
func NewReceiptService(store repository.Store, runner *worker.Runner, sync *syncer.Syncer, monitor *network.Monitor, visionClient *openrouter.Client, config Config) *ReceiptServiceImpl {
	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	imageConfig := config.Image
	if imageConfig == nil {
		imageConfig = imageutil.DefaultConfig()
	}

	s := &ReceiptServiceImpl{
		store:        store,
		runner:       runner,
		syncer:       sync,
		monitor:      monitor,
		visionClient: visionClient,
		imageConfig:  imageConfig,
		workers:      semaphore.NewWeighted(int64(maxWorkers)),
		now:          time.Now,
	}

	monitor.OnChange(func(online bool) {
		if online {
			s.runner.Go(context.Background(), "drain after reconnect", func(ctx context.Context) error {
				result, err := s.syncer.Drain(ctx)
				if err == nil && result.Processed > 0 {
					log.Printf("Reconnected, drained %d operations (%d succeeded)", result.Processed, result.Succeeded)
				}
				return err
			})
		}
	})

	return s
}

// SaveReceipt validates and stores a new receipt and queues its upload.
// When online the queue is drained before returning.
func (s *ReceiptServiceImpl) SaveReceipt(ctx context.Context, input domain.ReceiptInput) (*domain.Receipt, error) {
	receipt, err := s.saveReceipt(ctx, input, nil)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, receipt.ID)
}

// CaptureReceipt runs the capture pipeline on the image, then stores the receipt and the processed image
func (s *ReceiptServiceImpl) CaptureReceipt(ctx context.Context, input domain.ReceiptInput, imageData []byte) (*domain.Receipt, error) {
	release, err := s.acquireWorker(ctx)
	if err != nil {
		return nil, err
	}
	processed, err := imageutil.Process(imageData, s.imageConfig)
	release()
	if err != nil {
		return nil, &ReceiptServiceError{Op: "process_image", Err: err}
	}

	receipt, err := s.saveReceipt(ctx, input, processed)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, receipt.ID)
}

func (s *ReceiptServiceImpl) saveReceipt(ctx context.Context, input domain.ReceiptInput, processed *imageutil.Result) (*domain.Receipt, error) {
	input.Sanitize()
	if err := input.Validate(); err != nil {
		return nil, &ReceiptServiceError{Op: "validate_receipt", Err: err}
	}

	var stored *domain.Receipt
	err := s.runner.Submit(ctx, func(ctx context.Context) error {
		online := s.IsOnline()
		now := s.now().UnixMilli()
		receipt := &domain.Receipt{
			ID:        uuid.NewString(),
			Date:      input.Date,
			Company:   input.Company,
			Item:      input.Item,
			Price:     input.Price,
			Timestamp: now,
			Status:    statusFor(online),
			LocalOnly: !online,
		}

		err := s.store.WithTx(ctx, func(tx repository.Store) error {
			if err := tx.CreateReceipt(ctx, receipt); err != nil {
				return err
			}
			if processed != nil {
				if err := tx.SaveImage(ctx, &domain.Image{
					ReceiptID: receipt.ID,
					Data:      processed.Data,
					MimeType:  processed.MimeType,
					Timestamp: now,
				}); err != nil {
					return err
				}
			}
			return enqueue(ctx, tx, domain.OpUploadReceipt, receipt.ID, receipt, now)
		})
		if err != nil {
			return err
		}
		stored = receipt
		return nil
	})
	if err != nil {
		return nil, &ReceiptServiceError{Op: "save_receipt", Err: err}
	}

	log.Printf("Saved receipt %s (%s)", stored.ID, stored.Status)
	return stored, nil
}

// GetReceipts returns the receipts matching filter, newest first
func (s *ReceiptServiceImpl) GetReceipts(ctx context.Context, filter domain.ReceiptFilter) ([]domain.Receipt, error) {
	receipts, err := s.store.ListReceipts(ctx, filter)
	if err != nil {
		return nil, &ReceiptServiceError{Op: "list_receipts", Err: err}
	}
	return receipts, nil
}

// GetReceipt retrieves a receipt by ID
func (s *ReceiptServiceImpl) GetReceipt(ctx context.Context, receiptID string) (*domain.Receipt, error) {
	receipt, err := s.store.GetReceiptByID(ctx, receiptID)
	if err != nil {
		return nil, &ReceiptServiceError{Op: "get_receipt", Err: err}
	}
	return receipt, nil
}

// UpdateReceipt merges the update into a stored receipt and queues the remote update
func (s *ReceiptServiceImpl) UpdateReceipt(ctx context.Context, receiptID string, update domain.ReceiptUpdate) (*domain.Receipt, error) {
	update.Sanitize()
	if err := update.Validate(); err != nil {
		return nil, &ReceiptServiceError{Op: "validate_receipt", Err: err}
	}

	err := s.runner.Submit(ctx, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(tx repository.Store) error {
			receipt, err := tx.GetReceiptByID(ctx, receiptID)
			if err != nil {
				return err
			}

			online := s.IsOnline()
			now := s.now().UnixMilli()
			update.Apply(receipt)
			receipt.Timestamp = now
			receipt.Status = domain.StatusPendingSync
			receipt.Synced = false
			receipt.LocalOnly = !online && receipt.RemoteID == ""
			receipt.LastError = ""

			if err := tx.UpdateReceipt(ctx, receipt); err != nil {
				return err
			}
			return enqueue(ctx, tx, domain.OpUpdateReceipt, receipt.ID, receipt, now)
		})
	})
	if err != nil {
		return nil, &ReceiptServiceError{Op: "update_receipt", Err: err}
	}

	return s.afterMutation(ctx, receiptID)
}

// DeleteReceipt removes a receipt and its image and queues the remote delete.
// Deleting a missing receipt is a no-op.
func (s *ReceiptServiceImpl) DeleteReceipt(ctx context.Context, receiptID string) error {
	deleted := false
	err := s.runner.Submit(ctx, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(tx repository.Store) error {
			receipt, err := tx.GetReceiptByID(ctx, receiptID)
			if err != nil {
				if domain.IsNotFound(err) {
					return nil
				}
				return err
			}
			deleted = true
			if err := tx.DeleteReceipt(ctx, receiptID); err != nil {
				return err
			}
			payload := domain.DeletePayload{ID: receipt.ID, RemoteID: receipt.RemoteID}
			return enqueue(ctx, tx, domain.OpDeleteReceipt, receipt.ID, payload, s.now().UnixMilli())
		})
	})
	if err != nil {
		return &ReceiptServiceError{Op: "delete_receipt", Err: err}
	}
	if !deleted {
		return nil
	}

	log.Printf("Deleted receipt %s", receiptID)
	s.drainIfOnline(ctx)
	return nil
}

// SaveImage stores the image of a receipt. A receipt without a queued upload or
// update gets an update queued so the remote copy picks up the new image.
func (s *ReceiptServiceImpl) SaveImage(ctx context.Context, receiptID string, data []byte, mimeType string) (*domain.Image, error) {
	if len(data) == 0 {
		return nil, &ReceiptServiceError{
			Op:  "validate_image",
			Err: &domain.ValidationError{Fields: []domain.FieldError{{Field: "image", Message: "is required"}}},
		}
	}
	if !imageutil.IsImage(data) {
		return nil, &ReceiptServiceError{Op: "validate_image", Err: imageutil.ErrUnsupportedImage}
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = imageutil.DetectMIME(data)
	}

	var image *domain.Image
	err := s.runner.Submit(ctx, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(tx repository.Store) error {
			receipt, err := tx.GetReceiptByID(ctx, receiptID)
			if err != nil {
				return err
			}

			now := s.now().UnixMilli()
			image = &domain.Image{ReceiptID: receiptID, Data: data, MimeType: mimeType, Timestamp: now}
			if err := tx.SaveImage(ctx, image); err != nil {
				return err
			}

			queued, err := hasPendingOperation(ctx, tx, receiptID)
			if err != nil || queued {
				return err
			}

			online := s.IsOnline()
			receipt.Status = statusFor(online)
			receipt.Synced = false
			receipt.LocalOnly = !online && receipt.RemoteID == ""
			if err := tx.UpdateReceipt(ctx, receipt); err != nil {
				return err
			}
			return enqueue(ctx, tx, domain.OpUpdateReceipt, receiptID, receipt, now)
		})
	})
	if err != nil {
		return nil, &ReceiptServiceError{Op: "save_image", Err: err}
	}

	s.drainIfOnline(ctx)
	return image, nil
}

// GetImage retrieves the image of a receipt
func (s *ReceiptServiceImpl) GetImage(ctx context.Context, receiptID string) (*domain.Image, error) {
	image, err := s.store.GetImage(ctx, receiptID)
	if err != nil {
		return nil, &ReceiptServiceError{Op: "get_image", Err: err}
	}
	return image, nil
}

// ScanReceipt runs the capture pipeline and vision extraction without storing anything
func (s *ReceiptServiceImpl) ScanReceipt(ctx context.Context, imageData []byte) (*ScanResult, error) {
	release, err := s.acquireWorker(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	processed, err := imageutil.Process(imageData, s.imageConfig)
	if err != nil {
		return nil, &ReceiptServiceError{Op: "process_image", Err: err}
	}

	fallback := &ScanResult{Suggestion: domain.ReceiptInput{Date: s.now().Format(domain.DateLayout)}}
	if s.visionClient == nil {
		fallback.Error = "vision extraction is not configured"
		return fallback, nil
	}

	client := s.visionClient
	if setting, err := s.store.GetSetting(ctx, SettingVisionAPIKey); err == nil && setting.Value != "" {
		client = client.WithAPIKey(setting.Value)
	}
	if !client.Configured() {
		fallback.Error = "vision API key is not set"
		return fallback, nil
	}

	suggestion, err := client.ExtractReceiptData(ctx, processed.Data, processed.MimeType)
	if err != nil {
		log.Printf("Vision extraction failed: %v", err)
		fallback.Error = err.Error()
		return fallback, nil
	}

	return &ScanResult{Suggestion: *suggestion, Extracted: true}, nil
}

// ProcessSyncQueue drains the sync queue on the runner
func (s *ReceiptServiceImpl) ProcessSyncQueue(ctx context.Context) (syncer.DrainResult, error) {
	var result syncer.DrainResult
	err := s.runner.Submit(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.syncer.Drain(ctx)
		return err
	})
	if err != nil {
		return result, &ReceiptServiceError{Op: "process_sync_queue", Err: err}
	}
	if result.Processed > 0 {
		log.Printf("Sync queue drained: %d processed, %d succeeded, %d retried, %d failed",
			result.Processed, result.Succeeded, result.Retried, result.Failed)
	}
	return result, nil
}

// SyncQueue lists queued operations, pending and failed
func (s *ReceiptServiceImpl) SyncQueue(ctx context.Context) ([]domain.PendingOperation, error) {
	ops, err := s.syncer.Queue(ctx)
	if err != nil {
		return nil, &ReceiptServiceError{Op: "list_sync_queue", Err: err}
	}
	return ops, nil
}

// RetryOperation resets a failed operation and drains when online
func (s *ReceiptServiceImpl) RetryOperation(ctx context.Context, opID int64) (*domain.PendingOperation, error) {
	var op *domain.PendingOperation
	err := s.runner.Submit(ctx, func(ctx context.Context) error {
		var err error
		op, err = s.syncer.Retry(ctx, opID)
		return err
	})
	if err != nil {
		return nil, &ReceiptServiceError{Op: "retry_operation", Err: err}
	}

	s.drainIfOnline(ctx)
	return op, nil
}

// DiscardOperation drops a queued operation
func (s *ReceiptServiceImpl) DiscardOperation(ctx context.Context, opID int64) error {
	err := s.runner.Submit(ctx, func(ctx context.Context) error {
		return s.syncer.Discard(ctx, opID)
	})
	if err != nil {
		return &ReceiptServiceError{Op: "discard_operation", Err: err}
	}
	return nil
}

// IsOnline reports the connectivity state
func (s *ReceiptServiceImpl) IsOnline() bool {
	return s.monitor.Online()
}

// SetOnline overrides the connectivity state; going online triggers a drain through the monitor listener
func (s *ReceiptServiceImpl) SetOnline(online bool) {
	s.monitor.SetOnline(online)
}

// Stats summarises the local store
func (s *ReceiptServiceImpl) Stats(ctx context.Context) (*domain.StorageStats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, &ReceiptServiceError{Op: "stats", Err: err}
	}
	stats.IsOnline = s.IsOnline()
	return stats, nil
}

// Export produces a JSON backup of every receipt
func (s *ReceiptServiceImpl) Export(ctx context.Context) (*domain.Export, error) {
	receipts, err := s.store.ListReceipts(ctx, domain.ReceiptFilter{})
	if err != nil {
		return nil, &ReceiptServiceError{Op: "export", Err: err}
	}
	return &domain.Export{
		Receipts:   receipts,
		ExportDate: s.now().UTC().Format(time.RFC3339),
		Version:    database.SchemaVersion,
	}, nil
}

// ClearAll removes every receipt, image, queued operation and setting
func (s *ReceiptServiceImpl) ClearAll(ctx context.Context) error {
	err := s.runner.Submit(ctx, func(ctx context.Context) error {
		return s.store.ClearAll(ctx)
	})
	if err != nil {
		return &ReceiptServiceError{Op: "clear_all", Err: err}
	}
	log.Println("All local data cleared")
	return nil
}

// GetSetting retrieves a setting
func (s *ReceiptServiceImpl) GetSetting(ctx context.Context, key string) (*domain.Setting, error) {
	setting, err := s.store.GetSetting(ctx, key)
	if err != nil {
		return nil, &ReceiptServiceError{Op: "get_setting", Err: err}
	}
	return setting, nil
}

// SetSetting stores a setting
func (s *ReceiptServiceImpl) SetSetting(ctx context.Context, key, value string) error {
	err := s.runner.Submit(ctx, func(ctx context.Context) error {
		return s.store.SetSetting(ctx, key, value)
	})
	if err != nil {
		return &ReceiptServiceError{Op: "set_setting", Err: err}
	}
	return nil
}

// DeleteSetting removes a setting
func (s *ReceiptServiceImpl) DeleteSetting(ctx context.Context, key string) error {
	err := s.runner.Submit(ctx, func(ctx context.Context) error {
		return s.store.DeleteSetting(ctx, key)
	})
	if err != nil {
		return &ReceiptServiceError{Op: "delete_setting", Err: err}
	}
	return nil
}

// afterMutation drains when online and returns the receipt as stored afterwards
func (s *ReceiptServiceImpl) afterMutation(ctx context.Context, receiptID string) (*domain.Receipt, error) {
	s.drainIfOnline(ctx)
	return s.GetReceipt(ctx, receiptID)
}

// drainIfOnline drains the queue; sync failures stay in the queue and are only logged
func (s *ReceiptServiceImpl) drainIfOnline(ctx context.Context) {
	if !s.IsOnline() {
		return
	}
	if _, err := s.ProcessSyncQueue(ctx); err != nil {
		log.Printf("Sync after mutation failed: %v", err)
	}
}

func (s *ReceiptServiceImpl) acquireWorker(ctx context.Context) (func(), error) {
	if err := s.workers.Acquire(ctx, 1); err != nil {
		return nil, &ReceiptServiceError{Op: "acquire_worker", Err: err}
	}
	return func() { s.workers.Release(1) }, nil
}

func statusFor(online bool) domain.SyncStatus {
	if online {
		return domain.StatusPendingSync
	}
	return domain.StatusOffline
}

func enqueue(ctx context.Context, tx repository.Store, kind domain.OperationKind, receiptID string, payload any, now int64) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return &domain.StoreError{Op: "encode_payload", Err: err}
	}
	return tx.Enqueue(ctx, &domain.PendingOperation{
		Kind:      kind,
		ReceiptID: receiptID,
		Payload:   data,
		Timestamp: now,
	})
}

func hasPendingOperation(ctx context.Context, tx repository.Store, receiptID string) (bool, error) {
	ops, err := tx.ListOperations(ctx, domain.OpStatusPending)
	if err != nil {
		return false, err
	}
	for _, op := range ops {
		if op.ReceiptID == receiptID && op.Kind != domain.OpDeleteReceipt {
			return true, nil
		}
	}
	return false, nil
}
