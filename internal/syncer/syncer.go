// Package syncer replays the persisted sync queue against the remote gateway.
//
// Every method mutates the local store and must run on the single-writer runner.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
	"github.com/ridwanfathin/receipt-sync-service/internal/gateway"
	"github.com/ridwanfathin/receipt-sync-service/internal/repository"
)

// DrainResult summarises one drain pass
type DrainResult struct {
	Processed int  `json:"processed"`
	Succeeded int  `json:"succeeded"`
	Retried   int  `json:"retried"`
	Failed    int  `json:"failed"`
	Offline   bool `json:"offline,omitempty"`
}

// Syncer drains pending operations in enqueue order
type Syncer struct {
	store   repository.Store
	gateway gateway.RemoteGateway
	online  func() bool
}

// New creates a Syncer. online is consulted before and during every drain.
func New(store repository.Store, gw gateway.RemoteGateway, online func() bool) *Syncer {
	if online == nil {
		online = func() bool { return true }
	}
	return &Syncer{store: store, gateway: gw, online: online}
}

// Drain replays a snapshot of the pending operations. It stops early when the
// connection drops or ctx ends; unprocessed operations stay queued.
func (s *Syncer) Drain(ctx context.Context) (DrainResult, error) {
	var result DrainResult
	if !s.online() {
		result.Offline = true
		return result, nil
	}

	timer := prometheus.NewTimer(drainDuration)
	defer timer.ObserveDuration()

	ops, err := s.store.ListOperations(ctx, domain.OpStatusPending)
	if err != nil {
		return result, err
	}
	if len(ops) > 0 {
		log.Printf("[syncer] draining %d pending operations", len(ops))
	}

	for i := range ops {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !s.online() {
			result.Offline = true
			break
		}

		op := &ops[i]
		result.Processed++

		synced, syncErr := s.replay(ctx, op)
		if syncErr == nil {
			if err := s.complete(ctx, op, synced); err != nil {
				return result, err
			}
			result.Succeeded++
			operationsTotal.WithLabelValues(string(op.Kind), "succeeded").Inc()
			continue
		}

		exhausted, err := s.recordFailure(ctx, op, syncErr)
		if err != nil {
			return result, err
		}
		if exhausted {
			result.Failed++
			operationsTotal.WithLabelValues(string(op.Kind), "failed").Inc()
			log.Printf("[syncer] giving up on operation %d (%s %s) after %d attempts: %v",
				op.ID, op.Kind, op.ReceiptID, op.Attempts, syncErr)
		} else {
			result.Retried++
			operationsTotal.WithLabelValues(string(op.Kind), "retried").Inc()
			log.Printf("[syncer] operation %d (%s %s) failed, attempt %d/%d: %v",
				op.ID, op.Kind, op.ReceiptID, op.Attempts, op.MaxAttempts, syncErr)
		}
	}

	s.refreshQueueDepth(ctx)
	return result, nil
}

// replay runs the remote call for op. On success it returns the receipt to
// mark synced, or nil when no local receipt is affected.
func (s *Syncer) replay(ctx context.Context, op *domain.PendingOperation) (*domain.Receipt, error) {
	switch op.Kind {
	case domain.OpUploadReceipt, domain.OpUpdateReceipt:
		return s.pushReceipt(ctx, op)
	case domain.OpDeleteReceipt:
		return nil, s.deleteReceipt(ctx, op)
	default:
		return nil, &domain.SyncError{Kind: op.Kind, ReceiptID: op.ReceiptID, Err: fmt.Errorf("unknown operation type")}
	}
}

// complete removes a replayed operation and stores the synced receipt in one
// transaction. Failed pushes of the same receipt are superseded and removed too.
func (s *Syncer) complete(ctx context.Context, op *domain.PendingOperation, synced *domain.Receipt) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		if synced != nil {
			if err := tx.UpdateReceipt(ctx, synced); err != nil && !domain.IsNotFound(err) {
				return err
			}
			if err := supersedeFailed(ctx, tx, op); err != nil {
				return err
			}
		}
		if err := tx.DeleteOperation(ctx, op.ID); err != nil && !domain.IsNotFound(err) {
			return err
		}
		return nil
	})
}

func supersedeFailed(ctx context.Context, tx repository.Store, op *domain.PendingOperation) error {
	failed, err := tx.ListOperations(ctx, domain.OpStatusFailed)
	if err != nil {
		return err
	}
	for _, other := range failed {
		if other.ID == op.ID || other.ReceiptID != op.ReceiptID || other.Kind == domain.OpDeleteReceipt {
			continue
		}
		if err := tx.DeleteOperation(ctx, other.ID); err != nil && !domain.IsNotFound(err) {
			return err
		}
		log.Printf("[syncer] operation %d (%s %s) superseded by operation %d", other.ID, other.Kind, other.ReceiptID, op.ID)
	}
	return nil
}

func (s *Syncer) pushReceipt(ctx context.Context, op *domain.PendingOperation) (*domain.Receipt, error) {
	receipt, err := s.store.GetReceiptByID(ctx, op.ReceiptID)
	if err != nil {
		if domain.IsNotFound(err) {
			// Deleted locally since; the queued delete takes care of the remote side
			return nil, nil
		}
		return nil, err
	}

	image, err := s.store.GetImage(ctx, receipt.ID)
	if err != nil {
		if !domain.IsNotFound(err) {
			return nil, err
		}
		image = nil
	}

	remoteID := receipt.RemoteID
	if remoteID == "" {
		remoteID, err = s.gateway.UploadReceipt(ctx, receipt, image)
	} else {
		err = s.gateway.UpdateReceipt(ctx, receipt, image)
	}
	if err != nil {
		return nil, &domain.SyncError{Kind: op.Kind, ReceiptID: receipt.ID, Err: err}
	}

	receipt.MarkSynced(remoteID)
	return receipt, nil
}

func (s *Syncer) deleteReceipt(ctx context.Context, op *domain.PendingOperation) error {
	var payload domain.DeletePayload
	if len(op.Payload) > 0 && string(op.Payload) != "null" {
		if err := json.Unmarshal(op.Payload, &payload); err != nil {
			return &domain.SyncError{Kind: op.Kind, ReceiptID: op.ReceiptID, Err: fmt.Errorf("invalid payload: %w", err)}
		}
	}
	if payload.ID == "" {
		payload.ID = op.ReceiptID
	}

	// Never reached the remote side
	if payload.RemoteID == "" {
		return nil
	}

	if err := s.gateway.DeleteReceipt(ctx, payload.ID, payload.RemoteID); err != nil {
		return &domain.SyncError{Kind: op.Kind, ReceiptID: payload.ID, Err: err}
	}
	return nil
}

// recordFailure bumps the attempt counter; at the ceiling the op is parked as
// failed and the receipt surfaces sync_failed.
func (s *Syncer) recordFailure(ctx context.Context, op *domain.PendingOperation, syncErr error) (bool, error) {
	op.Attempts++
	op.LastError = syncErr.Error()
	exhausted := op.Exhausted()
	if exhausted {
		op.Status = domain.OpStatusFailed
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.UpdateOperation(ctx, op); err != nil {
			return err
		}
		if !exhausted || op.Kind == domain.OpDeleteReceipt {
			return nil
		}

		receipt, err := tx.GetReceiptByID(ctx, op.ReceiptID)
		if err != nil {
			if domain.IsNotFound(err) {
				return nil
			}
			return err
		}
		receipt.MarkSyncFailed(op.LastError)
		return tx.UpdateReceipt(ctx, receipt)
	})
	return exhausted, err
}

// Queue lists every queued operation, pending and failed, in enqueue order
func (s *Syncer) Queue(ctx context.Context) ([]domain.PendingOperation, error) {
	return s.store.ListOperations(ctx, "")
}

// Retry resets a failed operation so the next drain replays it
func (s *Syncer) Retry(ctx context.Context, opID int64) (*domain.PendingOperation, error) {
	var op *domain.PendingOperation
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		op, err = tx.GetOperation(ctx, opID)
		if err != nil {
			return err
		}

		op.Attempts = 0
		op.Status = domain.OpStatusPending
		op.LastError = ""
		op.Timestamp = time.Now().UnixMilli()
		if err := tx.UpdateOperation(ctx, op); err != nil {
			return err
		}

		if op.Kind == domain.OpDeleteReceipt {
			return nil
		}
		receipt, err := tx.GetReceiptByID(ctx, op.ReceiptID)
		if err != nil {
			if domain.IsNotFound(err) {
				return nil
			}
			return err
		}
		if receipt.Status == domain.StatusSyncFailed {
			receipt.Status = domain.StatusPendingSync
			receipt.LastError = ""
			return tx.UpdateReceipt(ctx, receipt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.refreshQueueDepth(ctx)
	return op, nil
}

// Discard drops an operation; its receipt goes back to local-only
func (s *Syncer) Discard(ctx context.Context, opID int64) error {
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		op, err := tx.GetOperation(ctx, opID)
		if err != nil {
			return err
		}
		if err := tx.DeleteOperation(ctx, opID); err != nil {
			return err
		}

		if op.Kind == domain.OpDeleteReceipt {
			return nil
		}
		receipt, err := tx.GetReceiptByID(ctx, op.ReceiptID)
		if err != nil {
			if domain.IsNotFound(err) {
				return nil
			}
			return err
		}
		if receipt.Synced {
			return nil
		}
		receipt.Status = domain.StatusOffline
		receipt.LocalOnly = true
		receipt.LastError = ""
		return tx.UpdateReceipt(ctx, receipt)
	})
	if err != nil {
		return err
	}

	s.refreshQueueDepth(ctx)
	return nil
}

func (s *Syncer) refreshQueueDepth(ctx context.Context) {
	ops, err := s.store.ListOperations(ctx, "")
	if err != nil {
		return
	}
	counts := map[domain.OperationStatus]int{domain.OpStatusPending: 0, domain.OpStatusFailed: 0}
	for _, op := range ops {
		counts[op.Status]++
	}
	for status, n := range counts {
		queueDepth.WithLabelValues(string(status)).Set(float64(n))
	}
}
