package domain

import "encoding/json"

// DefaultMaxAttempts is the retry ceiling of a pending operation
const DefaultMaxAttempts = 3

// OperationKind is the remote mutation a pending operation replays
type OperationKind string

const (
	OpUploadReceipt OperationKind = "upload_receipt"
	OpUpdateReceipt OperationKind = "update_receipt"
	OpDeleteReceipt OperationKind = "delete_receipt"
)

// OperationStatus tells whether an operation is still drained
type OperationStatus string

const (
	OpStatusPending OperationStatus = "pending"
	OpStatusFailed  OperationStatus = "failed"
)

// PendingOperation is a queued remote mutation awaiting network availability
type PendingOperation struct {
	ID          int64           `json:"id"`
	Kind        OperationKind   `json:"type"`
	ReceiptID   string          `json:"receiptId"`
	Payload     json.RawMessage `json:"data"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	Status      OperationStatus `json:"status"`
	LastError   string          `json:"lastError,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

// Exhausted reports whether the operation reached its retry ceiling
func (op *PendingOperation) Exhausted() bool {
	return op.Attempts >= op.MaxAttempts
}

// DeletePayload is the payload of a delete_receipt operation
type DeletePayload struct {
	ID       string `json:"id"`
	RemoteID string `json:"remoteId,omitempty"`
}
