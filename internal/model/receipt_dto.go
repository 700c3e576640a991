package model

import "github.com/ridwanfathin/receipt-sync-service/internal/domain"

// ReceiptsListResponse represents a filtered list of receipts
type ReceiptsListResponse struct {
	Data  []domain.Receipt `json:"data"`
	Count int              `json:"count"`
}

// SyncResponse reports the outcome of one drain pass
type SyncResponse struct {
	Processed int  `json:"processed"`
	Succeeded int  `json:"succeeded"`
	Retried   int  `json:"retried"`
	Failed    int  `json:"failed"`
	Offline   bool `json:"offline"`
}

// SyncQueueResponse lists queued operations
type SyncQueueResponse struct {
	Data  []domain.PendingOperation `json:"data"`
	Count int                       `json:"count"`
}

// NetworkStatusRequest overrides the connectivity state
type NetworkStatusRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// NetworkStatusResponse reports the connectivity state
type NetworkStatusResponse struct {
	Online bool `json:"online"`
}

// SettingRequest sets the value of a setting
type SettingRequest struct {
	Value string `json:"value"`
}

// DriveStatusResponse reports whether a Drive account is linked
type DriveStatusResponse struct {
	Configured bool `json:"configured"`
	Connected  bool `json:"connected"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail represents detailed error information
type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
