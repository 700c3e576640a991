package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for receipt dates
const DateLayout = "2006-01-02"

// SyncStatus describes a receipt's relationship to the remote store
type SyncStatus string

const (
	StatusOffline     SyncStatus = "offline"
	StatusPendingSync SyncStatus = "pending_sync"
	StatusSynced      SyncStatus = "synced"
	// StatusSyncFailed marks a receipt whose queued operation exhausted its attempts.
	StatusSyncFailed SyncStatus = "sync_failed"
)

// Valid reports whether s is a known status
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusOffline, StatusPendingSync, StatusSynced, StatusSyncFailed:
		return true
	}
	return false
}

// Price is a non-negative amount without minor currency units.
// It decodes from either a JSON number or a digit string ("150").
type Price int64

// UnmarshalJSON accepts 150, "150" and "" (zero)
func (p *Price) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*p = 0
			return nil
		}
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid price %q: must be a whole number", raw)
	}
	*p = Price(value)
	return nil
}

// Receipt represents a stored receipt together with its sync metadata
type Receipt struct {
	ID        string     `json:"id"`
	Date      string     `json:"date"`
	Company   string     `json:"company"`
	Item      string     `json:"item"`
	Price     Price      `json:"price"`
	Timestamp int64      `json:"timestamp"`
	Status    SyncStatus `json:"status"`
	Synced    bool       `json:"synced"`
	LocalOnly bool       `json:"localOnly"`
	RemoteID  string     `json:"remoteId,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

// Time returns the receipt timestamp as a time.Time
func (r *Receipt) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// MarkSynced records a successful remote sync
func (r *Receipt) MarkSynced(remoteID string) {
	if remoteID != "" {
		r.RemoteID = remoteID
	}
	r.Status = StatusSynced
	r.Synced = true
	r.LocalOnly = false
	r.LastError = ""
}

// MarkSyncFailed records that the receipt's queued operation gave up
func (r *Receipt) MarkSyncFailed(reason string) {
	r.Status = StatusSyncFailed
	r.Synced = false
	r.LastError = reason
}

// ReceiptInput holds the user-visible fields of a receipt
type ReceiptInput struct {
	Date    string `json:"date" validate:"required,datetime=2006-01-02"`
	Company string `json:"company" validate:"max=200"`
	Item    string `json:"item" validate:"max=200"`
	Price   Price  `json:"price" validate:"min=0"`
}

// ReceiptUpdate holds a partial update; nil fields are left untouched
type ReceiptUpdate struct {
	Date    *string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Company *string `json:"company,omitempty" validate:"omitempty,max=200"`
	Item    *string `json:"item,omitempty" validate:"omitempty,max=200"`
	Price   *Price  `json:"price,omitempty" validate:"omitempty,min=0"`
}

// Apply merges the update into the receipt
func (u ReceiptUpdate) Apply(r *Receipt) {
	if u.Date != nil {
		r.Date = *u.Date
	}
	if u.Company != nil {
		r.Company = *u.Company
	}
	if u.Item != nil {
		r.Item = *u.Item
	}
	if u.Price != nil {
		r.Price = *u.Price
	}
}

// ReceiptFilter represents filters for querying receipts. Empty fields match everything.
type ReceiptFilter struct {
	Date    string
	Status  SyncStatus
	Company string
}

// Matches reports whether the receipt satisfies every set filter
func (f ReceiptFilter) Matches(r *Receipt) bool {
	if f.Date != "" && r.Date != f.Date {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Company != "" && !strings.Contains(strings.ToLower(r.Company), strings.ToLower(f.Company)) {
		return false
	}
	return true
}

// StorageStats summarises the local store
type StorageStats struct {
	TotalReceipts     int  `json:"totalReceipts"`
	SyncedReceipts    int  `json:"syncedReceipts"`
	OfflineReceipts   int  `json:"offlineReceipts"`
	FailedReceipts    int  `json:"failedReceipts"`
	PendingOperations int  `json:"pendingSync"`
	FailedOperations  int  `json:"failedOperations"`
	IsOnline          bool `json:"isOnline"`
}

// Export is the backup document produced by the export operation
type Export struct {
	Receipts   []Receipt `json:"receipts"`
	ExportDate string    `json:"exportDate"`
	Version    int       `json:"version"`
}

// Setting is a named value persisted in the settings table
type Setting struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updatedAt"`
}
