package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridwanfathin/receipt-sync-service/internal/config"
	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
	"github.com/ridwanfathin/receipt-sync-service/internal/gateway"
)

func TestNewLocalOnly(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir(), RemoteBackend: gateway.BackendNone, StartOnline: true, RunnerQueueSize: 4}

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, gateway.NopGateway{}, a.Remote)

	receipt, err := a.Service.SaveReceipt(context.Background(), domain.ReceiptInput{Date: "2025-06-20"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSynced, receipt.Status)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir(), RemoteBackend: "ftp"}

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
