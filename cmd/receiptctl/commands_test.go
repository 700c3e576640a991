package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		dataDir, exportOutput, drainForce, clearYes = "", "", false, false
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedReceipt(t *testing.T, dir string) {
	t.Helper()
	dataDir = dir
	a, err := openApp(context.Background())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Service.SaveReceipt(context.Background(), domain.ReceiptInput{Date: "2025-06-20", Company: "Lawson", Price: 120})
	require.NoError(t, err)
}

func TestStatsAndQueue(t *testing.T) {
	t.Setenv("REMOTE_BACKEND", "none")
	t.Setenv("START_ONLINE", "false")
	dir := t.TempDir()
	seedReceipt(t, dir)

	out, err := runCLI(t, "stats", "--data-dir", dir)
	require.NoError(t, err)
	var stats domain.StorageStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.TotalReceipts)
	assert.Equal(t, 1, stats.PendingOperations)

	out, err = runCLI(t, "queue", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "upload_receipt")
}

func TestDrainForce(t *testing.T) {
	t.Setenv("REMOTE_BACKEND", "none")
	t.Setenv("START_ONLINE", "false")
	dir := t.TempDir()
	seedReceipt(t, dir)

	out, err := runCLI(t, "drain", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Offline")

	out, err = runCLI(t, "drain", "--force", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Drained")

	out, err = runCLI(t, "queue", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Queue is empty")
}

func TestClearRequiresConfirmation(t *testing.T) {
	t.Setenv("REMOTE_BACKEND", "none")
	dir := t.TempDir()

	_, err := runCLI(t, "clear", "--data-dir", dir)
	assert.Error(t, err)

	out, err := runCLI(t, "clear", "--yes", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")
}

func TestRetryRejectsBadID(t *testing.T) {
	_, err := runCLI(t, "retry", "abc")
	assert.ErrorContains(t, err, "invalid operation ID")
}
