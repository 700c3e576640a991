package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridwanfathin/receipt-sync-service/internal/config"
	"github.com/ridwanfathin/receipt-sync-service/internal/database"
	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
	"github.com/ridwanfathin/receipt-sync-service/internal/handler"
	"github.com/ridwanfathin/receipt-sync-service/internal/network"
	"github.com/ridwanfathin/receipt-sync-service/internal/repository"
	"github.com/ridwanfathin/receipt-sync-service/internal/service"
	"github.com/ridwanfathin/receipt-sync-service/internal/syncer"
	"github.com/ridwanfathin/receipt-sync-service/internal/worker"
)

const testToken = "test-token"

// remoteLog records the remote calls replayed by the syncer
type remoteLog struct {
	mu    sync.Mutex
	calls []string
}

func (r *remoteLog) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *remoteLog) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *remoteLog) UploadReceipt(_ context.Context, receipt *domain.Receipt, _ *domain.Image) (string, error) {
	r.add("upload " + receipt.ID)
	return "remote-" + receipt.ID, nil
}

func (r *remoteLog) UpdateReceipt(_ context.Context, receipt *domain.Receipt, _ *domain.Image) error {
	r.add("update " + receipt.ID)
	return nil
}

func (r *remoteLog) DeleteReceipt(_ context.Context, receiptID, _ string) error {
	r.add("delete " + receiptID)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *remoteLog) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(context.Background(), t.TempDir())
	require.NoError(t, err)
	store := repository.NewSQLiteStore(db)
	monitor := network.NewMonitor(network.Config{InitialOnline: false})
	runner := worker.NewRunner(16)
	remote := &remoteLog{}

	svc := service.NewReceiptService(store, runner, syncer.New(store, remote, monitor.Online), monitor, nil, service.Config{})

	cfg := &config.Config{
		Port:            0,
		APIToken:        testToken,
		AllowedOrigins:  []string{"*"},
		LogFormat:       "json",
		ShutdownTimeout: time.Second,
	}
	srv := NewServer(cfg, Handlers{
		Receipt: handler.NewReceiptHandler(svc),
		Sync:    handler.NewSyncHandler(svc),
	}, io.Discard)

	ts := httptest.NewServer(srv.GetRouter())
	t.Cleanup(func() {
		ts.Close()
		runner.Stop()
		db.Close()
	})
	return ts, remote
}

func call(t *testing.T, client *http.Client, method, url string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err, "Failed to marshal request body")
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err, "Failed to create request")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := client.Do(req)
	require.NoError(t, err, "Failed to execute request")
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestPublicEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "receipt_http_requests_total")

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err = client.Get(ts.URL + "/api-docs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api-docs/doc.json")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "/v1/receipts")
}

func TestAPIRequiresToken(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/receipts")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// TestOfflineFirstFlow walks a receipt through offline capture, reconnect and deletion
func TestOfflineFirstFlow(t *testing.T) {
	ts, remote := newTestServer(t)
	client := &http.Client{Timeout: 10 * time.Second}
	baseURL := ts.URL + "/v1"

	var receiptID string

	t.Run("CreateReceiptOffline", func(t *testing.T) {
		resp, body := call(t, client, http.MethodPost, baseURL+"/receipts", map[string]interface{}{
			"date": "2025-06-20", "company": "FamilyMart", "item": "Coffee", "price": "150",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

		var receipt domain.Receipt
		require.NoError(t, json.Unmarshal(body, &receipt))
		assert.Equal(t, domain.StatusOffline, receipt.Status)
		assert.True(t, receipt.LocalOnly)
		receiptID = receipt.ID
	})
	require.NotEmpty(t, receiptID)

	t.Run("UpdateWhileOffline", func(t *testing.T) {
		resp, body := call(t, client, http.MethodPut, baseURL+"/receipts/"+receiptID, map[string]interface{}{"price": 180})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		assert.Empty(t, remote.snapshot())
	})

	t.Run("Reconnect", func(t *testing.T) {
		resp, body := call(t, client, http.MethodPut, baseURL+"/network", map[string]bool{"online": true})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		require.Eventually(t, func() bool {
			_, body := call(t, client, http.MethodGet, baseURL+"/receipts/"+receiptID, nil)
			var receipt domain.Receipt
			return json.Unmarshal(body, &receipt) == nil && receipt.Status == domain.StatusSynced
		}, 2*time.Second, 10*time.Millisecond)

		calls := remote.snapshot()
		require.NotEmpty(t, calls)
		assert.Equal(t, "upload "+receiptID, calls[0])
	})

	t.Run("DeleteOnline", func(t *testing.T) {
		resp, _ := call(t, client, http.MethodDelete, baseURL+"/receipts/"+receiptID, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		calls := remote.snapshot()
		assert.Equal(t, "delete "+receiptID, calls[len(calls)-1])

		resp, body := call(t, client, http.MethodGet, baseURL+"/sync/queue", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), fmt.Sprintf(`"count":%d`, 0))
	})
}
