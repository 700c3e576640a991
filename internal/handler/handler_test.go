package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridwanfathin/receipt-sync-service/internal/database"
	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
	"github.com/ridwanfathin/receipt-sync-service/internal/gateway"
	"github.com/ridwanfathin/receipt-sync-service/internal/model"
	"github.com/ridwanfathin/receipt-sync-service/internal/network"
	"github.com/ridwanfathin/receipt-sync-service/internal/oauth"
	"github.com/ridwanfathin/receipt-sync-service/internal/repository"
	"github.com/ridwanfathin/receipt-sync-service/internal/service"
	"github.com/ridwanfathin/receipt-sync-service/internal/syncer"
	"github.com/ridwanfathin/receipt-sync-service/internal/worker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, online bool) *gin.Engine {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), t.TempDir())
	require.NoError(t, err)

	store := repository.NewSQLiteStore(db)
	monitor := network.NewMonitor(network.Config{InitialOnline: online})
	runner := worker.NewRunner(16)
	t.Cleanup(func() {
		runner.Stop()
		db.Close()
	})

	svc := service.NewReceiptService(store, runner, syncer.New(store, gateway.NopGateway{}, monitor.Online), monitor, nil, service.Config{})

	router := gin.New()
	api := router.Group("/v1")
	NewReceiptHandler(svc).RegisterRoutes(api)
	NewSyncHandler(svc).RegisterRoutes(api)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doMultipart(t *testing.T, router *gin.Engine, method, path string, fields map[string]string, image []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "receipt.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestCreateAndGetReceipt(t *testing.T) {
	router := newTestRouter(t, true)

	w := doJSON(t, router, http.MethodPost, "/v1/receipts", map[string]interface{}{
		"date": "2025-06-20", "company": "FamilyMart", "item": "Coffee", "price": "150",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[domain.Receipt](t, w)
	assert.Equal(t, domain.StatusSynced, created.Status)
	assert.Equal(t, domain.Price(150), created.Price)

	w = doJSON(t, router, http.MethodGet, "/v1/receipts/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "FamilyMart", decode[domain.Receipt](t, w).Company)

	w = doJSON(t, router, http.MethodGet, "/v1/receipts?company=family", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[model.ReceiptsListResponse](t, w).Count)
}

func TestCreateReceiptValidation(t *testing.T) {
	router := newTestRouter(t, true)

	w := doJSON(t, router, http.MethodPost, "/v1/receipts", map[string]interface{}{"date": "20-06-2025"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[model.ErrorResponse](t, w)
	require.NotEmpty(t, resp.Details)
	assert.Equal(t, "date", resp.Details[0].Field)

	w = doJSON(t, router, http.MethodPost, "/v1/receipts", map[string]interface{}{"date": "2025-06-20", "price": "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReceiptNotFoundAndBadFilter(t *testing.T) {
	router := newTestRouter(t, true)

	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodGet, "/v1/receipts/missing", nil).Code)
	assert.Equal(t, http.StatusNoContent, doJSON(t, router, http.MethodDelete, "/v1/receipts/missing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodGet, "/v1/receipts?status=lost", nil).Code)
}

func TestUpdateAndDeleteReceipt(t *testing.T) {
	router := newTestRouter(t, true)
	created := decode[domain.Receipt](t, doJSON(t, router, http.MethodPost, "/v1/receipts", map[string]interface{}{
		"date": "2025-06-20", "company": "Lawson", "price": 300,
	}))

	w := doJSON(t, router, http.MethodPut, "/v1/receipts/"+created.ID, map[string]interface{}{"item": "Onigiri"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[domain.Receipt](t, w)
	assert.Equal(t, "Onigiri", updated.Item)
	assert.Equal(t, "Lawson", updated.Company)

	assert.Equal(t, http.StatusNoContent, doJSON(t, router, http.MethodDelete, "/v1/receipts/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodGet, "/v1/receipts/"+created.ID, nil).Code)
}

func TestReceiptImageRoundTrip(t *testing.T) {
	router := newTestRouter(t, true)
	created := decode[domain.Receipt](t, doJSON(t, router, http.MethodPost, "/v1/receipts", map[string]interface{}{"date": "2025-06-20"}))
	data := pngBytes(t, 8, 8)

	w := doMultipart(t, router, http.MethodPut, "/v1/receipts/"+created.ID+"/image", nil, data)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", decode[domain.Image](t, w).MimeType)

	w = doJSON(t, router, http.MethodGet, "/v1/receipts/"+created.ID+"/image", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, data, w.Body.Bytes())

	w = doJSON(t, router, http.MethodGet, "/v1/receipts/"+created.ID+"/image?thumbnail=4", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	w = doJSON(t, router, http.MethodGet, "/v1/receipts/"+created.ID+"/image?thumbnail=big", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doMultipart(t, router, http.MethodPut, "/v1/receipts/"+created.ID+"/image", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doMultipart(t, router, http.MethodPut, "/v1/receipts/"+created.ID+"/image", nil, []byte("not an image"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCaptureReceipt(t *testing.T) {
	router := newTestRouter(t, false)

	w := doMultipart(t, router, http.MethodPost, "/v1/receipts/capture",
		map[string]string{"date": "2025-06-20", "company": "Seven", "price": "480"}, pngBytes(t, 40, 20))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	receipt := decode[domain.Receipt](t, w)
	assert.Equal(t, domain.StatusOffline, receipt.Status)
	assert.True(t, receipt.LocalOnly)

	w = doJSON(t, router, http.MethodGet, "/v1/receipts/"+receipt.ID+"/image", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	w = doMultipart(t, router, http.MethodPost, "/v1/receipts/capture",
		map[string]string{"date": "2025-06-20"}, []byte("not an image"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doMultipart(t, router, http.MethodPost, "/v1/receipts/capture",
		map[string]string{"date": "2025-06-20", "price": "12.5"}, pngBytes(t, 4, 4))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanReceiptWithoutVisionFallsBack(t *testing.T) {
	router := newTestRouter(t, true)

	w := doMultipart(t, router, http.MethodPost, "/v1/receipts/scan", nil, pngBytes(t, 16, 16))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[service.ScanResult](t, w)
	assert.False(t, result.Extracted)
	assert.NotEmpty(t, result.Suggestion.Date)
}

func TestOfflineQueueAndReconnect(t *testing.T) {
	router := newTestRouter(t, false)
	created := decode[domain.Receipt](t, doJSON(t, router, http.MethodPost, "/v1/receipts", map[string]interface{}{"date": "2025-06-20"}))
	assert.Equal(t, domain.StatusOffline, created.Status)

	w := doJSON(t, router, http.MethodGet, "/v1/sync/queue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	queue := decode[model.SyncQueueResponse](t, w)
	require.Equal(t, 1, queue.Count)
	assert.Equal(t, domain.OpUploadReceipt, queue.Data[0].Kind)

	w = doJSON(t, router, http.MethodPost, "/v1/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[model.SyncResponse](t, w).Offline)

	w = doJSON(t, router, http.MethodPut, "/v1/network", map[string]bool{"online": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[model.NetworkStatusResponse](t, w).Online)

	require.Eventually(t, func() bool {
		w := doJSON(t, router, http.MethodGet, "/v1/receipts/"+created.ID, nil)
		return decode[domain.Receipt](t, w).Status == domain.StatusSynced
	}, 2*time.Second, 10*time.Millisecond)

	w = doJSON(t, router, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[domain.StorageStats](t, w)
	assert.Equal(t, 1, stats.SyncedReceipts)
	assert.Equal(t, 0, stats.PendingOperations)
	assert.True(t, stats.IsOnline)
}

func TestSyncQueueOperationErrors(t *testing.T) {
	router := newTestRouter(t, false)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodPost, "/v1/sync/queue/abc/retry", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodPost, "/v1/sync/queue/99/retry", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodDelete, "/v1/sync/queue/0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodPut, "/v1/network", map[string]string{}).Code)
}

func TestDiscardOperation(t *testing.T) {
	router := newTestRouter(t, false)
	doJSON(t, router, http.MethodPost, "/v1/receipts", map[string]interface{}{"date": "2025-06-20"})

	queue := decode[model.SyncQueueResponse](t, doJSON(t, router, http.MethodGet, "/v1/sync/queue", nil))
	require.Len(t, queue.Data, 1)

	w := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/v1/sync/queue/%d", queue.Data[0].ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, decode[model.SyncQueueResponse](t, doJSON(t, router, http.MethodGet, "/v1/sync/queue", nil)).Count)
}

func TestExportAndClear(t *testing.T) {
	router := newTestRouter(t, true)
	doJSON(t, router, http.MethodPost, "/v1/receipts", map[string]interface{}{"date": "2025-06-20"})

	w := doJSON(t, router, http.MethodGet, "/v1/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "receipts-backup-")
	export := decode[domain.Export](t, w)
	assert.Len(t, export.Receipts, 1)

	assert.Equal(t, http.StatusNoContent, doJSON(t, router, http.MethodDelete, "/v1/data", nil).Code)
	assert.Equal(t, 0, decode[model.ReceiptsListResponse](t, doJSON(t, router, http.MethodGet, "/v1/receipts", nil)).Count)
}

func TestSettings(t *testing.T) {
	router := newTestRouter(t, true)

	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodGet, "/v1/settings/theme", nil).Code)

	w := doJSON(t, router, http.MethodPut, "/v1/settings/theme", model.SettingRequest{Value: "dark"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "dark", decode[domain.Setting](t, w).Value)

	assert.Equal(t, http.StatusNoContent, doJSON(t, router, http.MethodDelete, "/v1/settings/theme", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodGet, "/v1/settings/theme", nil).Code)
}

type fakeDriveAuth struct {
	configured bool
	connected  bool
	exchangeFn func(code, state string) error
}

func (f *fakeDriveAuth) Configured() bool { return f.configured }

func (f *fakeDriveAuth) AuthURL(context.Context) (string, error) {
	return "https://accounts.example/auth?state=s1", nil
}

func (f *fakeDriveAuth) Exchange(_ context.Context, code, state string) error {
	if f.exchangeFn != nil {
		return f.exchangeFn(code, state)
	}
	f.connected = true
	return nil
}

func (f *fakeDriveAuth) Connected(context.Context) bool { return f.connected }

func (f *fakeDriveAuth) Disconnect(context.Context) error {
	f.connected = false
	return nil
}

func newDriveRouter(auth DriveAuthenticator) *gin.Engine {
	router := gin.New()
	api := router.Group("/v1")
	NewDriveHandler(auth).RegisterRoutes(api, api)
	return router
}

func TestDriveConnectRedirects(t *testing.T) {
	router := newDriveRouter(&fakeDriveAuth{configured: true})

	w := doJSON(t, router, http.MethodGet, "/v1/auth/drive", nil)
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "https://accounts.example/auth?state=s1", w.Header().Get("Location"))

	w = doJSON(t, router, http.MethodGet, "/v1/auth/drive?response_type=json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "accounts.example")
}

func TestDriveConnectNotConfigured(t *testing.T) {
	router := newDriveRouter(&fakeDriveAuth{})
	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodGet, "/v1/auth/drive", nil).Code)
}

func TestDriveCallback(t *testing.T) {
	auth := &fakeDriveAuth{configured: true}
	router := newDriveRouter(auth)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodGet, "/v1/auth/drive/callback", nil).Code)

	w := doJSON(t, router, http.MethodGet, "/v1/auth/drive/callback?code=c1&state=s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[model.DriveStatusResponse](t, w).Connected)

	w = doJSON(t, router, http.MethodGet, "/v1/auth/drive/status", nil)
	assert.True(t, decode[model.DriveStatusResponse](t, w).Connected)

	assert.Equal(t, http.StatusNoContent, doJSON(t, router, http.MethodDelete, "/v1/auth/drive", nil).Code)
	assert.False(t, auth.connected)
}

func TestDriveCallbackErrors(t *testing.T) {
	auth := &fakeDriveAuth{configured: true, exchangeFn: func(_, _ string) error { return oauth.ErrStateMismatch }}
	router := newDriveRouter(auth)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodGet, "/v1/auth/drive/callback?code=c&state=x", nil).Code)

	auth.exchangeFn = func(_, _ string) error { return errors.New("boom") }
	assert.Equal(t, http.StatusInternalServerError, doJSON(t, router, http.MethodGet, "/v1/auth/drive/callback?code=c&state=x", nil).Code)
}
