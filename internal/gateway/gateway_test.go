package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

func sampleReceipt() *domain.Receipt {
	return &domain.Receipt{
		ID:        "r1",
		Date:      "2025-06-20",
		Company:   "FamilyMart",
		Item:      "Onigiri",
		Price:     150,
		Timestamp: 1750400000000,
		Status:    domain.StatusPendingSync,
	}
}

func TestReceiptFilename(t *testing.T) {
	r := sampleReceipt()
	assert.Equal(t, "2025-06-20_FamilyMart_Onigiri_150.jpg", ReceiptFilename(r, "image/jpeg"))
	assert.Equal(t, "2025-06-20_FamilyMart_Onigiri_150.png", ReceiptFilename(r, "image/png"))
	assert.Equal(t, "2025-06-20_FamilyMart_Onigiri_150.json", ReceiptFilename(r, "application/json"))

	r.Company = "A/B: C"
	r.Item = "  "
	assert.Equal(t, "2025-06-20_A-B- C_unknown_150.jpg", ReceiptFilename(r, ""))
}

func TestNopGateway(t *testing.T) {
	ctx := context.Background()
	var gw RemoteGateway = NopGateway{}

	id, err := gw.UploadReceipt(ctx, sampleReceipt(), nil)
	require.NoError(t, err)
	assert.Equal(t, "r1", id)
	assert.NoError(t, gw.UpdateReceipt(ctx, sampleReceipt(), nil))
	assert.NoError(t, gw.DeleteReceipt(ctx, "r1", ""))
}

func TestNewSelectsBackend(t *testing.T) {
	gw, err := New(context.Background(), Options{Backend: BackendNone})
	require.NoError(t, err)
	assert.IsType(t, NopGateway{}, gw)

	_, err = New(context.Background(), Options{Backend: BackendS3})
	assert.Error(t, err)

	_, err = New(context.Background(), Options{Backend: "ftp"})
	assert.Error(t, err)
}

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

func recordingServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func TestS3GatewayUploadAndDelete(t *testing.T) {
	srv, requests := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	gw, err := NewS3Gateway(&S3Config{
		Endpoint:        srv.URL,
		AccessKeyID:     "key",
		AccessKeySecret: "secret",
		Bucket:          "receipts-bucket",
	})
	require.NoError(t, err)

	img := &domain.Image{ReceiptID: "r1", Data: []byte{0xff, 0xd8, 0xff}, MimeType: "image/jpeg"}
	remoteID, err := gw.UploadReceipt(context.Background(), sampleReceipt(), img)
	require.NoError(t, err)
	assert.Equal(t, "receipts/r1", remoteID)

	reqs := requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/receipts-bucket/receipts/r1.jpg", reqs[0].Path)
	assert.Equal(t, "/receipts-bucket/receipts/r1.json", reqs[1].Path)

	var meta domain.Receipt
	require.NoError(t, json.Unmarshal([]byte(reqs[1].Body), &meta))
	assert.Equal(t, "FamilyMart", meta.Company)

	require.NoError(t, gw.DeleteReceipt(context.Background(), "r1", remoteID))
	reqs = requests()
	require.Len(t, reqs, 6)
	for _, r := range reqs[2:] {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.True(t, strings.HasPrefix(r.Path, "/receipts-bucket/receipts/r1."))
	}
}

func TestS3GatewayRejectsIncompleteConfig(t *testing.T) {
	_, err := NewS3Gateway(&S3Config{Endpoint: "http://localhost"})
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "check_config", gwErr.Op)
}

func TestS3GatewayReportsServerErrors(t *testing.T) {
	srv, _ := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	gw, err := NewS3Gateway(&S3Config{Endpoint: srv.URL, AccessKeyID: "k", AccessKeySecret: "s", Bucket: "b"})
	require.NoError(t, err)

	_, err = gw.UploadReceipt(context.Background(), sampleReceipt(), nil)
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "s3", gwErr.Backend)
}

func newTestDriveGateway(t *testing.T, srv *httptest.Server) *DriveGateway {
	t.Helper()
	gw, err := NewDriveGateway(context.Background(), &DriveConfig{FolderID: "folder-1"},
		option.WithEndpoint(srv.URL+"/drive/v3/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return gw
}

func TestDriveGatewayUpload(t *testing.T) {
	srv, requests := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"drive-file-1"}`))
	})
	gw := newTestDriveGateway(t, srv)

	img := &domain.Image{ReceiptID: "r1", Data: []byte("jpeg-bytes"), MimeType: "image/jpeg"}
	id, err := gw.UploadReceipt(context.Background(), sampleReceipt(), img)
	require.NoError(t, err)
	assert.Equal(t, "drive-file-1", id)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Contains(t, reqs[0].Body, "2025-06-20_FamilyMart_Onigiri_150.jpg")
	assert.Contains(t, reqs[0].Body, "folder-1")
	assert.Contains(t, reqs[0].Body, "jpeg-bytes")
}

func TestDriveGatewayDeleteTreatsNotFoundAsSuccess(t *testing.T) {
	srv, requests := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found"}}`))
	})
	gw := newTestDriveGateway(t, srv)

	require.NoError(t, gw.DeleteReceipt(context.Background(), "r1", "drive-file-1"))
	require.NoError(t, gw.DeleteReceipt(context.Background(), "r1", ""))
	assert.Len(t, requests(), 1)
}

func TestDriveGatewayUnauthorized(t *testing.T) {
	srv, _ := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
	})
	gw := newTestDriveGateway(t, srv)

	r := sampleReceipt()
	r.RemoteID = "drive-file-1"
	err := gw.UpdateReceipt(context.Background(), r, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
