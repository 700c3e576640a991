package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridwanfathin/receipt-sync-service/internal/database"
	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
	"github.com/ridwanfathin/receipt-sync-service/internal/repository"
)

type call struct {
	Op        string
	ReceiptID string
	RemoteID  string
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{fail: map[string]error{}}
}

func (g *fakeGateway) record(op, receiptID, remoteID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call{Op: op, ReceiptID: receiptID, RemoteID: remoteID})
	return g.fail[receiptID]
}

func (g *fakeGateway) failFor(receiptID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.fail, receiptID)
		return
	}
	g.fail[receiptID] = err
}

func (g *fakeGateway) Calls() []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]call(nil), g.calls...)
}

func (g *fakeGateway) UploadReceipt(_ context.Context, r *domain.Receipt, _ *domain.Image) (string, error) {
	if err := g.record("upload", r.ID, ""); err != nil {
		return "", err
	}
	return "remote-" + r.ID, nil
}

func (g *fakeGateway) UpdateReceipt(_ context.Context, r *domain.Receipt, _ *domain.Image) error {
	return g.record("update", r.ID, r.RemoteID)
}

func (g *fakeGateway) DeleteReceipt(_ context.Context, receiptID, remoteID string) error {
	return g.record("delete", receiptID, remoteID)
}

type fixture struct {
	store  *repository.SQLiteStore
	gw     *fakeGateway
	online atomic.Bool
	syncer *Syncer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{store: repository.NewSQLiteStore(db), gw: newFakeGateway()}
	f.online.Store(true)
	f.syncer = New(f.store, f.gw, f.online.Load)
	return f
}

func (f *fixture) addReceipt(t *testing.T, id string, status domain.SyncStatus, kind domain.OperationKind) {
	t.Helper()
	ctx := context.Background()
	r := &domain.Receipt{
		ID: id, Date: "2025-06-20", Company: "FamilyMart", Item: "Coffee", Price: 150,
		Timestamp: 1, Status: status, LocalOnly: status == domain.StatusOffline,
	}
	require.NoError(t, f.store.CreateReceipt(ctx, r))
	f.enqueue(t, id, kind, nil)
}

func (f *fixture) enqueue(t *testing.T, id string, kind domain.OperationKind, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, f.store.Enqueue(context.Background(), &domain.PendingOperation{
		Kind: kind, ReceiptID: id, Payload: raw, Timestamp: 1,
	}))
}

func (f *fixture) receipt(t *testing.T, id string) *domain.Receipt {
	t.Helper()
	r, err := f.store.GetReceiptByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

func TestDrainUploadsAndMarksSynced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addReceipt(t, "r1", domain.StatusOffline, domain.OpUploadReceipt)

	result, err := f.syncer.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Processed: 1, Succeeded: 1}, result)

	r := f.receipt(t, "r1")
	assert.Equal(t, domain.StatusSynced, r.Status)
	assert.True(t, r.Synced)
	assert.False(t, r.LocalOnly)
	assert.Equal(t, "remote-r1", r.RemoteID)

	// Second drain with no mutation in between does nothing
	result, err = f.syncer.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Len(t, f.gw.Calls(), 1)
}

func TestDrainSkipsWhileOffline(t *testing.T) {
	f := newFixture(t)
	f.addReceipt(t, "r1", domain.StatusOffline, domain.OpUploadReceipt)
	f.online.Store(false)

	result, err := f.syncer.Drain(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Offline)
	assert.Empty(t, f.gw.Calls())

	ops, err := f.syncer.Queue(context.Background())
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

func TestDrainPreservesEnqueueOrder(t *testing.T) {
	f := newFixture(t)
	f.addReceipt(t, "b", domain.StatusPendingSync, domain.OpUploadReceipt)
	f.addReceipt(t, "a", domain.StatusPendingSync, domain.OpUploadReceipt)
	f.enqueue(t, "b", domain.OpUpdateReceipt, nil)
	f.enqueue(t, "gone", domain.OpDeleteReceipt, domain.DeletePayload{ID: "gone", RemoteID: "remote-gone"})

	result, err := f.syncer.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Succeeded)

	assert.Equal(t, []call{
		{Op: "upload", ReceiptID: "b"},
		{Op: "upload", ReceiptID: "a"},
		{Op: "update", ReceiptID: "b", RemoteID: "remote-b"},
		{Op: "delete", ReceiptID: "gone", RemoteID: "remote-gone"},
	}, f.gw.Calls())
}

func TestDrainTreatsMissingReceiptAndLocalDeleteAsSuccess(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "deleted", domain.OpUploadReceipt, nil)
	f.enqueue(t, "local", domain.OpDeleteReceipt, domain.DeletePayload{ID: "local"})

	result, err := f.syncer.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Empty(t, f.gw.Calls())
}

func TestAttemptCeiling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addReceipt(t, "bad", domain.StatusPendingSync, domain.OpUploadReceipt)
	f.addReceipt(t, "good", domain.StatusPendingSync, domain.OpUploadReceipt)
	f.gw.failFor("bad", errors.New("503 from remote"))

	for i := 1; i < domain.DefaultMaxAttempts; i++ {
		result, err := f.syncer.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Retried, "pass %d", i)
		assert.Equal(t, domain.StatusPendingSync, f.receipt(t, "bad").Status)
	}

	result, err := f.syncer.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	bad := f.receipt(t, "bad")
	assert.Equal(t, domain.StatusSyncFailed, bad.Status)
	assert.Contains(t, bad.LastError, "503 from remote")
	assert.Equal(t, domain.StatusSynced, f.receipt(t, "good").Status)

	// The failed operation is never drained again, even once the remote recovers
	f.gw.failFor("bad", nil)
	f.addReceipt(t, "later", domain.StatusPendingSync, domain.OpUploadReceipt)
	result, err = f.syncer.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Processed: 1, Succeeded: 1}, result)

	uploadsOfBad := 0
	for _, c := range f.gw.Calls() {
		if c.ReceiptID == "bad" {
			uploadsOfBad++
		}
	}
	assert.Equal(t, domain.DefaultMaxAttempts, uploadsOfBad)

	failed, err := f.store.ListOperations(ctx, domain.OpStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, domain.DefaultMaxAttempts, failed[0].Attempts)
}

func TestRetryRequeuesFailedOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addReceipt(t, "r1", domain.StatusPendingSync, domain.OpUploadReceipt)
	f.gw.failFor("r1", fmt.Errorf("unreachable"))

	for i := 0; i < domain.DefaultMaxAttempts; i++ {
		_, err := f.syncer.Drain(ctx)
		require.NoError(t, err)
	}
	failed, err := f.store.ListOperations(ctx, domain.OpStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	op, err := f.syncer.Retry(ctx, failed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OpStatusPending, op.Status)
	assert.Zero(t, op.Attempts)
	assert.Equal(t, domain.StatusPendingSync, f.receipt(t, "r1").Status)

	f.gw.failFor("r1", nil)
	result, err := f.syncer.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, domain.StatusSynced, f.receipt(t, "r1").Status)

	_, err = f.syncer.Retry(ctx, 9999)
	assert.True(t, domain.IsNotFound(err))
}

func TestDiscardReturnsReceiptToLocalOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addReceipt(t, "r1", domain.StatusPendingSync, domain.OpUploadReceipt)

	ops, err := f.syncer.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	require.NoError(t, f.syncer.Discard(ctx, ops[0].ID))

	r := f.receipt(t, "r1")
	assert.Equal(t, domain.StatusOffline, r.Status)
	assert.True(t, r.LocalOnly)
	assert.False(t, r.Synced)

	ops, err = f.syncer.Queue(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)
	assert.True(t, domain.IsNotFound(f.syncer.Discard(ctx, 1)))
}

func TestDrainStopsWhenConnectionDrops(t *testing.T) {
	f := newFixture(t)
	f.addReceipt(t, "a", domain.StatusPendingSync, domain.OpUploadReceipt)
	f.addReceipt(t, "b", domain.StatusPendingSync, domain.OpUploadReceipt)

	gw := &droppingGateway{fakeGateway: f.gw, online: &f.online}
	s := New(f.store, gw, f.online.Load)

	result, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.True(t, result.Offline)

	pending, err := f.store.ListOperations(context.Background(), domain.OpStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ReceiptID)
	assert.Zero(t, pending[0].Attempts)
}

// droppingGateway goes offline after its first successful upload
type droppingGateway struct {
	*fakeGateway
	online *atomic.Bool
}

func (g *droppingGateway) UploadReceipt(ctx context.Context, r *domain.Receipt, img *domain.Image) (string, error) {
	id, err := g.fakeGateway.UploadReceipt(ctx, r, img)
	g.online.Store(false)
	return id, err
}
