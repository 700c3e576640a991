package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ridwanfathin/receipt-sync-service/internal/database"
	"github.com/ridwanfathin/receipt-sync-service/internal/repository"
)

func newTestManager(t *testing.T, handler http.HandlerFunc) (*Manager, *repository.SQLiteStore) {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := repository.NewSQLiteStore(db)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := NewManager(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/v1/auth/drive/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, store)
	return m, store
}

func tokenHandler(t *testing.T, accessToken string, forms chan<- url.Values) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if forms != nil {
			forms <- r.PostForm
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"token_type":    "Bearer",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		})
	}
}

func TestAuthorizationFlow(t *testing.T) {
	ctx := context.Background()
	forms := make(chan url.Values, 1)
	m, store := newTestManager(t, tokenHandler(t, "access-1", forms))

	assert.False(t, m.Connected(ctx))

	authURL, err := m.AuthURL(ctx)
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, "offline", q.Get("access_type"))
	state := q.Get("state")
	require.NotEmpty(t, state)

	assert.ErrorIs(t, m.Exchange(ctx, "code-1", "forged"), ErrStateMismatch)

	verifier, err := store.GetSetting(ctx, SettingVerifier)
	require.NoError(t, err)

	require.NoError(t, m.Exchange(ctx, "code-1", state))
	form := <-forms
	assert.Equal(t, "code-1", form.Get("code"))
	assert.Equal(t, verifier.Value, form.Get("code_verifier"))

	assert.True(t, m.Connected(ctx))
	_, err = store.GetSetting(ctx, SettingState)
	assert.Error(t, err)

	token, err := m.TokenSource(ctx).Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", token.AccessToken)

	require.NoError(t, m.Disconnect(ctx))
	assert.False(t, m.Connected(ctx))
}

// stickySettings refuses to delete settings
type stickySettings struct {
	SettingsStore
}

func (stickySettings) DeleteSetting(context.Context, string) error {
	return errors.New("disk full")
}

func TestExchangeLogsCleanupFailures(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t, tokenHandler(t, "access-1", nil))
	m.store = stickySettings{SettingsStore: store}

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	authURL, err := m.AuthURL(ctx)
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)

	require.NoError(t, m.Exchange(ctx, "code-1", parsed.Query().Get("state")))
	assert.True(t, m.Connected(ctx))
	assert.Contains(t, buf.String(), "failed to clear "+SettingState+": disk full")
	assert.Contains(t, buf.String(), "failed to clear "+SettingVerifier+": disk full")
}

func TestTokenSourcePersistsRefreshedToken(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t, tokenHandler(t, "access-2", nil))

	expired := &oauth2.Token{
		AccessToken:  "stale",
		TokenType:    "Bearer",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	}
	require.NoError(t, m.saveToken(ctx, expired))

	token, err := m.TokenSource(ctx).Token()
	require.NoError(t, err)
	assert.Equal(t, "access-2", token.AccessToken)

	stored, err := store.GetSetting(ctx, SettingToken)
	require.NoError(t, err)
	assert.Contains(t, stored.Value, "access-2")
}

func TestTokenSourceWithoutToken(t *testing.T) {
	m, _ := newTestManager(t, tokenHandler(t, "unused", nil))
	_, err := m.TokenSource(context.Background()).Token()
	assert.ErrorIs(t, err, ErrNotConnected)
}
