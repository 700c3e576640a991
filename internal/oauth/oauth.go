// Package oauth runs the PKCE authorization-code flow for Google Drive and
// keeps the resulting token in the settings table.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

// Settings keys used by the flow
const (
	SettingState    = "drive_oauth_state"
	SettingVerifier = "drive_oauth_verifier"
	SettingToken    = "drive_token"
)

var (
	// ErrNotConnected is returned when no Drive token has been stored yet
	ErrNotConnected = errors.New("google drive is not connected")
	// ErrStateMismatch is returned when the callback state does not match the stored one
	ErrStateMismatch = errors.New("oauth state mismatch")
)

// SettingsStore is the subset of the settings repository the flow needs
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (*domain.Setting, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Config holds the OAuth client registration
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint defaults to Google's
	Endpoint oauth2.Endpoint
}

// Manager drives the authorization flow and hands out token sources
type Manager struct {
	conf  *oauth2.Config
	store SettingsStore
}

// NewManager creates a new Manager
func NewManager(config Config, store SettingsStore) *Manager {
	endpoint := config.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}

	return &Manager{
		conf: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{drive.DriveFileScope},
		},
		store: store,
	}
}

// Configured reports whether a client ID is set
func (m *Manager) Configured() bool {
	return m.conf.ClientID != ""
}

// AuthURL starts a new flow and returns the consent page URL
func (m *Manager) AuthURL(ctx context.Context) (string, error) {
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	if err := m.store.SetSetting(ctx, SettingVerifier, verifier); err != nil {
		return "", fmt.Errorf("failed to store verifier: %w", err)
	}
	if err := m.store.SetSetting(ctx, SettingState, state); err != nil {
		return "", fmt.Errorf("failed to store state: %w", err)
	}

	return m.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	), nil
}

// Exchange completes the flow with the code returned to the redirect URL
func (m *Manager) Exchange(ctx context.Context, code, state string) error {
	stored, err := m.store.GetSetting(ctx, SettingState)
	if err != nil {
		if domain.IsNotFound(err) {
			return ErrStateMismatch
		}
		return err
	}
	if stored.Value != state {
		return ErrStateMismatch
	}

	verifier, err := m.store.GetSetting(ctx, SettingVerifier)
	if err != nil {
		return fmt.Errorf("failed to load verifier: %w", err)
	}

	token, err := m.conf.Exchange(ctx, code, oauth2.VerifierOption(verifier.Value))
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}

	if err := m.saveToken(ctx, token); err != nil {
		return err
	}

	for _, key := range []string{SettingState, SettingVerifier} {
		if err := m.store.DeleteSetting(ctx, key); err != nil && !domain.IsNotFound(err) {
			log.Printf("[oauth] failed to clear %s: %v", key, err)
		}
	}
	log.Println("[oauth] Google Drive connected")
	return nil
}

// Connected reports whether a token is stored
func (m *Manager) Connected(ctx context.Context) bool {
	_, err := m.loadToken(ctx)
	return err == nil
}

// Disconnect forgets the stored token
func (m *Manager) Disconnect(ctx context.Context) error {
	return m.store.DeleteSetting(ctx, SettingToken)
}

// TokenSource returns a token source that loads the stored token on first use
// and writes refreshed tokens back to the settings table.
// ctx is used for token refresh requests and must outlive the source.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &persistingSource{ctx: ctx, m: m}
}

type persistingSource struct {
	ctx  context.Context
	m    *Manager
	mu   sync.Mutex
	base oauth2.TokenSource
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.base == nil {
		stored, err := s.m.loadToken(s.ctx)
		if err != nil {
			return nil, err
		}
		s.base = s.m.conf.TokenSource(s.ctx, stored)
		s.last = stored.AccessToken
	}

	token, err := s.base.Token()
	if err != nil {
		// Drop the cached source so a re-authorization is picked up next time
		s.base = nil
		return nil, err
	}

	if token.AccessToken != s.last {
		if err := s.m.saveToken(s.ctx, token); err != nil {
			log.Printf("[oauth] failed to persist refreshed token: %v", err)
		}
		s.last = token.AccessToken
	}
	return token, nil
}

func (m *Manager) loadToken(ctx context.Context) (*oauth2.Token, error) {
	setting, err := m.store.GetSetting(ctx, SettingToken)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, ErrNotConnected
		}
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(setting.Value), &token); err != nil {
		return nil, fmt.Errorf("stored token is corrupt: %w", err)
	}
	return &token, nil
}

func (m *Manager) saveToken(ctx context.Context, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := m.store.SetSetting(ctx, SettingToken, string(data)); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}
