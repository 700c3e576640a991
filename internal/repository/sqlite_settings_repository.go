package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

// GetSetting retrieves a setting by key
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (*domain.Setting, error) {
	var setting domain.Setting
	err := s.q.QueryRowContext(ctx, `SELECT key, value, updated_at FROM settings WHERE key = ?`, key).
		Scan(&setting.Key, &setting.Value, &setting.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("setting %s: %w", key, domain.ErrNotFound)
		}
		return nil, &domain.StoreError{Op: "get_setting", Err: err}
	}
	return &setting, nil
}

// SetSetting creates or replaces a setting
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return &domain.StoreError{Op: "set_setting", Err: err}
	}
	return nil
}

// DeleteSetting removes a setting; a missing key is not an error
func (s *SQLiteStore) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return &domain.StoreError{Op: "delete_setting", Err: err}
	}
	return nil
}

// ListSettings returns all settings ordered by key
func (s *SQLiteStore) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, &domain.StoreError{Op: "list_settings", Err: err}
	}
	defer rows.Close()

	settings := []domain.Setting{}
	for rows.Next() {
		var setting domain.Setting
		if err := rows.Scan(&setting.Key, &setting.Value, &setting.UpdatedAt); err != nil {
			return nil, &domain.StoreError{Op: "scan_setting", Err: err}
		}
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "list_settings", Err: err}
	}
	return settings, nil
}
