package store

import (
	"context"
	"database/sql"
	"time"
)

// Setting is one per-install configuration override.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Settings returns all overrides keyed by name.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	list, err := s.ListSettings(ctx)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(list))
	for _, setting := range list {
		values[setting.Key] = setting.Value
	}
	return values, nil
}

// ListSettings returns all overrides ordered by key.
func (s *Store) ListSettings(ctx context.Context) ([]Setting, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value, updated_at FROM settings ORDER BY key ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := []Setting{}
	for rows.Next() {
		var setting Setting
		var updatedAt string
		if err := rows.Scan(&setting.Key, &setting.Value, &updatedAt); err != nil {
			return nil, err
		}
		parsed, err := parseTime(updatedAt)
		if err != nil {
			return nil, err
		}
		setting.UpdatedAt = parsed
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

// GetSetting returns one override. ok is false when the key is unset.
func (s *Store) GetSetting(ctx context.Context, key string) (setting Setting, ok bool, err error) {
	var updatedAt string
	err = s.db.QueryRowContext(ctx, "SELECT key, value, updated_at FROM settings WHERE key = ?", key).
		Scan(&setting.Key, &setting.Value, &updatedAt)
	if err == sql.ErrNoRows {
		return Setting{}, false, nil
	}
	if err != nil {
		return Setting{}, false, err
	}
	setting.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return Setting{}, false, err
	}
	return setting, true, nil
}

// SetSetting upserts one override.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, formatTime(time.Now()))
	return err
}

// DeleteSetting removes one override. Removing an unset key is not an error.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
	return err
}
