package server

import (
	"context"
	"fmt"
	"time"

	"tierstore/internal/config"
	"tierstore/internal/store"
)

const (
	settingSourceOverride = "override"
	settingSourceConfig   = "config"

	maskedValue = "********"
)

var secretSettingKeys = map[string]bool{
	"s3.secret_access_key": true,
}

// EffectiveSetting is one overridable key with the value operations will use.
type EffectiveSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// SettingsService manages per-install storage overrides.
type SettingsService struct {
	overrides store.SettingsStore
	cfg       *config.Config
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(overrides store.SettingsStore, cfg *config.Config) *SettingsService {
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}
	return &SettingsService{overrides: overrides, cfg: cfg}
}

// List returns every overridable key with its effective value.
func (s *SettingsService) List(ctx context.Context) ([]EffectiveSetting, error) {
	rows, err := s.overrides.ListSettings(ctx)
	if err != nil {
		return nil, storeFailure(err)
	}
	byKey := make(map[string]store.Setting, len(rows))
	for _, row := range rows {
		byKey[row.Key] = row
	}

	out := make([]EffectiveSetting, 0, len(config.OverridableKeys()))
	for _, key := range config.OverridableKeys() {
		out = append(out, s.effective(key, byKey))
	}
	return out, nil
}

// Get returns the effective value of one key.
func (s *SettingsService) Get(ctx context.Context, key string) (EffectiveSetting, error) {
	if !config.IsOverridableKey(key) {
		return EffectiveSetting{}, notFoundCode(fmt.Errorf("unknown setting: %s", key), ErrCodeSettingNotFound)
	}
	row, ok, err := s.overrides.GetSetting(ctx, key)
	if err != nil {
		return EffectiveSetting{}, storeFailure(err)
	}
	byKey := map[string]store.Setting{}
	if ok {
		byKey[key] = row
	}
	return s.effective(key, byKey), nil
}

// Set stores an override. A value equal to the process config is stored as
// unset.
func (s *SettingsService) Set(ctx context.Context, key, value string) (EffectiveSetting, error) {
	if !isAdmin(ctx) {
		return EffectiveSetting{}, forbidden(fmt.Errorf("only an administrator can change settings"))
	}
	if !config.IsOverridableKey(key) {
		return EffectiveSetting{}, notFoundCode(fmt.Errorf("unknown setting: %s", key), ErrCodeSettingNotFound)
	}
	normalized, err := config.NormalizeSetting(key, value)
	if err != nil {
		return EffectiveSetting{}, badRequestCode(err, ErrCodeInvalidSetting)
	}

	if current, err := s.cfg.Get(key); err == nil && current == normalized {
		if err := s.overrides.DeleteSetting(ctx, key); err != nil {
			return EffectiveSetting{}, storeFailure(err)
		}
	} else if err := s.overrides.SetSetting(ctx, key, normalized); err != nil {
		return EffectiveSetting{}, storeFailure(err)
	}
	return s.Get(ctx, key)
}

// Unset removes an override so the process config applies again.
func (s *SettingsService) Unset(ctx context.Context, key string) (EffectiveSetting, error) {
	if !isAdmin(ctx) {
		return EffectiveSetting{}, forbidden(fmt.Errorf("only an administrator can change settings"))
	}
	if !config.IsOverridableKey(key) {
		return EffectiveSetting{}, notFoundCode(fmt.Errorf("unknown setting: %s", key), ErrCodeSettingNotFound)
	}
	if err := s.overrides.DeleteSetting(ctx, key); err != nil {
		return EffectiveSetting{}, storeFailure(err)
	}
	return s.Get(ctx, key)
}

func (s *SettingsService) effective(key string, overrides map[string]store.Setting) EffectiveSetting {
	out := EffectiveSetting{Key: key, Source: settingSourceConfig}
	if row, ok := overrides[key]; ok {
		out.Value = row.Value
		out.Source = settingSourceOverride
		out.UpdatedAt = row.UpdatedAt
	} else {
		out.Value, _ = s.cfg.Get(key)
	}
	if secretSettingKeys[key] && out.Value != "" {
		out.Value = maskedValue
	}
	return out
}
