package config

import (
	"fmt"
	"sort"

	"tierstore/internal/models"
)

// overridableKeys may be changed per install through the settings table.
var overridableKeys = []string{
	"storage.location",
	"storage.s3_cache",
	"storage.s3_delete",
	"storage.degrade_read_errors",
	"s3.endpoint_url",
	"s3.region",
	"s3.api_version",
	"s3.use_ssl",
	"s3.verify",
	"s3.access_key_id",
	"s3.secret_access_key",
	"s3.bucket",
}

// SettingError reports an invalid storage setting value.
type SettingError struct {
	Key string
	Err error
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("invalid setting %s: %v", e.Key, e.Err)
}

func (e *SettingError) Unwrap() error { return e.Err }

// OverridableKeys returns the keys accepted by the settings table.
func OverridableKeys() []string {
	return overridableKeys
}

// IsOverridableKey reports whether key can be set per install.
func IsOverridableKey(key string) bool {
	for _, k := range overridableKeys {
		if k == key {
			return true
		}
	}
	return false
}

// NormalizeSetting validates a per-install override and returns its canonical
// string form.
func NormalizeSetting(key, value string) (string, error) {
	if !IsOverridableKey(key) {
		return "", &SettingError{Key: key, Err: fmt.Errorf("not an overridable key")}
	}
	parsed, err := parseSetValue(key, value)
	if err != nil {
		return "", &SettingError{Key: key, Err: err}
	}
	return fmt.Sprint(parsed), nil
}

// StorageSettings is the effective storage configuration for one operation.
type StorageSettings struct {
	Location          models.Tier
	Tenant            string
	FilestoreDir      string
	CacheDir          string
	CacheEnabled      bool
	RemoteDelete      bool
	DegradeReadErrors bool
	ForceBatchSize    int
	S3                S3Config
}

// Resolve layers per-install overrides over the process config.
// Override values win over file and environment values, which win over defaults.
func (c *Config) Resolve(overrides map[string]string) (StorageSettings, error) {
	effective := *c

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !IsOverridableKey(key) {
			continue
		}
		if err := effective.apply(key, overrides[key]); err != nil {
			return StorageSettings{}, &SettingError{Key: key, Err: err}
		}
	}

	location, err := models.ParseTier(effective.Storage.Location)
	if err != nil {
		return StorageSettings{}, &SettingError{Key: "storage.location", Err: err}
	}

	batch := effective.Storage.ForceBatchSize
	if batch <= 0 {
		batch = DefaultForceBatchSize
	}

	return StorageSettings{
		Location:          location,
		Tenant:            effective.Storage.Tenant,
		FilestoreDir:      effective.Storage.FilestoreDir,
		CacheDir:          effective.Storage.CacheDir,
		CacheEnabled:      effective.Storage.S3Cache,
		RemoteDelete:      effective.Storage.S3Delete,
		DegradeReadErrors: effective.Storage.DegradeReadErrors,
		ForceBatchSize:    batch,
		S3:                effective.S3,
	}, nil
}
