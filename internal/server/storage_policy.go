package server

import (
	"tierstore/internal/config"
	"tierstore/internal/models"
)

// ResolveTargetTier picks the tier for new content. An explicit override wins
// over the configured location.
func ResolveTargetTier(override *models.Tier, settings config.StorageSettings) models.Tier {
	if override != nil && *override != "" {
		return *override
	}
	if settings.Location == "" {
		return models.DefaultTier
	}
	return settings.Location
}

// Classify reports the tier holding a record's payload. Records that were
// never persisted report the tier new content would go to.
func Classify(record *models.Attachment, settings config.StorageSettings) models.Tier {
	if record.IsNew() {
		return ResolveTargetTier(nil, settings)
	}
	return record.StoredTier()
}
