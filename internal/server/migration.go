package server

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"tierstore/internal/blobstore"
	"tierstore/internal/models"
)

const (
	// DefaultCacheGCHours evicts cache files untouched for a day.
	DefaultCacheGCHours = -24.0
	forceStorageGCHours = 1.0
)

// ForceStorageResult reports one migration batch.
type ForceStorageResult struct {
	Target    models.Tier           `json:"target"`
	Selected  int                   `json:"selected"`
	Moved     int                   `json:"moved"`
	Remaining int                   `json:"remaining"`
	FirstID   int64                 `json:"first_id,omitempty"`
	LastID    int64                 `json:"last_id,omitempty"`
	Sweep     blobstore.SweepResult `json:"sweep"`
}

// ForceStorage moves up to limit records not stored in the configured tier
// into it and returns how many misplaced records remain.
func (s *AttachmentService) ForceStorage(ctx context.Context, limit int) (int, error) {
	result, err := s.ForceStorageBatch(ctx, limit)
	if err != nil {
		return 0, err
	}
	return result.Remaining, nil
}

// ForceStorageBatch runs one migration batch. Records are taken in id order.
// The local cache is swept afterwards, including content touched by the
// migration reads.
func (s *AttachmentService) ForceStorageBatch(ctx context.Context, limit int) (ForceStorageResult, error) {
	if !isAdmin(ctx) {
		return ForceStorageResult{}, forbidden(fmt.Errorf("only an administrator can force storage migration"))
	}
	settings, err := s.StorageSettings(ctx)
	if err != nil {
		return ForceStorageResult{}, err
	}
	if limit <= 0 {
		limit = settings.ForceBatchSize
	}

	target := settings.Location
	result := ForceStorageResult{Target: target}

	records, err := s.records.ListMisplaced(ctx, target, limit)
	if err != nil {
		return ForceStorageResult{}, storeFailure(err)
	}
	result.Selected = len(records)
	if len(records) > 0 {
		result.FirstID = records[0].ID
		result.LastID = records[len(records)-1].ID
		var size int64
		for i := range records {
			size += records[i].FileSize
		}
		s.logger.Info("migrating attachments",
			"target", target,
			"count", len(records),
			"first_id", result.FirstID,
			"last_id", result.LastID,
			"size", humanize.Bytes(uint64(size)),
		)
	}

	moved, err := s.MoveToTier(ctx, settings, records, target)
	if err != nil {
		return ForceStorageResult{}, err
	}
	result.Moved = moved

	remaining, err := s.records.CountMisplaced(ctx, target)
	if err != nil {
		return ForceStorageResult{}, storeFailure(err)
	}
	result.Remaining = remaining
	s.logger.Info("attachments left to migrate", "target", target, "remaining", remaining)

	sweep, err := s.CacheGC(ctx, forceStorageGCHours)
	if err != nil {
		return ForceStorageResult{}, err
	}
	result.Sweep = sweep
	return result, nil
}

// CacheGC deletes cache files last touched before now plus hours. Negative
// hours look back; positive hours reach into the future and clear everything
// touched so far.
func (s *AttachmentService) CacheGC(ctx context.Context, hours float64) (blobstore.SweepResult, error) {
	settings, err := s.StorageSettings(ctx)
	if err != nil {
		return blobstore.SweepResult{}, err
	}
	if settings.CacheDir == "" {
		return blobstore.SweepResult{}, configError(fmt.Errorf("storage.cache_dir is not configured"))
	}

	cutoff := time.Now().Add(time.Duration(hours * float64(time.Hour)))
	cache := blobstore.NewLocalCache(settings.CacheDir, settings.CacheEnabled, nil, s.logger, s.metrics)
	result, err := cache.Sweep(ctx, cutoff)
	if err != nil {
		return result, internalError(fmt.Errorf("sweep cache: %w", err))
	}
	return result, nil
}
