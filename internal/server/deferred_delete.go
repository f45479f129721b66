package server

import (
	"context"
	"sort"

	"tierstore/internal/blobstore"
	"tierstore/internal/config"
	"tierstore/internal/models"
	"tierstore/internal/store"
)

// SafeRemoteDeletes returns the distinct non-empty keys that no record still
// references.
func SafeRemoteDeletes(ctx context.Context, keys []string, stillReferenced func(context.Context, []string) (map[string]bool, error)) ([]string, error) {
	seen := make(map[string]struct{}, len(keys))
	candidates := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, key)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Strings(candidates)

	referenced, err := stillReferenced(ctx, candidates)
	if err != nil {
		return nil, err
	}
	out := candidates[:0]
	for _, key := range candidates {
		if !referenced[key] {
			out = append(out, key)
		}
	}
	return out, nil
}

// scheduleRemoteDelete registers removal of remote objects once tx commits.
// Nothing is scheduled unless remote deletion is enabled.
func (s *AttachmentService) scheduleRemoteDelete(tx *store.Tx, settings config.StorageSettings, keys []string) {
	if !settings.RemoteDelete || !hasNonEmpty(keys) {
		return
	}
	pending := append([]string(nil), keys...)
	tx.OnCommit(func(ctx context.Context) {
		s.deleteRemote(ctx, settings, pending)
	})
}

// deleteRemote removes unreferenced remote objects and their cache files.
// Failures are logged only; the records have already committed.
func (s *AttachmentService) deleteRemote(ctx context.Context, settings config.StorageSettings, keys []string) {
	safe, err := SafeRemoteDeletes(ctx, keys, s.records.ReferencedRemoteKeys)
	if err != nil {
		s.logger.Error("check remote key references", "keys", len(keys), "error", err)
		return
	}
	if len(safe) == 0 {
		return
	}

	cache, err := s.cache(ctx, settings)
	if err != nil {
		s.logger.Error("remote delete skipped", "keys", len(safe), "error", err)
		return
	}

	namespaced := make([]string, 0, len(safe))
	for _, key := range safe {
		namespaced = append(namespaced, blobstore.NamespacedKey(settings.Tenant, key))
	}
	remote, err := s.objectStore(ctx, settings)
	if err != nil {
		s.logger.Error("remote delete skipped", "keys", len(safe), "error", err)
		return
	}
	if err := remote.DeleteObjects(ctx, namespaced); err != nil {
		s.metrics.IncRemoteError("delete")
		s.logger.Error("remote delete failed", "keys", len(namespaced), "error", err)
		return
	}
	s.metrics.AddRemoteDeleted(len(namespaced))
	for _, key := range namespaced {
		cache.Evict(key)
	}
	s.logger.Info("remote objects deleted", "count", len(namespaced), "tenant", settings.Tenant)
}

// scheduleFileCleanup registers removal of filestore files once tx commits.
func (s *AttachmentService) scheduleFileCleanup(tx *store.Tx, settings config.StorageSettings, keys []string) {
	if !hasNonEmpty(keys) {
		return
	}
	pending := append([]string(nil), keys...)
	tx.OnCommit(func(ctx context.Context) {
		s.deleteFiles(ctx, settings, pending)
	})
}

func (s *AttachmentService) deleteFiles(ctx context.Context, settings config.StorageSettings, keys []string) {
	safe, err := SafeRemoteDeletes(ctx, keys, s.records.ReferencedFileKeys)
	if err != nil {
		s.logger.Error("check file key references", "keys", len(keys), "error", err)
		return
	}
	if len(safe) == 0 {
		return
	}
	files, err := s.fileStore(settings)
	if err != nil {
		s.logger.Error("file cleanup skipped", "keys", len(safe), "error", err)
		return
	}
	for _, key := range safe {
		if err := files.Delete(ctx, key); err != nil {
			s.logger.Warn("remove filestore file", "key", key, "error", err)
		}
	}
}

// discardUnreferenced drops content written for a record that was never
// inserted.
func (s *AttachmentService) discardUnreferenced(ctx context.Context, settings config.StorageSettings, loc models.Location) {
	switch ref := loc.(type) {
	case models.FileRef:
		s.deleteFiles(context.WithoutCancel(ctx), settings, []string{ref.Key})
	case models.RemoteRef:
		if settings.RemoteDelete {
			s.deleteRemote(context.WithoutCancel(ctx), settings, []string{ref.Key})
		}
	}
}

func hasNonEmpty(keys []string) bool {
	for _, key := range keys {
		if key != "" {
			return true
		}
	}
	return false
}
