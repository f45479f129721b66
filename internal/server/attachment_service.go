package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"tierstore/internal/blobstore"
	"tierstore/internal/config"
	"tierstore/internal/models"
	"tierstore/internal/store"
)

// ObjectStoreFactory builds the object store client for one set of S3 settings.
type ObjectStoreFactory func(ctx context.Context, settings config.StorageSettings) (blobstore.ObjectStore, error)

// ServiceOptions carries optional collaborators for AttachmentService.
type ServiceOptions struct {
	Logger             *slog.Logger
	Metrics            blobstore.Metrics
	ObjectStoreFactory ObjectStoreFactory
}

// AttachmentService stores attachment payloads in the configured tier and
// keeps the record store consistent with them.
type AttachmentService struct {
	records   store.AttachmentStore
	overrides store.SettingsStore
	cfg       *config.Config
	logger    *slog.Logger
	metrics   blobstore.Metrics

	newObjectStore ObjectStoreFactory
	mu             sync.Mutex
	remotes        map[config.S3Config]blobstore.ObjectStore
}

// CreateInput describes one new attachment.
type CreateInput struct {
	Name     string
	URL      string
	Mimetype string
	Data     []byte
	Tier     string
}

// WriteResult is the derived metadata and location of one stored payload.
type WriteResult struct {
	Checksum     string
	FileSize     int64
	IndexContent string
	Location     models.Location
}

// NewAttachmentService constructs an AttachmentService.
func NewAttachmentService(records store.AttachmentStore, overrides store.SettingsStore, cfg *config.Config, opts ServiceOptions) *AttachmentService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = blobstore.NoopMetrics{}
	}
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}
	svc := &AttachmentService{
		records:        records,
		overrides:      overrides,
		cfg:            cfg,
		logger:         logger.With("component", "attachments"),
		metrics:        metrics,
		newObjectStore: opts.ObjectStoreFactory,
		remotes:        map[config.S3Config]blobstore.ObjectStore{},
	}
	if svc.newObjectStore == nil {
		svc.newObjectStore = svc.defaultObjectStore
	}
	return svc
}

// StorageSettings resolves the effective storage settings for one operation.
func (s *AttachmentService) StorageSettings(ctx context.Context) (config.StorageSettings, error) {
	var overrides map[string]string
	if s.overrides != nil {
		values, err := s.overrides.Settings(ctx)
		if err != nil {
			return config.StorageSettings{}, storeFailure(err)
		}
		overrides = values
	}
	settings, err := s.cfg.Resolve(overrides)
	if err != nil {
		return config.StorageSettings{}, configError(err)
	}
	return settings, nil
}

// Write stores raw in the tier chosen by override or settings and returns the
// resulting location with derived metadata. Empty payloads always stay inline.
func (s *AttachmentService) Write(ctx context.Context, settings config.StorageSettings, raw []byte, mimetype string, override *models.Tier) (WriteResult, error) {
	checksum, key := blobstore.ComputeKey(raw)
	result := WriteResult{
		Checksum:     checksum,
		FileSize:     int64(len(raw)),
		IndexContent: indexContent(mimetype, raw),
	}
	if len(raw) == 0 {
		result.Location = models.Inline{}
		return result, nil
	}

	switch tier := ResolveTargetTier(override, settings); tier {
	case models.TierDB:
		result.Location = models.Inline{Data: raw}
	case models.TierFile:
		files, err := s.fileStore(settings)
		if err != nil {
			return WriteResult{}, err
		}
		fileKey, err := files.Write(ctx, checksum, raw)
		if err != nil {
			return WriteResult{}, internalError(fmt.Errorf("write filestore: %w", err))
		}
		result.Location = models.FileRef{Key: fileKey}
	case models.TierS3:
		cache, err := s.cache(ctx, settings)
		if err != nil {
			return WriteResult{}, err
		}
		if err := cache.WriteThrough(ctx, blobstore.NamespacedKey(settings.Tenant, key), raw); err != nil {
			s.logger.Error("remote write failed", "key", key, "size", len(raw), "error", err)
			return WriteResult{}, unavailable(fmt.Errorf("write remote object: %w", err))
		}
		result.Location = models.RemoteRef{Key: key}
	default:
		return WriteResult{}, configError(fmt.Errorf("invalid storage tier: %s", tier))
	}
	return result, nil
}

// Read returns the payload bytes of record from whichever tier holds them.
// Failures are reported as ErrContentUnavailable unless the settings ask for
// degraded reads, in which case empty bytes are returned.
func (s *AttachmentService) Read(ctx context.Context, settings config.StorageSettings, record *models.Attachment) ([]byte, error) {
	data, err := s.readStrict(ctx, settings, record)
	if err != nil && settings.DegradeReadErrors && errors.Is(err, blobstore.ErrContentUnavailable) {
		s.logger.Error("returning empty content for unreadable attachment", "id", record.ID, "error", err)
		return []byte{}, nil
	}
	return data, err
}

func (s *AttachmentService) readStrict(ctx context.Context, settings config.StorageSettings, record *models.Attachment) ([]byte, error) {
	switch Classify(record, settings) {
	case models.TierS3:
		if key := record.RemoteKey(); key != "" {
			cache, err := s.cache(ctx, settings)
			if err != nil {
				return nil, err
			}
			data, err := cache.ReadThrough(ctx, blobstore.NamespacedKey(settings.Tenant, key))
			if err != nil {
				return nil, unavailable(err)
			}
			return data, nil
		}
	case models.TierFile:
		if key := record.FileKey(); key != "" {
			files, err := s.fileStore(settings)
			if err != nil {
				return nil, err
			}
			data, err := files.Read(ctx, key)
			if err != nil {
				s.logger.Error("filestore read failed", "key", key, "error", err)
				return nil, unavailable(fmt.Errorf("%w: %w", blobstore.ErrContentUnavailable, err))
			}
			return data, nil
		}
	}
	if inline, ok := record.Location.(models.Inline); ok && inline.Data != nil {
		return inline.Data, nil
	}
	return []byte{}, nil
}

// Create stores a new attachment payload and inserts its record.
func (s *AttachmentService) Create(ctx context.Context, in CreateInput) (models.Attachment, error) {
	var zero models.Attachment

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return zero, badRequestCode(fmt.Errorf("name is required"), ErrCodeMissingRequired)
	}
	var override *models.Tier
	if strings.TrimSpace(in.Tier) != "" {
		tier, err := models.ParseTier(in.Tier)
		if err != nil {
			return zero, badRequestCode(err, ErrCodeInvalidTier)
		}
		override = &tier
	}

	settings, err := s.StorageSettings(ctx)
	if err != nil {
		return zero, err
	}

	mimetype := normalizeMimetype(in.Mimetype)
	if mimetype == "" {
		mimetype = detectMimetype(name, in.URL, in.Data)
	}

	written, err := s.Write(ctx, settings, in.Data, mimetype, override)
	if err != nil {
		return zero, err
	}

	attachment := &models.Attachment{
		Name:         name,
		URL:          strings.TrimSpace(in.URL),
		Mimetype:     mimetype,
		Checksum:     written.Checksum,
		FileSize:     written.FileSize,
		Location:     written.Location,
		IndexContent: written.IndexContent,
	}
	if err := s.records.CreateAttachment(ctx, attachment); err != nil {
		s.discardUnreferenced(ctx, settings, written.Location)
		return zero, storeFailure(err)
	}

	s.logger.Debug("attachment created", "id", attachment.ID, "tier", attachment.StoredTier(), "size", attachment.FileSize)
	return *attachment, nil
}

// Get returns one attachment record.
func (s *AttachmentService) Get(ctx context.Context, id int64) (models.Attachment, error) {
	attachment, err := s.records.GetAttachment(ctx, id)
	if err != nil {
		return models.Attachment{}, storeFailure(err)
	}
	if attachment == nil {
		return models.Attachment{}, notFound(fmt.Errorf("attachment not found"))
	}
	return *attachment, nil
}

// List returns attachment records ordered by id.
func (s *AttachmentService) List(ctx context.Context, limit, offset int) ([]models.Attachment, error) {
	attachments, err := s.records.ListAttachments(ctx, limit, offset)
	if err != nil {
		return nil, storeFailure(err)
	}
	return attachments, nil
}

// Content returns one attachment record with its payload.
func (s *AttachmentService) Content(ctx context.Context, id int64) (models.Attachment, []byte, error) {
	attachment, err := s.Get(ctx, id)
	if err != nil {
		return models.Attachment{}, nil, err
	}
	settings, err := s.StorageSettings(ctx)
	if err != nil {
		return models.Attachment{}, nil, err
	}
	data, err := s.Read(ctx, settings, &attachment)
	if err != nil {
		return models.Attachment{}, nil, err
	}
	return attachment, data, nil
}

// Delete removes records in one transaction. Remote objects and filestore
// files they used are removed after commit once nothing references them.
func (s *AttachmentService) Delete(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, badRequestCode(fmt.Errorf("ids are required"), ErrCodeMissingRequired)
	}
	settings, err := s.StorageSettings(ctx)
	if err != nil {
		return nil, err
	}

	var deleted []models.Attachment
	err = s.records.InTx(ctx, func(tx *store.Tx) error {
		rows, err := tx.DeleteAttachments(ctx, ids)
		if err != nil {
			return err
		}
		deleted = rows

		remoteKeys := make([]string, 0, len(rows))
		fileKeys := make([]string, 0, len(rows))
		for i := range rows {
			remoteKeys = append(remoteKeys, rows[i].RemoteKey())
			fileKeys = append(fileKeys, rows[i].FileKey())
		}
		s.scheduleRemoteDelete(tx, settings, remoteKeys)
		s.scheduleFileCleanup(tx, settings, fileKeys)
		return nil
	})
	if err != nil {
		return nil, storeFailure(err)
	}

	out := make([]int64, 0, len(deleted))
	for _, attachment := range deleted {
		out = append(out, attachment.ID)
	}
	return out, nil
}

// Move relocates one attachment to tier and returns the updated record.
func (s *AttachmentService) Move(ctx context.Context, id int64, rawTier string) (models.Attachment, error) {
	target, err := models.ParseTier(rawTier)
	if err != nil {
		return models.Attachment{}, badRequestCode(err, ErrCodeInvalidTier)
	}
	attachment, err := s.Get(ctx, id)
	if err != nil {
		return models.Attachment{}, err
	}
	settings, err := s.StorageSettings(ctx)
	if err != nil {
		return models.Attachment{}, err
	}
	if _, err := s.MoveToTier(ctx, settings, []models.Attachment{attachment}, target); err != nil {
		return models.Attachment{}, err
	}
	return s.Get(ctx, id)
}

// pendingMove is one payload already copied into its target tier and waiting
// for its record to be repointed.
type pendingMove struct {
	before  models.Attachment
	written WriteResult
}

// MoveToTier rewrites every record not already stored in target into target.
// Payloads are copied before the transaction opens, so no network call runs
// while the record store is locked. All location changes then commit in one
// short transaction; a record whose location changed meanwhile is left alone
// and its copy discarded. Remote objects and files left behind are removed
// after commit when unreferenced. Records already in target are skipped, so
// repeating the call writes nothing.
func (s *AttachmentService) MoveToTier(ctx context.Context, settings config.StorageSettings, records []models.Attachment, target models.Tier) (int, error) {
	pending := make(map[int64]pendingMove, len(records))
	discard := func() {
		for _, move := range pending {
			s.discardUnreferenced(ctx, settings, move.written.Location)
		}
	}

	for i := range records {
		current, err := s.records.GetAttachment(ctx, records[i].ID)
		if err != nil {
			discard()
			return 0, storeFailure(err)
		}
		if current == nil || Classify(current, settings) == target {
			continue
		}
		raw, err := s.readStrict(ctx, settings, current)
		if err != nil {
			discard()
			return 0, err
		}
		written, err := s.Write(ctx, settings, raw, current.Mimetype, &target)
		if err != nil {
			discard()
			return 0, err
		}
		if written.Location.Tier() == current.StoredTier() {
			continue
		}
		pending[current.ID] = pendingMove{before: *current, written: written}
	}

	moved := 0
	var stale []pendingMove
	err := s.records.InTx(ctx, func(tx *store.Tx) error {
		moved, stale = 0, nil
		var remoteKeys, oldFileKeys []string
		for i := range records {
			current, err := tx.GetAttachment(ctx, records[i].ID)
			if err != nil {
				return storeFailure(err)
			}
			move, ok := pending[records[i].ID]
			if current == nil {
				if ok {
					stale = append(stale, move)
				}
				continue
			}
			if target != models.TierS3 {
				remoteKeys = append(remoteKeys, current.RemoteKey())
			}
			if !ok {
				continue
			}
			if locationChanged(&move.before, current) {
				stale = append(stale, move)
				continue
			}

			oldFileKeys = append(oldFileKeys, current.FileKey())
			current.Location = move.written.Location
			current.Checksum = move.written.Checksum
			current.FileSize = move.written.FileSize
			current.IndexContent = move.written.IndexContent
			if err := tx.UpdateAttachment(ctx, current); err != nil {
				return storeFailure(err)
			}
			moved++
		}
		s.scheduleRemoteDelete(tx, settings, remoteKeys)
		s.scheduleFileCleanup(tx, settings, oldFileKeys)
		return nil
	})
	if err != nil {
		discard()
		return 0, err
	}
	for _, move := range stale {
		s.logger.Info("attachment changed during move, skipped", "id", move.before.ID, "target", target)
		s.discardUnreferenced(ctx, settings, move.written.Location)
	}
	return moved, nil
}

// locationChanged reports whether after no longer points at the payload
// before described.
func locationChanged(before, after *models.Attachment) bool {
	return before.StoredTier() != after.StoredTier() ||
		before.Checksum != after.Checksum ||
		before.RemoteKey() != after.RemoteKey() ||
		before.FileKey() != after.FileKey()
}

// RecomputeMimetype re-detects the media type from the name, then the url,
// then the stored bytes, and persists it.
func (s *AttachmentService) RecomputeMimetype(ctx context.Context, id int64) (models.Attachment, error) {
	attachment, err := s.Get(ctx, id)
	if err != nil {
		return models.Attachment{}, err
	}

	mimetype := mimetypeFromExtension(path.Ext(attachment.Name))
	if mimetype == "" {
		mimetype = mimetypeFromURL(attachment.URL)
	}
	if mimetype == "" {
		settings, err := s.StorageSettings(ctx)
		if err != nil {
			return models.Attachment{}, err
		}
		data, err := s.Read(ctx, settings, &attachment)
		if err != nil {
			return models.Attachment{}, err
		}
		mimetype = detectMimetype("", "", data)
	}

	err = s.records.InTx(ctx, func(tx *store.Tx) error {
		current, err := tx.GetAttachment(ctx, id)
		if err != nil {
			return storeFailure(err)
		}
		if current == nil {
			return notFound(fmt.Errorf("attachment not found"))
		}
		current.Mimetype = mimetype
		if err := tx.UpdateAttachment(ctx, current); err != nil {
			return storeFailure(err)
		}
		return nil
	})
	if err != nil {
		return models.Attachment{}, err
	}
	return s.Get(ctx, id)
}

func (s *AttachmentService) fileStore(settings config.StorageSettings) (*blobstore.LocalCAS, error) {
	if strings.TrimSpace(settings.FilestoreDir) == "" {
		return nil, configError(fmt.Errorf("storage.filestore_dir is not configured"))
	}
	files, err := blobstore.NewLocalCAS(filepath.Join(settings.FilestoreDir, settings.Tenant))
	if err != nil {
		return nil, internalError(err)
	}
	return files, nil
}

func (s *AttachmentService) cache(ctx context.Context, settings config.StorageSettings) (*blobstore.LocalCache, error) {
	if strings.TrimSpace(settings.CacheDir) == "" {
		return nil, configError(fmt.Errorf("storage.cache_dir is not configured"))
	}
	remote, err := s.objectStore(ctx, settings)
	if err != nil {
		return nil, err
	}
	return blobstore.NewLocalCache(settings.CacheDir, settings.CacheEnabled, remote, s.logger, s.metrics), nil
}

// objectStore returns a client for the settings' S3 section, reusing one per
// distinct configuration.
func (s *AttachmentService) objectStore(ctx context.Context, settings config.StorageSettings) (blobstore.ObjectStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if remote, ok := s.remotes[settings.S3]; ok {
		return remote, nil
	}
	remote, err := s.newObjectStore(ctx, settings)
	if err != nil {
		return nil, configError(err)
	}
	s.remotes[settings.S3] = remote
	return remote, nil
}

func (s *AttachmentService) defaultObjectStore(ctx context.Context, settings config.StorageSettings) (blobstore.ObjectStore, error) {
	return blobstore.NewObjectStore(ctx, blobstore.S3Options{
		EndpointURL:     settings.S3.EndpointURL,
		Region:          settings.S3.Region,
		APIVersion:      settings.S3.APIVersion,
		UseSSL:          settings.S3.UseSSL,
		Verify:          settings.S3.Verify,
		AccessKeyID:     settings.S3.AccessKeyID,
		SecretAccessKey: settings.S3.SecretAccessKey,
		Bucket:          settings.S3.Bucket,
	}, s.logger)
}
