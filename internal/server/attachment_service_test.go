package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"testing"

	"tierstore/internal/blobstore"
	"tierstore/internal/config"
	"tierstore/internal/models"
)

func TestCreateClassifiesIntoRequestedTier(t *testing.T) {
	env := newTestEnv(t, models.TierFile)
	ctx := context.Background()
	payload := []byte("round trip payload")

	for _, tier := range models.Tiers() {
		t.Run(string(tier), func(t *testing.T) {
			attachment := env.create(t, "doc-"+string(tier)+".txt", payload, string(tier))
			if got := Classify(&attachment, env.settings(t)); got != tier {
				t.Fatalf("expected tier %s, got %s", tier, got)
			}
			checksum, _ := blobstore.ComputeKey(payload)
			if attachment.Checksum != checksum || attachment.FileSize != int64(len(payload)) {
				t.Fatalf("unexpected metadata: %+v", attachment)
			}
			if attachment.IndexContent != string(payload) {
				t.Fatalf("expected text index content, got %q", attachment.IndexContent)
			}

			_, data, err := env.svc.Content(ctx, attachment.ID)
			if err != nil {
				t.Fatalf("content: %v", err)
			}
			if !bytes.Equal(data, payload) {
				t.Fatalf("expected %q, got %q", payload, data)
			}
		})
	}
}

func TestRemoteReadSurvivesCacheSweep(t *testing.T) {
	env := newTestEnv(t, models.TierS3)
	ctx := context.Background()
	payload := []byte("remote payload")

	attachment := env.create(t, "remote.bin", payload, "")
	key := attachment.RemoteKey()
	if key == "" {
		t.Fatalf("expected remote location, got %#v", attachment.Location)
	}
	if _, err := os.Stat(env.cachePath(key)); err != nil {
		t.Fatalf("expected write-through cache file: %v", err)
	}

	result, err := env.svc.CacheGC(ctx, 1)
	if err != nil {
		t.Fatalf("cache gc: %v", err)
	}
	if result.Files != 1 {
		t.Fatalf("expected one swept file, got %+v", result)
	}
	if _, err := os.Stat(env.cachePath(key)); !os.IsNotExist(err) {
		t.Fatalf("expected cache file removed, got %v", err)
	}

	_, data, err := env.svc.Content(ctx, attachment.ID)
	if err != nil {
		t.Fatalf("content after sweep: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("expected %q, got %q", payload, data)
	}
	if _, err := os.Stat(env.cachePath(key)); err != nil {
		t.Fatalf("expected read-through to repopulate cache: %v", err)
	}
}

func TestCacheGCKeepsRecentFiles(t *testing.T) {
	env := newTestEnv(t, models.TierS3)
	attachment := env.create(t, "recent.bin", []byte("recent"), "")

	result, err := env.svc.CacheGC(context.Background(), DefaultCacheGCHours)
	if err != nil {
		t.Fatalf("cache gc: %v", err)
	}
	if result.Files != 0 {
		t.Fatalf("expected nothing swept, got %+v", result)
	}
	if _, err := os.Stat(env.cachePath(attachment.RemoteKey())); err != nil {
		t.Fatalf("expected cache file kept: %v", err)
	}
}

func TestEmptyPayloadAlwaysInline(t *testing.T) {
	env := newTestEnv(t, models.TierS3)

	for _, tier := range []string{"", "file", "s3"} {
		attachment := env.create(t, "empty.txt", nil, tier)
		if attachment.StoredTier() != models.TierDB {
			t.Fatalf("tier %q: expected db, got %s", tier, attachment.StoredTier())
		}
	}
	if env.remote.PutCount() != 0 {
		t.Fatalf("expected no remote writes, got %d", env.remote.PutCount())
	}
}

func TestFileToS3Migration(t *testing.T) {
	env := newTestEnv(t, models.TierFile)
	ctx := context.Background()
	payload := []byte("0123456789")

	attachment, err := env.svc.Create(ctx, CreateInput{Name: "ten", Mimetype: "text/plain", Data: payload})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fileKey := attachment.FileKey()
	if fileKey == "" || attachment.RemoteKey() != "" {
		t.Fatalf("expected file location, got %#v", attachment.Location)
	}
	if _, err := os.Stat(env.filePath(fileKey)); err != nil {
		t.Fatalf("expected filestore file: %v", err)
	}

	if err := env.store.SetSetting(ctx, "storage.location", "s3"); err != nil {
		t.Fatalf("set location: %v", err)
	}
	remaining, err := env.svc.ForceStorage(WithAdmin(ctx), 0)
	if err != nil {
		t.Fatalf("force storage: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected nothing left to migrate, got %d", remaining)
	}

	moved, err := env.svc.Get(ctx, attachment.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_, key := blobstore.ComputeKey(payload)
	if moved.RemoteKey() != key || moved.FileKey() != "" {
		t.Fatalf("expected remote key %s, got %#v", key, moved.Location)
	}
	keys := env.remote.Keys()
	if len(keys) != 1 || keys[0] != blobstore.NamespacedKey(testTenant, key) {
		t.Fatalf("unexpected remote objects: %v", keys)
	}
	if _, err := os.Stat(env.filePath(fileKey)); !os.IsNotExist(err) {
		t.Fatalf("expected old filestore file removed, got %v", err)
	}

	_, data, err := env.svc.Content(ctx, attachment.ID)
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("expected %q, got %q", payload, data)
	}
}

func TestMoveToTierIsIdempotent(t *testing.T) {
	env := newTestEnv(t, models.TierFile)
	ctx := context.Background()
	first := env.create(t, "a.txt", []byte("alpha"), "")
	second := env.create(t, "b.txt", []byte("beta"), "db")

	settings := env.settings(t)
	records := []models.Attachment{first, second}
	moved, err := env.svc.MoveToTier(ctx, settings, records, models.TierS3)
	if err != nil {
		t.Fatalf("first move: %v", err)
	}
	if moved != 2 {
		t.Fatalf("expected 2 moved, got %d", moved)
	}
	puts := env.remote.PutCount()
	before, err := env.store.GetAttachments(ctx, []int64{first.ID, second.ID})
	if err != nil {
		t.Fatalf("get attachments: %v", err)
	}

	moved, err = env.svc.MoveToTier(ctx, settings, before, models.TierS3)
	if err != nil {
		t.Fatalf("second move: %v", err)
	}
	if moved != 0 {
		t.Fatalf("expected nothing moved, got %d", moved)
	}
	if env.remote.PutCount() != puts {
		t.Fatalf("expected no extra remote writes, got %d then %d", puts, env.remote.PutCount())
	}
	after, err := env.store.GetAttachments(ctx, []int64{first.ID, second.ID})
	if err != nil {
		t.Fatalf("get attachments: %v", err)
	}
	for i := range after {
		if after[i].RemoteKey() != before[i].RemoteKey() || after[i].RemoteKey() == "" {
			t.Fatalf("location changed: %#v vs %#v", before[i].Location, after[i].Location)
		}
	}
}

func TestMoveFromS3SchedulesRemoteDelete(t *testing.T) {
	env := newTestEnv(t, models.TierS3)
	ctx := context.Background()
	attachment := env.create(t, "back.txt", []byte("coming home"), "")
	namespaced := blobstore.NamespacedKey(testTenant, attachment.RemoteKey())

	moved, err := env.svc.Move(ctx, attachment.ID, "db")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.StoredTier() != models.TierDB {
		t.Fatalf("expected db tier, got %s", moved.StoredTier())
	}
	if env.remote.Has(namespaced) {
		t.Fatal("expected remote object deleted after commit")
	}
	if _, err := os.Stat(env.cachePath(attachment.RemoteKey())); !os.IsNotExist(err) {
		t.Fatalf("expected cache file evicted, got %v", err)
	}
	_, data, err := env.svc.Content(ctx, attachment.ID)
	if err != nil || string(data) != "coming home" {
		t.Fatalf("unexpected content %q err=%v", data, err)
	}
}

func TestMoveFailureKeepsLocation(t *testing.T) {
	env := newTestEnv(t, models.TierFile)
	ctx := context.Background()
	attachment := env.create(t, "stay.txt", []byte("stay put"), "")

	env.remote.FailPuts(errors.New("bucket offline"))
	_, err := env.svc.Move(ctx, attachment.ID, "s3")
	if statusOf(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}

	current, err := env.svc.Get(ctx, attachment.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.FileKey() != attachment.FileKey() {
		t.Fatalf("expected location unchanged, got %#v", current.Location)
	}
	if _, err := os.Stat(env.filePath(attachment.FileKey())); err != nil {
		t.Fatalf("expected filestore file kept: %v", err)
	}
}

func TestDeleteKeepsSharedRemoteObject(t *testing.T) {
	env := newTestEnv(t, models.TierS3)
	ctx := context.Background()
	payload := []byte("shared bytes")
	first := env.create(t, "one.txt", payload, "")
	second := env.create(t, "two.txt", payload, "")
	if first.RemoteKey() != second.RemoteKey() {
		t.Fatalf("expected shared key, got %s and %s", first.RemoteKey(), second.RemoteKey())
	}
	namespaced := blobstore.NamespacedKey(testTenant, first.RemoteKey())

	if _, err := env.svc.Delete(ctx, []int64{first.ID}); err != nil {
		t.Fatalf("delete first: %v", err)
	}
	if !env.remote.Has(namespaced) {
		t.Fatal("remote object must survive while still referenced")
	}

	deleted, err := env.svc.Delete(ctx, []int64{second.ID})
	if err != nil {
		t.Fatalf("delete second: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != second.ID {
		t.Fatalf("unexpected deleted ids: %v", deleted)
	}
	if env.remote.Has(namespaced) {
		t.Fatal("expected remote object removed once unreferenced")
	}
}

func TestDeleteLeavesRemoteWhenDisabled(t *testing.T) {
	env := newTestEnv(t, models.TierS3)
	env.cfg.Storage.S3Delete = false
	ctx := context.Background()
	attachment := env.create(t, "orphan.txt", []byte("orphan"), "")

	if _, err := env.svc.Delete(ctx, []int64{attachment.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !env.remote.Has(blobstore.NamespacedKey(testTenant, attachment.RemoteKey())) {
		t.Fatal("expected object kept when remote deletion is disabled")
	}
	if env.remote.DeleteCalls() != 0 {
		t.Fatalf("expected no delete calls, got %d", env.remote.DeleteCalls())
	}
}

func TestDeleteRemovesUnreferencedFile(t *testing.T) {
	env := newTestEnv(t, models.TierFile)
	ctx := context.Background()
	first := env.create(t, "one.txt", []byte("same"), "")
	second := env.create(t, "two.txt", []byte("same"), "")

	if _, err := env.svc.Delete(ctx, []int64{first.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(env.filePath(second.FileKey())); err != nil {
		t.Fatalf("shared file must remain: %v", err)
	}
	if _, err := env.svc.Delete(ctx, []int64{second.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(env.filePath(second.FileKey())); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, got %v", err)
	}
}

func TestReadUnavailableAndDegraded(t *testing.T) {
	env := newTestEnv(t, models.TierS3)
	ctx := context.Background()
	attachment := env.create(t, "gone.bin", []byte("soon unreachable"), "")
	if _, err := env.svc.CacheGC(ctx, 1); err != nil {
		t.Fatalf("cache gc: %v", err)
	}
	env.remote.FailGets(errors.New("connection reset"))

	_, _, err := env.svc.Content(ctx, attachment.ID)
	if !errors.Is(err, blobstore.ErrContentUnavailable) {
		t.Fatalf("expected content unavailable, got %v", err)
	}
	if statusOf(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", statusOf(err))
	}

	if err := env.store.SetSetting(ctx, "storage.degrade_read_errors", "true"); err != nil {
		t.Fatalf("set degrade: %v", err)
	}
	_, data, err := env.svc.Content(ctx, attachment.ID)
	if err != nil {
		t.Fatalf("degraded read: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty bytes, got %q", data)
	}
}

func TestMigrationNeverDegradesReads(t *testing.T) {
	env := newTestEnv(t, models.TierS3)
	env.cfg.Storage.DegradeReadErrors = true
	ctx := context.Background()
	attachment := env.create(t, "keep.bin", []byte("must not be lost"), "")
	if _, err := env.svc.CacheGC(ctx, 1); err != nil {
		t.Fatalf("cache gc: %v", err)
	}
	env.remote.FailGets(errors.New("timeout"))

	if _, err := env.svc.Move(ctx, attachment.ID, "db"); err == nil {
		t.Fatal("expected move to fail on unreadable content")
	}
	current, err := env.svc.Get(ctx, attachment.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.RemoteKey() != attachment.RemoteKey() {
		t.Fatalf("expected record untouched, got %#v", current.Location)
	}
}

func TestRemoteWriteFailureCreatesNothing(t *testing.T) {
	env := newTestEnv(t, models.TierS3)
	env.remote.FailPuts(errors.New("access denied"))
	ctx := context.Background()

	_, err := env.svc.Create(ctx, CreateInput{Name: "x.txt", Data: []byte("x")})
	if statusOf(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
	list, err := env.svc.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no records, got %d", len(list))
	}
}

func TestMissingBucketIsConfigError(t *testing.T) {
	env := newTestEnv(t, models.TierS3)
	env.cfg.S3.Bucket = ""
	svc := NewAttachmentService(env.store, env.store, env.cfg, ServiceOptions{Logger: quietLogger()})

	_, err := svc.Create(context.Background(), CreateInput{Name: "x.txt", Data: []byte("x")})
	if !errors.Is(err, blobstore.ErrBucketRequired) {
		t.Fatalf("expected bucket error, got %v", err)
	}
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected config error status, got %d", statusOf(err))
	}
}

func TestInvalidOverrideIsConfigError(t *testing.T) {
	env := newTestEnv(t, models.TierFile)
	ctx := context.Background()
	if err := env.store.SetSetting(ctx, "storage.location", "tape"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	_, err := env.svc.StorageSettings(ctx)
	var settingErr *config.SettingError
	if !errors.As(err, &settingErr) || statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	env := newTestEnv(t, models.TierFile)
	ctx := context.Background()

	if _, err := env.svc.Create(ctx, CreateInput{Data: []byte("x")}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %v", err)
	}
	if _, err := env.svc.Create(ctx, CreateInput{Name: "x", Data: []byte("x"), Tier: "tape"}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid tier, got %v", err)
	}
	if _, err := env.svc.Get(ctx, 999); statusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestRecomputeMimetype(t *testing.T) {
	env := newTestEnv(t, models.TierFile)
	ctx := context.Background()
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

	cases := []struct {
		name     string
		url      string
		data     []byte
		expected string
	}{
		{name: "page.html", data: []byte("plain"), expected: "text/html"},
		{name: "download", url: "https://example.com/files/logo.png?v=2", data: []byte("x"), expected: "image/png"},
		{name: "blob", data: png, expected: "image/png"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			created, err := env.svc.Create(ctx, CreateInput{Name: tc.name, URL: tc.url, Mimetype: "application/octet-stream", Data: tc.data})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if created.Mimetype != defaultMimetype {
				t.Fatalf("expected declared mimetype kept, got %s", created.Mimetype)
			}
			updated, err := env.svc.RecomputeMimetype(ctx, created.ID)
			if err != nil {
				t.Fatalf("recompute: %v", err)
			}
			if updated.Mimetype != tc.expected {
				t.Fatalf("expected %s, got %s", tc.expected, updated.Mimetype)
			}
		})
	}
}
