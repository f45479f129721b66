package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"tierstore/internal/blobstore"
	"tierstore/internal/config"
	"tierstore/internal/models"
	"tierstore/internal/store"
)

const testTenant = "main"

type testEnv struct {
	store  *store.Store
	cfg    *config.Config
	remote *blobstore.MemoryObjectStore
	svc    *AttachmentService
	root   string
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv opens a store in a temp dir and wires the service to an
// in-memory object store.
func newTestEnv(t *testing.T, location models.Tier) *testEnv {
	t.Helper()

	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, "main.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.DBPath = filepath.Join(root, "main.db")
	cfg.Storage.Location = string(location)
	cfg.Storage.Tenant = testTenant
	cfg.Storage.FilestoreDir = filepath.Join(root, "filestore")
	cfg.Storage.CacheDir = filepath.Join(root, "s3_cache")
	cfg.Storage.S3Cache = true
	cfg.Storage.S3Delete = true
	cfg.S3.Bucket = "attachments"

	remote := blobstore.NewMemoryObjectStore()
	svc := NewAttachmentService(st, st, &cfg, ServiceOptions{
		Logger: quietLogger(),
		ObjectStoreFactory: func(context.Context, config.StorageSettings) (blobstore.ObjectStore, error) {
			return remote, nil
		},
	})
	return &testEnv{store: st, cfg: &cfg, remote: remote, svc: svc, root: root}
}

func (e *testEnv) settings(t *testing.T) config.StorageSettings {
	t.Helper()
	settings, err := e.svc.StorageSettings(context.Background())
	if err != nil {
		t.Fatalf("storage settings: %v", err)
	}
	return settings
}

func (e *testEnv) create(t *testing.T, name string, data []byte, tier string) models.Attachment {
	t.Helper()
	attachment, err := e.svc.Create(context.Background(), CreateInput{Name: name, Data: data, Tier: tier})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return attachment
}

func (e *testEnv) filePath(key string) string {
	return filepath.Join(e.cfg.Storage.FilestoreDir, testTenant, filepath.FromSlash(key))
}

func (e *testEnv) cachePath(key string) string {
	return filepath.Join(e.cfg.Storage.CacheDir, testTenant, filepath.FromSlash(key))
}

func statusOf(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return 0
}
