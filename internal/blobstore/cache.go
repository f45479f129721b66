package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	tempFilePrefix = ".tmp-"
	// tempFileGrace keeps a sweep from unlinking a temp file another writer
	// is about to rename into place.
	tempFileGrace = time.Minute
)

// LocalCache fronts an ObjectStore with files on local disk. A file's
// existence and mtime are the whole cache state; the object store stays
// authoritative.
type LocalCache struct {
	root    string
	enabled bool
	remote  ObjectStore
	logger  *slog.Logger
	metrics Metrics
}

// SweepResult reports one cache sweep.
type SweepResult struct {
	Files  int   `json:"files"`
	Dirs   int   `json:"dirs"`
	Bytes  int64 `json:"bytes"`
	Failed int   `json:"failed"`
}

// NewLocalCache returns a cache rooted at root. When enabled is false reads
// still consult existing files but nothing new is written.
func NewLocalCache(root string, enabled bool, remote ObjectStore, logger *slog.Logger, metrics Metrics) *LocalCache {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &LocalCache{root: root, enabled: enabled, remote: remote, logger: logger, metrics: metrics}
}

// Root returns the cache directory.
func (c *LocalCache) Root() string {
	return c.root
}

// Path maps a namespaced key to its cache file.
func (c *LocalCache) Path(key string) (string, error) {
	return pathUnder(c.root, key)
}

// ReadThrough returns the cached bytes for key, touching the file, or fetches
// them from the object store and caches them. Fetch failures are logged and
// returned wrapped in ErrContentUnavailable.
func (c *LocalCache) ReadThrough(ctx context.Context, key string) ([]byte, error) {
	path, err := c.Path(key)
	if err != nil {
		return nil, err
	}

	if info, statErr := os.Stat(path); statErr == nil && info.Mode().IsRegular() {
		now := time.Now()
		if err := os.Chtimes(path, now, now); err != nil {
			c.logger.Debug("touch cache file", "path", path, "error", err)
		}
		data, readErr := os.ReadFile(path)
		if readErr == nil {
			c.metrics.IncCacheHit()
			return data, nil
		}
		c.logger.Warn("read cache file", "path", path, "error", readErr)
	}

	c.metrics.IncCacheMiss()
	data, err := c.remote.GetObject(ctx, key)
	if err != nil {
		c.metrics.IncRemoteError("get")
		c.logger.Error("remote read failed", "key", key, "error_type", fmt.Sprintf("%T", err), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrContentUnavailable, err)
	}
	if c.enabled {
		c.store(path, data)
	}
	return data, nil
}

// WriteThrough puts data to the object store and then, when caching is
// enabled, replaces the cache file. Only the remote error is returned.
func (c *LocalCache) WriteThrough(ctx context.Context, key string, data []byte) error {
	path, err := c.Path(key)
	if err != nil {
		return err
	}
	if err := c.remote.PutObject(ctx, key, data); err != nil {
		c.metrics.IncRemoteError("put")
		return err
	}
	if c.enabled {
		c.store(path, data)
	}
	return nil
}

// Evict removes the cache file for key if present.
func (c *LocalCache) Evict(key string) {
	path, err := c.Path(key)
	if err != nil {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Info("evict cache file", "path", path, "error", err)
	}
}

func (c *LocalCache) store(path string, data []byte) {
	if err := writeFileAtomic(path, data); err != nil {
		c.logger.Warn("write cache file", "path", path, "error", err)
	}
}

// Sweep deletes cache files last touched strictly before cutoff, then removes
// directories left empty. The cache root itself is kept. Individual failures
// are logged and counted.
func (c *LocalCache) Sweep(ctx context.Context, cutoff time.Time) (SweepResult, error) {
	var result SweepResult
	info, err := os.Stat(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return result, nil
		}
		return result, err
	}
	if !info.IsDir() {
		return result, fmt.Errorf("cache root %s is not a directory", c.root)
	}

	c.sweepDir(ctx, c.root, cutoff, &result, true)
	c.metrics.AddSwept(result.Files, result.Bytes)
	c.logger.Info("cache sweep complete",
		"files", result.Files,
		"dirs", result.Dirs,
		"reclaimed", humanize.IBytes(uint64(result.Bytes)),
		"failed", result.Failed,
	)
	return result, ctx.Err()
}

func (c *LocalCache) sweepDir(ctx context.Context, dir string, cutoff time.Time, result *SweepResult, isRoot bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		c.logger.Info("cache sweep could not list directory", "path", dir, "error", err)
		result.Failed++
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			c.sweepDir(ctx, path, cutoff, result, false)
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		if strings.HasPrefix(entry.Name(), tempFilePrefix) && time.Since(info.ModTime()) < tempFileGrace {
			continue
		}
		if err := os.Remove(path); err != nil {
			c.logger.Info("cache sweep could not unlink file", "path", path, "error", err)
			result.Failed++
			continue
		}
		result.Files++
		result.Bytes += info.Size()
	}

	if isRoot {
		return
	}
	remaining, err := os.ReadDir(dir)
	if err != nil || len(remaining) > 0 {
		return
	}
	if err := os.Remove(dir); err != nil {
		c.logger.Info("cache sweep could not remove directory", "path", dir, "error", err)
		result.Failed++
		return
	}
	result.Dirs++
}
