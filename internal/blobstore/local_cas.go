package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalCAS stores attachment bytes in a local content-addressed tree.
type LocalCAS struct {
	root string
}

// NewLocalCAS creates a local CAS rooted at root.
func NewLocalCAS(root string) (*LocalCAS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("filestore root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &LocalCAS{root: abs}, nil
}

// Root returns the absolute filestore root.
func (c *LocalCAS) Root() string {
	if c == nil {
		return ""
	}
	return c.root
}

// Write stores data under the sharded key for checksum. Content that is
// already present is left untouched.
func (c *LocalCAS) Write(ctx context.Context, checksum string, data []byte) (string, error) {
	if c == nil {
		return "", fmt.Errorf("filestore is not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(checksum) < 4 {
		return "", fmt.Errorf("invalid checksum %q", checksum)
	}

	key := ShardedKey(checksum)
	dst, err := pathUnder(c.root, key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dst); err == nil {
		return key, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if err := writeFileAtomic(dst, data); err != nil {
		return "", err
	}
	return key, nil
}

// Read returns the bytes stored under key.
func (c *LocalCAS) Read(ctx context.Context, key string) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("filestore is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := pathUnder(c.root, key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Delete removes one file. Missing files are ignored.
func (c *LocalCAS) Delete(ctx context.Context, key string) error {
	if c == nil {
		return fmt.Errorf("filestore is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := pathUnder(c.root, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// writeFileAtomic writes through a temp file in the destination directory and
// renames it into place, so readers never see a partial file.
func writeFileAtomic(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, tempFilePrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func pathUnder(root, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("storage key is required")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("storage key must be relative")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || strings.Contains(clean, string(filepath.Separator)+".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage key")
	}
	return filepath.Join(root, clean), nil
}
