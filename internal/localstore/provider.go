package localstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider reads and writes whole objects by path. Implementations exist
// for the local filesystem and S3.
type FileProvider interface {
	// Read returns the object at path, or an error wrapping ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)
	// Write creates or replaces the object at path.
	Write(ctx context.Context, path string, data []byte) error
	// Delete removes the object at path. Missing objects are not an error.
	Delete(ctx context.Context, path string) error
}

// LocalFileProvider implements FileProvider for a directory on disk.
type LocalFileProvider struct {
	baseDir string
}

// NewLocalFileProvider creates a provider rooted at baseDir.
func NewLocalFileProvider(baseDir string) *LocalFileProvider {
	return &LocalFileProvider{baseDir: baseDir}
}

func (p *LocalFileProvider) Read(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(p.baseDir, path)) //nolint:gosec // G304: path is built from a trusted base dir
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return data, err
}

// Write replaces the file atomically by writing a sibling temp file first.
func (p *LocalFileProvider) Write(_ context.Context, path string, data []byte) error {
	fullPath := filepath.Join(p.baseDir, path)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), fullPath)
}

func (p *LocalFileProvider) Delete(_ context.Context, path string) error {
	err := os.Remove(filepath.Join(p.baseDir, path))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ProviderStore implements Store on top of a FileProvider, one object per key.
type ProviderStore struct {
	provider FileProvider
}

// NewProviderStore wraps provider as a Store.
func NewProviderStore(provider FileProvider) *ProviderStore {
	return &ProviderStore{provider: provider}
}

func objectPath(key string) string {
	// Keys are short identifiers; keep them from escaping the store root.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return safe + ".value"
}

func (s *ProviderStore) Get(ctx context.Context, key string) (string, bool, error) {
	data, err := s.provider.Read(ctx, objectPath(key))
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return string(data), true, nil
}

func (s *ProviderStore) Set(ctx context.Context, key, value string) error {
	if err := s.provider.Write(ctx, objectPath(key), []byte(value)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *ProviderStore) Remove(ctx context.Context, key string) error {
	if err := s.provider.Delete(ctx, objectPath(key)); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
