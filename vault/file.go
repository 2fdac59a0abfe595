package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileVault is a file-based implementation of Vault.
// Suitable for single-node production deployments. Entries are stored as
// plain JSON files so operators can inspect bundles directly.
type FileVault struct {
	baseDir string
	mu      sync.Mutex
	closed  bool
	logger  *zap.Logger
}

var _ Vault = (*FileVault)(nil)

type fileMetadata struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	StoredAt time.Time         `json:"stored_at"`
}

// NewFileVault creates a new file-based vault rooted at baseDir.
func NewFileVault(baseDir string, logger *zap.Logger) (*FileVault, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: base dir is empty", ErrInvalidInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vault dir: %w", err)
	}

	return &FileVault{
		baseDir: baseDir,
		logger:  logger.With(zap.String("component", "file_vault")),
	}, nil
}

// entryPath maps a vault path to a filesystem location under baseDir.
// Rejects empty, absolute and escaping paths.
func (v *FileVault) entryPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path is empty", ErrInvalidInput)
	}

	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes vault root: %s", ErrInvalidInput, path)
	}

	return filepath.Join(v.baseDir, clean+".json"), nil
}

// Store writes content under path using an atomic tmp+rename write.
func (v *FileVault) Store(ctx context.Context, path string, content []byte, metadata map[string]string) error {
	target, err := v.entryPath(path)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create entry dir: %w", err)
	}

	if err := atomicWrite(target, content); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}

	if len(metadata) > 0 {
		meta, err := json.Marshal(fileMetadata{Metadata: metadata, StoredAt: time.Now()})
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metaPath := strings.TrimSuffix(target, ".json") + ".meta.json"
		if err := atomicWrite(metaPath, meta); err != nil {
			return fmt.Errorf("failed to write metadata: %w", err)
		}
	}

	v.logger.Debug("entry stored", zap.String("path", path), zap.Int("bytes", len(content)))
	return nil
}

// Retrieve reads the content stored under path.
func (v *FileVault) Retrieve(ctx context.Context, path string) ([]byte, error) {
	target, err := v.entryPath(path)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, ErrClosed
	}

	content, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}
	return content, nil
}

// Ping checks if the vault directory is accessible.
func (v *FileVault) Ping(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}

	if _, err := os.Stat(v.baseDir); err != nil {
		return fmt.Errorf("vault dir inaccessible: %w", err)
	}
	return nil
}

// Close closes the vault.
func (v *FileVault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// atomicWrite writes data to path via a temp file and rename.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
