package vault

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	content  []byte
	metadata map[string]string
	storedAt time.Time
}

// MemoryVault is an in-memory implementation of Vault.
// Suitable for development and testing. Data is lost on restart.
type MemoryVault struct {
	entries map[string]memoryEntry
	mu      sync.RWMutex
	closed  bool
}

var _ Vault = (*MemoryVault)(nil)

// NewMemoryVault creates a new in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		entries: make(map[string]memoryEntry),
	}
}

// Store writes content under path.
func (v *MemoryVault) Store(ctx context.Context, path string, content []byte, metadata map[string]string) error {
	if path == "" {
		return ErrInvalidInput
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}

	stored := make([]byte, len(content))
	copy(stored, content)

	meta := make(map[string]string, len(metadata))
	for k, val := range metadata {
		meta[k] = val
	}

	v.entries[path] = memoryEntry{
		content:  stored,
		metadata: meta,
		storedAt: time.Now(),
	}
	return nil
}

// Retrieve reads the content stored under path.
func (v *MemoryVault) Retrieve(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, ErrInvalidInput
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return nil, ErrClosed
	}

	entry, ok := v.entries[path]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]byte, len(entry.content))
	copy(out, entry.content)
	return out, nil
}

// Metadata returns the metadata stored alongside a path. Test helper, not
// part of the Vault interface.
func (v *MemoryVault) Metadata(path string) (map[string]string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	entry, ok := v.entries[path]
	if !ok {
		return nil, false
	}

	out := make(map[string]string, len(entry.metadata))
	for k, val := range entry.metadata {
		out[k] = val
	}
	return out, true
}

// Len reports the number of stored entries.
func (v *MemoryVault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// Ping checks if the vault is healthy.
func (v *MemoryVault) Ping(ctx context.Context) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return ErrClosed
	}
	return nil
}

// Close closes the vault.
func (v *MemoryVault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}
