package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"fsnap-go/internal/fsnap"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It stores all snapshots in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name      string
	snapshots map[string][]byte
	mu        sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:      name,
		snapshots: make(map[string][]byte),
	}
}

// PutSnapshot stores the blob under key, replacing any previous blob.
func (m *MemoryVault) PutSnapshot(key string, r io.Reader, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[key] = data
	return nil
}

// GetSnapshot writes the blob stored under key to w.
func (m *MemoryVault) GetSnapshot(key string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.snapshots[key]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", fsnap.ErrSnapshotNotFound, key)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// DeleteSnapshot removes the blob stored under key.
func (m *MemoryVault) DeleteSnapshot(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, key)
	return nil
}

// Len returns the number of stored snapshots.
func (m *MemoryVault) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements fsnap.Vault interface
var _ fsnap.Vault = (*MemoryVault)(nil)
