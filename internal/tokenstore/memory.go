package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the token in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// Compile-time check to ensure MemoryStore implements Backend
var _ Backend = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Read returns the token held in memory.
func (m *MemoryStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", ErrNoToken
	}
	return m.token, nil
}

// Write replaces the token held in memory.
func (m *MemoryStore) Write(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

// Delete forgets the token.
func (m *MemoryStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}
