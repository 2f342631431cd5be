package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Store adapts a Backend to the TokenStore contract.
type Store struct {
	backend Backend
	name    string
}

// Compile-time check to ensure Store implements TokenStore
var _ TokenStore = (*Store)(nil)

// New wraps backend. name identifies the backend in log records.
func New(name string, backend Backend) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("missing token backend")
	}
	return &Store{backend: backend, name: name}, nil
}

// Get returns the stored token. Backend failures are logged and read as "no token".
func (s *Store) Get(ctx context.Context) string {
	token, err := s.backend.Read(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoToken) {
			slog.DebugContext(ctx, "token read failed", "backend", s.name, "error", err)
		}
		return ""
	}
	return token
}

// Set persists token. An empty token clears the store.
func (s *Store) Set(ctx context.Context, token string) error {
	if token == "" {
		return s.Clear(ctx)
	}
	if err := s.backend.Write(ctx, token); err != nil {
		return fmt.Errorf("writing token to %s: %w", s.name, err)
	}
	return nil
}

// Clear removes the stored token.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx); err != nil {
		return fmt.Errorf("deleting token from %s: %w", s.name, err)
	}
	return nil
}
