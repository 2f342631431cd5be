package tokenstore

import (
	"context"
	"errors"
)

// ErrNoToken is returned by backends when nothing is stored.
var ErrNoToken = errors.New("no token stored")

// TokenStore is the token contract consumed by the API client.
//
// Get after Set(x) returns x within the same process. Set with an empty token is
// equivalent to Clear.
type TokenStore interface {
	// Get returns the stored token, or "" when none is available or the backend failed.
	Get(ctx context.Context) string

	// Set replaces the stored token.
	Set(ctx context.Context, token string) error

	// Clear removes the stored token.
	Clear(ctx context.Context) error
}

// Backend reads and writes a token to a concrete storage mechanism.
type Backend interface {
	// Read returns the stored token. Returns error if token is missing or empty.
	Read(ctx context.Context) (string, error)

	// Write persists the token to storage. Returns error if storage backend
	// is read-only (e.g., environment variables) or if write operation fails.
	Write(ctx context.Context, token string) error

	// Delete removes the stored token. Deleting a missing token is not an error.
	Delete(ctx context.Context) error
}
