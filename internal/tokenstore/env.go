package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrReadOnly is returned when writing to a backend that cannot be written.
var ErrReadOnly = errors.New("token storage is read-only")

// EnvStore provides read-only access to a token stored in an environment variable.
// Suitable for static tokens; refreshed tokens cannot be persisted.
type EnvStore struct {
	envKey string
}

// Compile-time check to ensure EnvStore implements Backend
var _ Backend = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for the given environment variable.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	return &EnvStore{
		envKey: envKey,
	}, nil
}

// Read returns the token from the environment variable.
func (e *EnvStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token := os.Getenv(e.envKey)
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Write is not supported for environment variables.
func (e *EnvStore) Write(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable %s: %w", e.envKey, ErrReadOnly)
}

// Delete is not supported for environment variables.
func (e *EnvStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable %s: %w", e.envKey, ErrReadOnly)
}
