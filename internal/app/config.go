package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/folio/internal/apiclient"
	"github.com/florianilch/folio/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOTel LogFormat = "otel"
)

// TokenStorageType represents the different storage types supported for stored tokens.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat         = LogFormatText
	DefaultConfigAPITimeout        = apiclient.DefaultTimeout
	DefaultConfigAuthStorage       = TokenStorageTypeFile
	DefaultConfigAuthEnvKey        = "FOLIO_ACCESS_TOKEN"
	DefaultConfigKeyringService    = "folio-access-token"
)

// OfflineBaseURL is the base URL sentinel for running without a backend.
const OfflineBaseURL = apiclient.OfflineScheme + "://"

// APIConfig holds backend connection settings.
type APIConfig struct {
	// BaseURL is an absolute http(s) URL or the offline:// sentinel.
	BaseURL string `json:"base_url" validate:"required,base_url"`
	// Timeout bounds each attempt, not the whole retry sequence.
	Timeout time.Duration `json:"timeout" validate:"gt=0"`
	// IdempotentRetries is the backoff retry count for GET requests. Unset keeps the
	// per-endpoint defaults.
	IdempotentRetries *int `json:"idempotent_retries,omitempty" validate:"omitnil,gte=0,lte=10"`
}

// ReaderConfig tunes the page reader.
type ReaderConfig struct {
	// PrefetchLimit bounds concurrent page URL fetches. Zero keeps the reader default.
	PrefetchLimit int `json:"prefetch_limit" validate:"gte=0,lte=32"`
}

// Offline reports whether the client should run without a backend.
func (a *APIConfig) Offline() bool {
	return strings.HasPrefix(a.BaseURL, OfflineBaseURL)
}

// AuthConfig describes where the access token is kept.
type AuthConfig struct {
	// Ephemeral keeps the token in memory only, whatever Storage says.
	Ephemeral bool `json:"ephemeral"`

	Storage TokenStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to token file
	EnvKey      string `json:"env_key,omitempty"`      // For env storage: environment variable name
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewTokenStore creates a TokenStore from the authentication configuration.
func (a *AuthConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	if a.Ephemeral {
		return tokenstore.New("memory", tokenstore.NewMemoryStore())
	}

	var (
		backend tokenstore.Backend
		err     error
	)
	switch a.Storage {
	case TokenStorageTypeFile:
		backend, err = tokenstore.NewFileStore(a.File)
	case TokenStorageTypeEnv:
		backend, err = tokenstore.NewEnvStore(a.EnvKey)
	case TokenStorageTypeKeyring:
		backend, err = tokenstore.NewKeyringStore(DefaultConfigKeyringService, a.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
	if err != nil {
		return nil, err
	}
	return tokenstore.New(string(a.Storage), backend)
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level `json:"log_level"`
	LogFormat LogFormat  `json:"log_format" validate:"oneof=text json otel"`
	// Debug forces debug-level logging.
	Debug  bool         `json:"debug"`
	API    APIConfig    `json:"api"`
	Auth   AuthConfig   `json:"auth"`
	Reader ReaderConfig `json:"reader"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults. The base URL has
// no default.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Debug {
		c.LogLevel = slog.LevelDebug
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "folio", "token")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeEnv:
		if c.Auth.EnvKey == "" {
			c.Auth.EnvKey = DefaultConfigAuthEnvKey
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return err
	}

	if c.Auth.Ephemeral {
		return nil
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeEnv:
		if c.Auth.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}

// ClientOptions returns the per-request defaults derived from the configuration.
func (c *Config) ClientOptions() apiclient.Options {
	o := apiclient.DefaultOptions()
	o.Timeout = c.API.Timeout
	if c.API.IdempotentRetries != nil {
		o.IdempotentRetries = *c.API.IdempotentRetries
	}
	return o
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("base_url", func(fl validator.FieldLevel) bool {
		return isBaseURL(fl.Field().String())
	})
	return v
}

// isBaseURL accepts absolute http(s) URLs with a host, or the offline sentinel.
func isBaseURL(s string) bool {
	if strings.HasPrefix(s, OfflineBaseURL) {
		return true
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
