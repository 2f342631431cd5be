package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/folio/internal/app"
)

// loadWithArgs parses args with the global flags and loads the config from them.
func loadWithArgs(t *testing.T, configPath string, environ []string, args ...string) (*app.Config, error) {
	t.Helper()

	var (
		cfg     *app.Config
		loadErr error
	)
	cmd := &cli.Command{
		Name:  "folio",
		Flags: globalFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, loadErr = loadConfig(configPath, cmd, func() []string { return environ })
			return nil
		},
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"folio"}, args...)))
	return cfg, loadErr
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "folio.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_FileOnly(t *testing.T) {
	path := writeConfigFile(t, `
log_level = "debug"
log_format = "json"

[api]
base_url = "https://library.example.com"
timeout = "5s"
idempotent_retries = 0

[auth]
storage = "env"
env_key = "LIBRARY_TOKEN"
`)

	cfg, err := loadWithArgs(t, path, nil)
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, app.LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, "https://library.example.com", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	require.NotNil(t, cfg.API.IdempotentRetries)
	assert.Equal(t, 0, *cfg.API.IdempotentRetries)
	assert.Equal(t, app.TokenStorageTypeEnv, cfg.Auth.Storage)
	assert.Equal(t, "LIBRARY_TOKEN", cfg.Auth.EnvKey)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeConfigFile(t, `
[api]
base_url = "https://file.example.com"
timeout = "5s"

[auth]
storage = "env"
`)
	environ := []string{
		"FOLIO_API__BASE_URL=https://env.example.com",
		"FOLIO_API__TIMEOUT=7s",
		"UNRELATED=1",
	}

	cfg, err := loadWithArgs(t, path, environ)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, 7*time.Second, cfg.API.Timeout)

	cfg, err = loadWithArgs(t, path, environ, "--api--base-url", "https://flag.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://flag.example.com", cfg.API.BaseURL)
	assert.Equal(t, 7*time.Second, cfg.API.Timeout)
}

func TestLoadConfig_UnsetFlagsKeepEarlierSources(t *testing.T) {
	environ := []string{
		"FOLIO_API__BASE_URL=offline://",
		"FOLIO_LOG_FORMAT=otel",
		"FOLIO_AUTH__EPHEMERAL=true",
		"FOLIO_AUTH__STORAGE=env",
	}

	cfg, err := loadWithArgs(t, "", environ)
	require.NoError(t, err)

	assert.Equal(t, app.LogFormatOTel, cfg.LogFormat)
	assert.True(t, cfg.Auth.Ephemeral)
	assert.True(t, cfg.API.Offline())
}

func TestLoadConfig_DebugFlag(t *testing.T) {
	cfg, err := loadWithArgs(t, "", []string{"FOLIO_API__BASE_URL=offline://", "FOLIO_AUTH__STORAGE=env"}, "--debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		environ []string
		args    []string
	}{
		{"missing base url", []string{"FOLIO_AUTH__STORAGE=env"}, nil},
		{"relative base url", []string{"FOLIO_AUTH__STORAGE=env"}, []string{"--api--base-url", "/api"}},
		{"unknown storage", []string{"FOLIO_API__BASE_URL=offline://"}, []string{"--auth--storage", "floppy"}},
		{"unknown log format", []string{"FOLIO_API__BASE_URL=offline://", "FOLIO_AUTH__STORAGE=env"}, []string{"--log-format", "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadWithArgs(t, "", tt.environ, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadWithArgs(t, filepath.Join(t.TempDir(), "absent.toml"), nil)
	assert.Error(t, err)
}

func TestLoadConfig_RejectsUnknownFileKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
	}{
		{"misspelled nested key", "[api]\nbase_uri = \"https://library.example.com\"\n", "base_uri"},
		{"unknown section", "[cache]\nsize = 10\n", "cache"},
		{"unknown top-level key", "verbose = true\n", "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			_, err := loadWithArgs(t, path, []string{"FOLIO_API__BASE_URL=offline://", "FOLIO_AUTH__STORAGE=env"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadConfig_IgnoresTokenAndUnknownEnv(t *testing.T) {
	environ := []string{
		"FOLIO_API__BASE_URL=offline://",
		"FOLIO_AUTH__STORAGE=env",
		"FOLIO_ACCESS_TOKEN=secret",
		"FOLIO_SOMETHING_ELSE=1",
	}

	cfg, err := loadWithArgs(t, "", environ)
	require.NoError(t, err)
	assert.Equal(t, app.DefaultConfigAuthEnvKey, cfg.Auth.EnvKey)
}

func TestLoadConfig_ReaderPrefetchLimit(t *testing.T) {
	environ := []string{"FOLIO_API__BASE_URL=offline://", "FOLIO_AUTH__STORAGE=env", "FOLIO_READER__PREFETCH_LIMIT=2"}

	cfg, err := loadWithArgs(t, "", environ)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Reader.PrefetchLimit)

	cfg, err = loadWithArgs(t, "", environ, "--reader--prefetch-limit", "6")
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Reader.PrefetchLimit)

	_, err = loadWithArgs(t, "", environ, "--reader--prefetch-limit", "64")
	assert.Error(t, err)
}

func TestLoadConfig_SubcommandFlagsStayOutOfConfig(t *testing.T) {
	var (
		cfg     *app.Config
		loadErr error
	)
	path := writeConfigFile(t, "[api]\nbase_url = \"offline://\"\n\n[auth]\nstorage = \"env\"\n")
	root := &cli.Command{
		Name:  "folio",
		Flags: globalFlags(),
		Commands: []*cli.Command{{
			Name:  "pages",
			Flags: []cli.Flag{&cli.IntFlag{Name: "api--timeout-pages"}, &cli.FloatFlag{Name: "width"}},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg, loadErr = loadConfig(cmd.String("config"), cmd, func() []string { return nil })
				return nil
			},
		}},
	}

	args := []string{"folio", "--config", path, "--api--timeout", "3s", "pages", "--width", "640", "--api--timeout-pages", "9"}
	require.NoError(t, root.Run(context.Background(), args))
	require.NoError(t, loadErr)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.API.Offline())
}
