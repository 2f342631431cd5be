package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/folio/internal/apiclient"
	"github.com/florianilch/folio/internal/library"
	"github.com/florianilch/folio/internal/reader"
	"github.com/florianilch/folio/internal/tokenstore"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		API:  APIConfig{BaseURL: "https://library.example.com/api"},
		Auth: AuthConfig{Storage: TokenStorageTypeFile, File: filepath.Join(t.TempDir(), "token")},
	}
	require.NoError(t, cfg.ApplyDefaults())
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{Storage: TokenStorageTypeEnv}}
	require.NoError(t, cfg.ApplyDefaults())

	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, apiclient.DefaultTimeout, cfg.API.Timeout)
	assert.Nil(t, cfg.API.IdempotentRetries)
	assert.Equal(t, apiclient.DefaultIdempotentRetries, cfg.ClientOptions().IdempotentRetries)
	assert.Equal(t, DefaultConfigAuthEnvKey, cfg.Auth.EnvKey)
	assert.Empty(t, cfg.API.BaseURL)
}

func TestApplyDefaults_KeepsExplicitZeroRetries(t *testing.T) {
	zero := 0
	cfg := &Config{API: APIConfig{IdempotentRetries: &zero}, Auth: AuthConfig{Storage: TokenStorageTypeEnv}}
	require.NoError(t, cfg.ApplyDefaults())
	assert.Equal(t, 0, cfg.ClientOptions().IdempotentRetries)
}

func TestApplyDefaults_DebugForcesDebugLevel(t *testing.T) {
	cfg := &Config{Debug: true, LogLevel: slog.LevelError, Auth: AuthConfig{Storage: TokenStorageTypeEnv}}
	require.NoError(t, cfg.ApplyDefaults())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestValidate_BaseURL(t *testing.T) {
	tests := []struct {
		baseURL string
		valid   bool
	}{
		{"https://library.example.com", true},
		{"http://localhost:8080/api/", true},
		{"offline://", true},
		{"offline://demo", true},
		{"", false},
		{"library.example.com", false},
		{"/api", false},
		{"ftp://library.example.com", false},
		{"https://", false},
	}

	for _, tt := range tests {
		t.Run(tt.baseURL, func(t *testing.T) {
			cfg := validConfig(t)
			cfg.API.BaseURL = tt.baseURL
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
		{"unknown storage", func(c *Config) { c.Auth.Storage = "floppy" }},
		{"file storage without path", func(c *Config) { c.Auth.File = "" }},
		{"non-positive timeout", func(c *Config) { c.API.Timeout = -time.Second }},
		{"too many retries", func(c *Config) { c.API.IdempotentRetries = intPtr(50) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_EphemeralSkipsStorageSettings(t *testing.T) {
	cfg := validConfig(t)
	cfg.Auth.Ephemeral = true
	cfg.Auth.File = ""
	assert.NoError(t, cfg.Validate())
}

func TestNewTokenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("ephemeral uses memory", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Auth.Ephemeral = true

		store, err := cfg.Auth.NewTokenStore()
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, "tok"))
		assert.Equal(t, "tok", store.Get(ctx))
		assert.NoFileExists(t, cfg.Auth.File)
	})

	t.Run("file", func(t *testing.T) {
		cfg := validConfig(t)

		store, err := cfg.Auth.NewTokenStore()
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, "tok"))
		assert.FileExists(t, cfg.Auth.File)
	})

	t.Run("env is read-only", func(t *testing.T) {
		t.Setenv("FOLIO_TEST_TOKEN", "static")
		cfg := validConfig(t)
		cfg.Auth.Storage = TokenStorageTypeEnv
		cfg.Auth.EnvKey = "FOLIO_TEST_TOKEN"

		store, err := cfg.Auth.NewTokenStore()
		require.NoError(t, err)
		assert.Equal(t, "static", store.Get(ctx))
		assert.ErrorIs(t, store.Set(ctx, "other"), tokenstore.ErrReadOnly)
	})
}

func TestNew_WiresComponents(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	t.Cleanup(srv.Close)

	cfg := validConfig(t)
	cfg.API.BaseURL = srv.URL
	store, err := tokenstore.New("memory", tokenstore.NewMemoryStore())
	require.NoError(t, err)

	application, err := New(cfg, WithTokenStore(store))
	require.NoError(t, err)

	ctx := context.Background()
	assert.False(t, application.Authenticated(ctx))
	require.NoError(t, store.Set(ctx, "tok-1"))
	assert.True(t, application.Authenticated(ctx))

	page, err := application.Library().ListPDFs(ctx, library.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, "Bearer tok-1", auth)
	assert.Equal(t, apiclient.StateIdle, application.RefreshState())
	assert.NotNil(t, application.Reader())
}

func TestNew_OfflineFailsFast(t *testing.T) {
	cfg := validConfig(t)
	cfg.API.BaseURL = OfflineBaseURL
	cfg.Auth.Ephemeral = true

	application, err := New(cfg)
	require.NoError(t, err)

	_, err = application.Library().ListPDFs(context.Background(), library.ListQuery{})
	var netErr *apiclient.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.ErrorIs(t, err, apiclient.ErrOffline)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.API.BaseURL = ""
	_, err := New(cfg)
	require.Error(t, err)
}

func TestNew_ConfiguredRetriesReachLibraryReads(t *testing.T) {
	tests := []struct {
		name      string
		retries   *int
		wantCalls int32
	}{
		{"unset keeps the library default", nil, int32(library.DefaultGETRetries) + 1},
		{"zero disables retries", intPtr(0), 1},
		{"explicit count", intPtr(5), 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			t.Cleanup(srv.Close)

			cfg := validConfig(t)
			cfg.API.BaseURL = srv.URL
			cfg.API.IdempotentRetries = tt.retries
			cfg.Auth.Ephemeral = true

			application, err := New(cfg, WithClientOptions(apiclient.WithBackoff(time.Millisecond, time.Millisecond)))
			require.NoError(t, err)

			_, err = application.Library().ListPDFs(context.Background(), library.ListQuery{})
			var apiErr *apiclient.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
			assert.Equal(t, tt.wantCalls, hits.Load())
		})
	}
}

func TestNew_PrefetchLimitBoundsConcurrentPageFetches(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		wantMax int32
	}{
		{"configured limit", 1, 1},
		{"zero keeps the reader default", 0, reader.DefaultPrefetchLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inFlight, peak atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"url":"https://cdn.example.com/` + r.URL.Path + `.png"}`))
			}))
			t.Cleanup(srv.Close)

			cfg := validConfig(t)
			cfg.API.BaseURL = srv.URL
			cfg.Auth.Ephemeral = true
			cfg.Reader.PrefetchLimit = tt.limit

			application, err := New(cfg)
			require.NoError(t, err)

			rd := application.Reader()
			require.NoError(t, rd.Open(&library.PDFDetail{
				PDF: library.PDF{ID: "doc1", Title: "Doc", Pages: 8, Tags: []string{}},
			}))
			require.NoError(t, rd.Prefetch(context.Background(), []int{1, 2, 3, 4, 5, 6, 7, 8}, library.RenderHints{}))

			assert.LessOrEqual(t, peak.Load(), tt.wantMax)
			if tt.limit == 1 {
				assert.Equal(t, int32(1), peak.Load())
			}
		})
	}
}

func TestValidate_PrefetchLimitRange(t *testing.T) {
	cfg := validConfig(t)
	cfg.Reader.PrefetchLimit = 33
	assert.Error(t, cfg.Validate())

	cfg.Reader.PrefetchLimit = -1
	assert.Error(t, cfg.Validate())
}

func intPtr(n int) *int { return &n }
