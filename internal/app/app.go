package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/florianilch/folio/internal/apiclient"
	"github.com/florianilch/folio/internal/library"
	"github.com/florianilch/folio/internal/reader"
	"github.com/florianilch/folio/internal/tokenstore"
)

// App wires the token store, HTTP client, resource endpoints and page reader for one
// process.
type App struct {
	cfg     *Config
	tokens  tokenstore.TokenStore
	client  *apiclient.Client
	library *library.Service
	reader  *reader.Reader
}

// Option configures App construction.
type Option func(*options)

type options struct {
	tokens     tokenstore.TokenStore
	clientOpts []apiclient.ClientOption
}

// WithTokenStore overrides the token store built from the auth configuration.
func WithTokenStore(s tokenstore.TokenStore) Option {
	return func(o *options) { o.tokens = s }
}

// WithClientOptions appends options to the HTTP client construction.
func WithClientOptions(opts ...apiclient.ClientOption) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, opts...) }
}

// New creates a new App instance. No I/O is performed.
func New(cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	tokens := o.tokens
	if tokens == nil {
		var err error
		tokens, err = cfg.Auth.NewTokenStore()
		if err != nil {
			return nil, fmt.Errorf("failed to create token store: %w", err)
		}
	}

	clientOpts := []apiclient.ClientOption{apiclient.WithDefaults(cfg.ClientOptions())}
	if cfg.API.Offline() {
		clientOpts = append(clientOpts, apiclient.WithTransport(apiclient.OfflineTransport{}))
	}
	clientOpts = append(clientOpts, o.clientOpts...)

	client, err := apiclient.New(cfg.API.BaseURL, tokens, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	var svcOpts []library.ServiceOption
	if cfg.API.IdempotentRetries != nil {
		svcOpts = append(svcOpts, library.WithGETRetries(*cfg.API.IdempotentRetries))
	}
	svc := library.NewService(client, svcOpts...)

	return &App{
		cfg:     cfg,
		tokens:  tokens,
		client:  client,
		library: svc,
		reader:  reader.New(svc, reader.WithPrefetchLimit(cfg.Reader.PrefetchLimit)),
	}, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() *Config { return a.cfg }

// Tokens returns the token store.
func (a *App) Tokens() tokenstore.TokenStore { return a.tokens }

// Library returns the resource endpoints.
func (a *App) Library() *library.Service { return a.library }

// Reader returns the page URL reader.
func (a *App) Reader() *reader.Reader { return a.reader }

// RefreshState reports whether a session refresh is in flight.
func (a *App) RefreshState() apiclient.RefreshState { return a.client.Refresher().State() }

// Authenticated reports whether an access token is stored.
func (a *App) Authenticated(ctx context.Context) bool {
	ok := a.tokens.Get(ctx) != ""
	slog.DebugContext(ctx, "checked stored token", "storage", a.storageName(), "present", ok)
	return ok
}

func (a *App) storageName() string {
	if a.cfg.Auth.Ephemeral {
		return "memory"
	}
	return string(a.cfg.Auth.Storage)
}
