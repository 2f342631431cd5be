package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/florianilch/folio/internal/tokenstore"
)

// RefreshPath is the session refresh endpoint, relative to the base URL.
const RefreshPath = "/auth/refresh"

// refreshTimeout bounds the refresh call; it runs detached from any caller context.
const refreshTimeout = 20 * time.Second

// RefreshState is the coordinator's state.
type RefreshState int32

const (
	// StateIdle means no refresh is in flight.
	StateIdle RefreshState = iota
	// StateRefreshing means exactly one refresh call is in flight.
	StateRefreshing
)

func (s RefreshState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Coordinator runs at most one session refresh at a time. Callers arriving while a
// refresh is in flight share its result.
type Coordinator struct {
	client   *http.Client
	endpoint string
	tokens   tokenstore.TokenStore

	group singleflight.Group
	state atomic.Int32
}

// NewCoordinator creates a Coordinator that refreshes through endpoint and stores the
// new token in tokens. client must carry the session cookie (via its Jar).
func NewCoordinator(client *http.Client, endpoint string, tokens tokenstore.TokenStore) *Coordinator {
	return &Coordinator{
		client:   client,
		endpoint: endpoint,
		tokens:   tokens,
	}
}

// State reports whether a refresh is currently in flight.
func (c *Coordinator) State() RefreshState {
	return RefreshState(c.state.Load())
}

// Refresh returns a fresh token, or "" if the refresh failed. The only error is the
// caller's own cancellation; the refresh itself keeps running and still updates the
// token store.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan("refresh", func() (any, error) {
		c.state.Store(int32(StateRefreshing))
		defer c.state.Store(int32(StateIdle))
		return c.refresh(detached), nil
	})

	select {
	case res := <-ch:
		token, _ := res.Val.(string)
		return token, nil
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
}

// refresh calls the refresh endpoint with the session cookie, never the bearer token.
func (c *Coordinator) refresh(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	log := slog.Default().With("url", c.endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, nil)
	if err != nil {
		log.ErrorContext(ctx, "failed to build refresh request", "error", err)
		return ""
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.WarnContext(ctx, "token refresh failed", "error", err)
		return ""
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		log.InfoContext(ctx, "token refresh rejected", "status", resp.StatusCode)
		return ""
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.AccessToken == "" {
		log.WarnContext(ctx, "token refresh returned no token", "error", err)
		return ""
	}

	if err := c.tokens.Set(ctx, payload.AccessToken); err != nil {
		// The new token still serves the retry; only later processes lose it
		log.ErrorContext(ctx, "failed to persist refreshed token", "error", err)
	}

	log.DebugContext(ctx, "token refreshed")
	return payload.AccessToken
}
