package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"

	"github.com/florianilch/folio/internal/tokenstore"
)

// absoluteURL matches "scheme://..." targets, which bypass the base URL.
var absoluteURL = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://`)

// Client sends authenticated requests to the backend.
type Client struct {
	baseURL     string
	http        *http.Client
	tokens      tokenstore.TokenStore
	refresher   *Coordinator
	defaults    Options
	backoffStep time.Duration
	backoffMax  time.Duration
}

// New creates a Client for baseURL. Its HTTP client carries an in-memory cookie jar
// so the session cookie set at login reaches the refresh endpoint.
func New(baseURL string, tokens tokenstore.TokenStore, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if tokens == nil {
		return nil, fmt.Errorf("missing token store")
	}

	cfg := &clientConfig{
		defaults:    DefaultOptions(),
		backoffStep: DefaultBackoffStep,
		backoffMax:  DefaultBackoffMax,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	// No client-level Timeout: deadlines are applied per attempt
	httpClient := &http.Client{Jar: jar, Transport: cfg.transport}

	c := &Client{
		baseURL:     baseURL,
		http:        httpClient,
		tokens:      tokens,
		defaults:    cfg.defaults,
		backoffStep: cfg.backoffStep,
		backoffMax:  cfg.backoffMax,
	}
	c.refresher = NewCoordinator(httpClient, c.ResolveURL(RefreshPath), tokens)

	return c, nil
}

// Refresher exposes the client's refresh coordinator.
func (c *Client) Refresher() *Coordinator {
	return c.refresher
}

// Tokens returns the token store the client authenticates with.
func (c *Client) Tokens() tokenstore.TokenStore {
	return c.tokens
}

// ResolveURL returns absolute URLs unchanged and joins relative paths to the base URL
// with exactly one separating slash.
func (c *Client) ResolveURL(pathOrURL string) string {
	if absoluteURL.MatchString(pathOrURL) {
		return pathOrURL
	}
	return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(pathOrURL, "/")
}

// outgoing is one fully prepared attempt.
type outgoing struct {
	method string
	url    string
	header http.Header
	body   []byte
	token  string
}

// Do sends req to pathOrURL. The returned response body is fully buffered.
func (c *Client) Do(ctx context.Context, pathOrURL string, req Request, opts ...Option) (*http.Response, error) {
	o := c.defaults
	for _, opt := range opts {
		opt(&o)
	}

	out := outgoing{
		method: req.Method,
		url:    c.ResolveURL(pathOrURL),
		body:   req.Body,
	}
	if out.method == "" {
		out.method = http.MethodGet
	}

	if cause := context.Cause(ctx); cause != nil {
		return nil, &AbortError{URL: out.url, Cause: cause}
	}

	requestID := uuid.NewString()
	log := slog.Default().With("method", out.method, "url", out.url, "request_id", requestID)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		log = log.With("trace_id", sc.TraceID().String())
	}

	out.header = defaultHeaders(req.Header, requestID)
	if o.Auth {
		out.token = c.tokens.Get(ctx)
	}

	resp, err := c.attempt(ctx, out, o.Timeout, log)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && o.RetryOn401 {
		log.DebugContext(ctx, "unauthorized, refreshing token")
		token, err := c.refresher.Refresh(ctx)
		if err != nil {
			return nil, &AbortError{URL: out.url, Cause: err}
		}
		if token != "" {
			// Later backoff retries reuse these post-refresh headers
			out.token = token
			resp, err = c.attempt(ctx, out, o.Timeout, log)
			if err != nil {
				return nil, err
			}
		}
	}

	if out.method == http.MethodGet && o.IdempotentRetries > 0 && isTransient(resp.StatusCode) {
		resp, err = c.retryTransient(ctx, out, resp, o, log)
		if err != nil {
			return nil, err
		}
	}

	if o.ThrowOnHTTPError && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		body, _ := io.ReadAll(resp.Body)
		return nil, newHTTPError(resp.StatusCode, out.url, body)
	}

	return resp, nil
}

// retryTransient re-issues a GET while the status stays transient. first is the
// response that triggered the retries; the last response obtained is returned.
func (c *Client) retryTransient(ctx context.Context, out outgoing, first *http.Response, o Options, log *slog.Logger) (*http.Response, error) {
	last := first
	tries := 0
	operation := func() (*http.Response, error) {
		tries++
		// The first try is the response already in hand
		if tries > 1 {
			resp, err := c.attempt(ctx, out, o.Timeout, log)
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			last = resp
		}
		if isTransient(last.StatusCode) {
			return last, &transientStatusError{status: last.StatusCode}
		}
		return last, nil
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newLinearBackOff(c.backoffStep, c.backoffMax)),
		backoff.WithMaxTries(uint(o.IdempotentRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.DebugContext(ctx, "transient response, backing off",
				"status", last.StatusCode, "attempt", tries, "wait", wait)
		}),
	)

	var transient *transientStatusError
	switch {
	case err == nil, errors.As(err, &transient):
		return last, nil
	case ctx.Err() != nil:
		return nil, &AbortError{URL: out.url, Cause: context.Cause(ctx)}
	default:
		return nil, err
	}
}

// attempt issues one request under its own deadline and buffers the body before the
// deadline is released.
func (c *Client) attempt(ctx context.Context, out outgoing, timeout time.Duration, log *slog.Logger) (*http.Response, error) {
	var (
		attemptCtx context.Context
		cancel     context.CancelFunc
	)
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeoutCause(ctx, timeout, ErrTimeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var body io.Reader
	if out.body != nil {
		body = bytes.NewReader(out.body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, out.method, out.url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header = out.header.Clone()
	if out.token != "" {
		(&oauth2.Token{AccessToken: out.token, TokenType: "Bearer"}).SetAuthHeader(req)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(attemptCtx, out.url, err, log)
	}

	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, c.transportError(attemptCtx, out.url, err, log)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	resp.ContentLength = int64(len(data))

	log.DebugContext(ctx, "attempt finished", "status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}

// transportError classifies a failed attempt as an abort (timeout or caller) or a
// network failure.
func (c *Client) transportError(attemptCtx context.Context, url string, err error, log *slog.Logger) error {
	if cause := context.Cause(attemptCtx); cause != nil {
		log.DebugContext(attemptCtx, "attempt aborted", "cause", cause)
		return &AbortError{URL: url, Cause: cause}
	}
	log.DebugContext(attemptCtx, "attempt failed", "error", err)
	return &NetworkError{URL: url, Err: err}
}

// defaultHeaders merges caller headers over the defaults.
func defaultHeaders(caller http.Header, requestID string) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	for key, values := range caller {
		h[http.CanonicalHeaderKey(key)] = slices.Clone(values)
	}
	if h.Get("X-Request-Id") == "" {
		h.Set("X-Request-Id", requestID)
	}
	return h
}
