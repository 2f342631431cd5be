package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Default per-call option values
const (
	DefaultTimeout           = 20 * time.Second
	DefaultIdempotentRetries = 2
)

// Options control a single Client.Do call.
type Options struct {
	// Auth attaches the stored bearer token.
	Auth bool
	// RetryOn401 refreshes the token once and re-issues the request on 401.
	RetryOn401 bool
	// ThrowOnHTTPError turns non-2xx responses into *APIError.
	ThrowOnHTTPError bool
	// Timeout bounds each attempt. Zero disables the per-attempt deadline.
	Timeout time.Duration
	// IdempotentRetries is the number of backoff retries for GET on transient statuses.
	IdempotentRetries int
}

// DefaultOptions returns the options applied when a call passes none.
func DefaultOptions() Options {
	return Options{
		Auth:              true,
		RetryOn401:        true,
		ThrowOnHTTPError:  true,
		Timeout:           DefaultTimeout,
		IdempotentRetries: DefaultIdempotentRetries,
	}
}

// Option modifies Options for one call.
type Option func(*Options)

// WithoutAuth sends the request without a bearer token.
func WithoutAuth() Option {
	return func(o *Options) { o.Auth = false }
}

// WithoutRefresh returns 401 responses without attempting a token refresh.
func WithoutRefresh() Option {
	return func(o *Options) { o.RetryOn401 = false }
}

// WithoutHTTPErrors returns non-2xx responses instead of *APIError.
func WithoutHTTPErrors() Option {
	return func(o *Options) { o.ThrowOnHTTPError = false }
}

// WithTimeout sets the per-attempt deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithIdempotentRetries sets the number of GET retries on transient statuses.
func WithIdempotentRetries(n int) Option {
	return func(o *Options) {
		if n < 0 {
			n = 0
		}
		o.IdempotentRetries = n
	}
}

// Request describes what to send. Body is kept as bytes so every attempt can replay it.
type Request struct {
	Method string
	Header http.Header
	Body   []byte
}

// JSONRequest encodes v as the request body.
func JSONRequest(method string, v any) (Request, error) {
	req := Request{Method: method, Header: http.Header{}}
	if v == nil {
		return req, nil
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return Request{}, fmt.Errorf("encoding request body: %w", err)
	}
	req.Body = buf.Bytes()
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// clientConfig holds configuration for New.
type clientConfig struct {
	transport   http.RoundTripper
	defaults    Options
	backoffStep time.Duration
	backoffMax  time.Duration
}

// WithTransport sets the RoundTripper used for every request.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(cfg *clientConfig) { cfg.transport = rt }
}

// WithDefaults replaces the options every call starts from.
func WithDefaults(o Options) ClientOption {
	return func(cfg *clientConfig) { cfg.defaults = o }
}

// WithBackoff sets the linear backoff step and cap used between GET retries.
func WithBackoff(step, max time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.backoffStep = step
		cfg.backoffMax = max
	}
}
