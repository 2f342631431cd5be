// Package apiclient is the authenticated HTTP client for the folio backend.
//
// Every request goes through Client.Do, which:
//   - resolves relative paths against the configured base URL
//   - attaches the bearer token from a tokenstore.TokenStore
//   - bounds each attempt with its own timeout, composed with the caller's context
//   - on 401, refreshes the token once through a single-flight Coordinator and retries
//   - retries GET requests on transient statuses with linear, capped backoff
//   - turns non-2xx responses into *APIError
//
// Basic usage:
//
//	client, err := apiclient.New("https://api.example.com", tokens)
//	resp, err := client.Do(ctx, "/pdfs", apiclient.Request{}, apiclient.WithTimeout(5*time.Second))
package apiclient
