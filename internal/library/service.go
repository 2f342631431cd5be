package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/florianilch/folio/internal/apiclient"
)

// ErrInvalidCredentials is returned by Login when the backend rejects the email and
// password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// DefaultGETRetries is the idempotent retry count for catalogue reads.
const DefaultGETRetries = 1

// Service calls the backend's resource endpoints.
type Service struct {
	client     *apiclient.Client
	now        func() time.Time
	getRetries int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock sets the clock used for defaulted timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithGETRetries sets the idempotent retry count for catalogue reads. Per-call
// options still override it.
func WithGETRetries(n int) ServiceOption {
	return func(s *Service) { s.getRetries = max(n, 0) }
}

// NewService creates a Service on top of client.
func NewService(client *apiclient.Client, opts ...ServiceOption) *Service {
	s := &Service{client: client, now: time.Now, getRetries: DefaultGETRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login exchanges credentials for an access token and stores it. The backend also
// sets the session cookie the refresh endpoint relies on.
func (s *Service) Login(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return apiclient.NewLocalError(s.client.ResolveURL("/auth/login"), "email and password are required")
	}

	req, err := apiclient.JSONRequest(http.MethodPost, map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, "/auth/login", req, apiclient.WithoutAuth(), apiclient.WithoutRefresh())
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return fmt.Errorf("login: %w: %w", ErrInvalidCredentials, err)
		}
		return fmt.Errorf("login: %w", err)
	}

	sess, err := decodeBody[session](ctx, s.client.ResolveURL("/auth/login"), resp, nil)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if err := s.client.Tokens().Set(ctx, sess.AccessToken); err != nil {
		return fmt.Errorf("storing access token: %w", err)
	}
	return nil
}

// Logout ends the backend session on a best-effort basis and always clears the
// stored token.
func (s *Service) Logout(ctx context.Context) error {
	resp, err := s.client.Do(ctx, "/auth/logout", apiclient.Request{Method: http.MethodPost},
		apiclient.WithoutRefresh(), apiclient.WithoutHTTPErrors())
	switch {
	case err != nil:
		slog.WarnContext(ctx, "logout request failed", "error", err)
	case resp.StatusCode >= 300:
		slog.WarnContext(ctx, "logout rejected", "status", resp.StatusCode)
	}

	if err := s.client.Tokens().Clear(ctx); err != nil {
		return fmt.Errorf("clearing access token: %w", err)
	}
	return nil
}

// ListPDFs returns one page of the catalogue.
func (s *Service) ListPDFs(ctx context.Context, q ListQuery, opts ...apiclient.Option) (*ListPage, error) {
	params := url.Values{}
	for key, value := range map[string]string{
		"cursor":   q.Cursor,
		"q":        q.Query,
		"category": q.Category,
		"tag":      q.Tag,
		"sort":     q.Sort,
	} {
		if value != "" {
			params.Set(key, value)
		}
	}

	path := "/pdfs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return get[ListPage](ctx, s, path, listNormalizer(s.now), opts)
}

// GetPDF returns a single document.
func (s *Service) GetPDF(ctx context.Context, id string, opts ...apiclient.Option) (*PDFDetail, error) {
	idParam, err := s.pathID(id)
	if err != nil {
		return nil, err
	}
	return get[PDFDetail](ctx, s, "/pdfs/"+idParam, detailNormalizer(id, s.now), opts)
}

// GetPageURL returns a signed URL for one page. Pages below 1 are rejected without
// any network call.
func (s *Service) GetPageURL(ctx context.Context, id string, page int, hints RenderHints, opts ...apiclient.Option) (*PageURL, error) {
	idParam, err := s.pathID(id)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		return nil, apiclient.NewLocalError(
			s.client.ResolveURL(fmt.Sprintf("/pdfs/%s/pages/%d/url", idParam, page)),
			fmt.Sprintf("invalid page number %d", page))
	}
	pageParam, err := runtime.StyleParamWithLocation("simple", false, "n", runtime.ParamLocationPath, page)
	if err != nil {
		return nil, fmt.Errorf("encoding page number: %w", err)
	}

	path := "/pdfs/" + idParam + "/pages/" + pageParam + "/url"
	if query := hints.Query(); len(query) > 0 {
		path += "?" + query.Encode()
	}
	return get[PageURL](ctx, s, path, normalizePageURL, opts)
}

// Search finds pages of a document matching query.
func (s *Service) Search(ctx context.Context, id, query string, opts ...apiclient.Option) (*SearchResult, error) {
	idParam, err := s.pathID(id)
	if err != nil {
		return nil, err
	}
	path := "/pdfs/" + idParam + "/search?" + url.Values{"q": []string{query}}.Encode()
	return get[SearchResult](ctx, s, path, normalizeSearch, opts)
}

// pathID validates and escapes a document id for use as a path segment.
func (s *Service) pathID(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", apiclient.NewLocalError(s.client.ResolveURL("/pdfs"), "document id is required")
	}
	param, err := runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, id)
	if err != nil {
		return "", fmt.Errorf("encoding document id: %w", err)
	}
	return param, nil
}

// get issues a GET with the service's retry count, letting opts override it.
func get[T any](ctx context.Context, s *Service, path string, normalize normalizer, opts []apiclient.Option) (*T, error) {
	opts = append([]apiclient.Option{apiclient.WithIdempotentRetries(s.getRetries)}, opts...)
	resp, err := s.client.Do(ctx, path, apiclient.Request{Method: http.MethodGet}, opts...)
	if err != nil {
		return nil, err
	}
	return decodeBody[T](ctx, s.client.ResolveURL(path), resp, normalize)
}

func decodeBody[T any](ctx context.Context, url string, resp *http.Response, normalize normalizer) (*T, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return decodeResponse[T](ctx, url, resp.StatusCode, data, normalize)
}
