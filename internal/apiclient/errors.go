package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrAborted is matched by every *AbortError.
	ErrAborted = errors.New("request aborted")

	// ErrTimeout is the abort cause when an attempt exceeded its own deadline.
	ErrTimeout = errors.New("request timed out")
)

// APIError is the uniform error for non-2xx responses, response shapes that fail
// validation, and caller input rejected before any network call.
type APIError struct {
	Message string
	Status  int
	URL     string
	// Body is the decoded JSON payload, the raw text if it was not JSON, or nil.
	Body any
	// Diagnostics lists validation failures when the response shape was rejected.
	Diagnostics []string
}

func (e *APIError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	fmt.Fprintf(&sb, " (status %d", e.Status)
	if e.URL != "" {
		sb.WriteString(", " + e.URL)
	}
	sb.WriteString(")")
	if len(e.Diagnostics) > 0 {
		sb.WriteString(": " + strings.Join(e.Diagnostics, "; "))
	}
	return sb.String()
}

// IsShapeError reports whether the error describes a response body that failed validation.
func (e *APIError) IsShapeError() bool {
	return len(e.Diagnostics) > 0
}

// NewLocalError returns a 400-equivalent error for caller input rejected before any I/O.
func NewLocalError(url, message string) *APIError {
	return &APIError{Message: message, Status: http.StatusBadRequest, URL: url}
}

// newHTTPError builds an APIError from a buffered response body.
func newHTTPError(status int, url string, body []byte) *APIError {
	payload := parseErrorBody(body)
	return &APIError{
		Message: errorMessage(status, payload),
		Status:  status,
		URL:     url,
		Body:    payload,
	}
}

// parseErrorBody decodes body as JSON, falling back to raw text, or nil when empty.
func parseErrorBody(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return string(body)
}

// errorMessage prefers a message supplied by the backend over the status text.
func errorMessage(status int, payload any) string {
	if m, ok := payload.(map[string]any); ok {
		for _, key := range []string{"message", "error"} {
			if s, ok := m[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

// NetworkError means no HTTP response was obtained (DNS, refused connection, ...).
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable reports that transport failures are safe for callers to retry.
func (e *NetworkError) Retryable() bool { return true }

// AbortError means the attempt was cancelled. Cause is ErrTimeout when the per-attempt
// deadline fired, otherwise the cause of the caller's context.
type AbortError struct {
	URL   string
	Cause error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("request to %s aborted: %v", e.URL, e.Cause)
}

func (e *AbortError) Unwrap() []error { return []error{ErrAborted, e.Cause} }

// Timeout reports whether the internal deadline, not the caller, aborted the attempt.
func (e *AbortError) Timeout() bool { return errors.Is(e.Cause, ErrTimeout) }
