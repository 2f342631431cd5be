package commands

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/florianilch/folio/internal/apiclient"
	"github.com/florianilch/folio/internal/library"
	"github.com/florianilch/folio/internal/reader"
	"github.com/florianilch/folio/internal/tokenstore"
)

// Describe turns err into a message for the terminal.
func Describe(err error) string {
	var (
		apiErr   *apiclient.APIError
		netErr   *apiclient.NetworkError
		abortErr *apiclient.AbortError
	)

	switch {
	case errors.Is(err, apiclient.ErrOffline):
		return "running in offline mode, no backend is configured"
	case errors.As(err, &netErr):
		return "cannot reach the library backend: " + netErr.Err.Error()
	case errors.As(err, &abortErr) && abortErr.Timeout():
		return "the library backend did not answer in time"
	case errors.As(err, &abortErr), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, tokenstore.ErrReadOnly):
		return "the configured token storage is read-only; use file or keyring storage to log in"
	case errors.Is(err, library.ErrInvalidCredentials):
		return "the email or password was rejected"
	case errors.Is(err, reader.ErrDocumentChanged):
		return "the document was closed while pages were loading"
	case errors.As(err, &apiErr):
		return describeAPIError(apiErr)
	default:
		return err.Error()
	}
}

func describeAPIError(e *apiclient.APIError) string {
	switch {
	case e.IsShapeError():
		return "unexpected response from the library backend:\n  " + strings.Join(e.Diagnostics, "\n  ")
	case e.Status == http.StatusUnauthorized:
		return "not logged in or the session expired; run `folio login`"
	case e.Status == http.StatusForbidden:
		return "access denied: " + e.Message
	case e.Status == http.StatusNotFound:
		return "not found"
	default:
		return e.Error()
	}
}
