package apiclient

import (
	"errors"
	"net/http"
)

// OfflineScheme is the base URL scheme that marks a client without a backend.
const OfflineScheme = "offline"

// ErrOffline is the transport error of every request made in offline mode.
var ErrOffline = errors.New("offline mode: no backend configured")

// OfflineTransport fails every request, surfacing as *NetworkError.
type OfflineTransport struct{}

// Compile-time check that OfflineTransport implements http.RoundTripper.
var _ http.RoundTripper = OfflineTransport{}

// RoundTrip implements http.RoundTripper.
func (OfflineTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
	return nil, ErrOffline
}
