package apiclient

import (
	"net/http"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Backoff between idempotent retries: min(step*attempt, max)
const (
	DefaultBackoffStep = 1500 * time.Millisecond
	DefaultBackoffMax  = 4 * time.Second
)

// TransientStatusCodes trigger backoff retries for GET requests.
var TransientStatusCodes = []int{
	http.StatusRequestTimeout,      // 408
	http.StatusTooEarly,            // 425
	http.StatusTooManyRequests,     // 429
	http.StatusInternalServerError, // 500
	http.StatusBadGateway,          // 502
	http.StatusServiceUnavailable,  // 503
	http.StatusGatewayTimeout,      // 504
}

func isTransient(status int) bool {
	return slices.Contains(TransientStatusCodes, status)
}

// linearBackOff waits step, 2*step, ... capped at max. Attempt numbering starts at 1.
type linearBackOff struct {
	step    time.Duration
	max     time.Duration
	attempt int
}

// Compile-time check that linearBackOff implements backoff.BackOff.
var _ backoff.BackOff = (*linearBackOff)(nil)

func newLinearBackOff(step, max time.Duration) *linearBackOff {
	return &linearBackOff{step: step, max: max}
}

// NextBackOff returns the wait before the next attempt.
func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	d := b.step * time.Duration(b.attempt)
	if d > b.max {
		d = b.max
	}
	return d
}

// Reset restarts attempt numbering.
func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// transientStatusError marks a response that should be retried after backoff.
type transientStatusError struct {
	status int
}

func (e *transientStatusError) Error() string {
	return "transient status " + http.StatusText(e.status)
}
