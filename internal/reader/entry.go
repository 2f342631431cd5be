package reader

import "time"

// ExpirySkew is subtracted from a signed URL's expiry when deciding staleness.
const ExpirySkew = 20 * time.Second

// Entry is a cached page URL. A nil ExpiresAt never goes stale.
type Entry struct {
	URL       string
	ExpiresAt *time.Time
}

// Stale reports whether the entry expires within ExpirySkew of now.
func (e Entry) Stale(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return !now.Before(e.ExpiresAt.Add(-ExpirySkew))
}
