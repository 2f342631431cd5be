package library

import (
	"math"
	"net/url"
	"strconv"
)

// Accepted ranges for page rendering hints.
const (
	minDimension = 1
	maxDimension = 4096
	minDPR       = 1
	maxDPR       = 4
	minQuality   = 1
	maxQuality   = 100
)

// RenderHints ask the backend for a page image of a given size and quality.
// Zero and non-finite values are left out of the request.
type RenderHints struct {
	Width   float64
	Height  float64
	DPR     float64
	Quality float64
}

// Query serializes the hints, each clamped independently to its range.
func (h RenderHints) Query() url.Values {
	v := url.Values{}
	if w, ok := clamp(h.Width, minDimension, maxDimension); ok {
		v.Set("w", strconv.Itoa(int(math.Round(w))))
	}
	if ht, ok := clamp(h.Height, minDimension, maxDimension); ok {
		v.Set("h", strconv.Itoa(int(math.Round(ht))))
	}
	if dpr, ok := clamp(h.DPR, minDPR, maxDPR); ok {
		v.Set("dpr", strconv.FormatFloat(math.Round(dpr*100)/100, 'f', -1, 64))
	}
	if q, ok := clamp(h.Quality, minQuality, maxQuality); ok {
		v.Set("q", strconv.Itoa(int(math.Round(q))))
	}
	return v
}

// Key identifies the hints after clamping, for cache and flight keys.
func (h RenderHints) Key() string {
	return h.Query().Encode()
}

// clamp bounds v to [lo, hi]. ok is false for unset (zero) or non-finite values.
func clamp(v, lo, hi float64) (float64, bool) {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return math.Min(math.Max(v, lo), hi), true
}
