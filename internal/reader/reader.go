package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/folio/internal/apiclient"
	"github.com/florianilch/folio/internal/library"
)

var (
	// ErrDocumentChanged is returned when the open document changed while a page URL
	// was being fetched.
	ErrDocumentChanged = errors.New("document changed while resolving page")

	// ErrNoDocument is returned when no document is open.
	ErrNoDocument = errors.New("no document open")
)

// DefaultPrefetchLimit bounds concurrent fetches during Prefetch.
const DefaultPrefetchLimit = 4

// PageURLSource fetches signed page URLs. library.Service implements it.
type PageURLSource interface {
	GetPageURL(ctx context.Context, id string, page int, hints library.RenderHints, opts ...apiclient.Option) (*library.PageURL, error)
}

// Compile-time check to ensure library.Service implements PageURLSource
var _ PageURLSource = (*library.Service)(nil)

// Option configures a Reader.
type Option func(*Reader)

// WithClock sets the clock used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(r *Reader) { r.now = now }
}

// WithPrefetchLimit sets how many pages Prefetch fetches at once.
func WithPrefetchLimit(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.prefetchLimit = n
		}
	}
}

// Reader caches page URLs for one open document at a time.
type Reader struct {
	source        PageURLSource
	now           func() time.Time
	prefetchLimit int

	mu         sync.Mutex
	generation uint64
	doc        *library.PDFDetail
	// static is the page URL list as the backend supplied it; doc.PageURLs also
	// receives backfilled signed URLs.
	static  []string
	entries map[entryKey]Entry

	group singleflight.Group
}

// entryKey identifies a cached URL: the same page rendered with different hints is a
// different image.
type entryKey struct {
	page  int
	hints string
}

// New creates a Reader with no open document.
func New(source PageURLSource, opts ...Option) *Reader {
	r := &Reader{
		source:        source,
		now:           time.Now,
		prefetchLimit: DefaultPrefetchLimit,
		entries:       make(map[entryKey]Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open makes doc the active document and wipes the cache.
func (r *Reader) Open(doc *library.PDFDetail) error {
	if doc == nil {
		return ErrNoDocument
	}
	if doc.Pages < 1 {
		return fmt.Errorf("document %q has no pages", doc.ID)
	}

	d := *doc
	d.PageURLs = slices.Clone(doc.PageURLs)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.doc = &d
	r.static = slices.Clone(doc.PageURLs)
	r.entries = make(map[entryKey]Entry)
	return nil
}

// Close forgets the active document and wipes the cache.
func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.doc = nil
	r.static = nil
	r.entries = make(map[entryKey]Entry)
}

// Document returns a copy of the active document including backfilled page URLs,
// or nil if none is open.
func (r *Reader) Document() *library.PDFDetail {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return nil
	}
	d := *r.doc
	d.PageURLs = slices.Clone(r.doc.PageURLs)
	return &d
}

// Entry returns the cached entry for page rendered with hints, if any.
func (r *Reader) Entry(page int, hints library.RenderHints) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[entryKey{page: page, hints: hints.Key()}]
	return e, ok
}

// Resolve returns the image URL for page of the active document. page is clamped to
// the document's page range.
func (r *Reader) Resolve(ctx context.Context, page int, hints library.RenderHints) (string, error) {
	r.mu.Lock()
	if r.doc == nil {
		r.mu.Unlock()
		return "", ErrNoDocument
	}
	page = min(max(page, 1), r.doc.Pages)
	ek := entryKey{page: page, hints: hints.Key()}

	if e, ok := r.entries[ek]; ok && !e.Stale(r.now()) {
		r.mu.Unlock()
		slog.DebugContext(ctx, "page url cache hit", "page", page)
		return e.URL, nil
	}
	if page <= len(r.static) && r.static[page-1] != "" {
		url := r.static[page-1]
		r.entries[ek] = Entry{URL: url}
		r.mu.Unlock()
		return url, nil
	}

	generation, id := r.generation, r.doc.ID
	r.mu.Unlock()

	// The fetch outlives any single caller; late waiters still share its result.
	detached := context.WithoutCancel(ctx)
	key := fmt.Sprintf("%d/%d/%s", generation, page, ek.hints)
	ch := r.group.DoChan(key, func() (any, error) {
		slog.DebugContext(ctx, "fetching page url", "document", id, "page", page)
		return r.source.GetPageURL(detached, id, page, hints)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
	if res.Err != nil {
		return "", fmt.Errorf("resolving page %d of %q: %w", page, id, res.Err)
	}
	pu := res.Val.(*library.PageURL)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != generation {
		slog.DebugContext(ctx, "discarding page url for previous document", "document", id, "page", page)
		return "", ErrDocumentChanged
	}
	r.entries[ek] = Entry{URL: pu.URL, ExpiresAt: pu.ExpiresAt}
	r.backfill(page, pu.URL)
	return pu.URL, nil
}

// backfill records url in the document's in-memory page URL list, growing it only as
// far as page. Callers hold mu.
func (r *Reader) backfill(page int, url string) {
	if len(r.doc.PageURLs) < page {
		r.doc.PageURLs = append(r.doc.PageURLs, make([]string, page-len(r.doc.PageURLs))...)
	}
	r.doc.PageURLs[page-1] = url
}

// Prefetch resolves pages concurrently so later Resolve calls hit the cache. It
// returns the first error encountered.
func (r *Reader) Prefetch(ctx context.Context, pages []int, hints library.RenderHints) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.prefetchLimit)

	seen := make(map[int]struct{}, len(pages))
	for _, page := range pages {
		if _, ok := seen[page]; ok {
			continue
		}
		seen[page] = struct{}{}

		g.Go(func() error {
			_, err := r.Resolve(ctx, page, hints)
			return err
		})
	}
	return g.Wait()
}
