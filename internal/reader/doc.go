// Package reader resolves page image URLs for the open document, caching signed URLs
// until shortly before they expire.
//
// A Reader holds at most one open document. Opening or closing a document wipes the
// cache, and fetches still in flight for the previous document are discarded with
// ErrDocumentChanged.
package reader
