package library

import "time"

// PDF is a catalogue entry.
type PDF struct {
	ID        string    `json:"id" validate:"required"`
	Title     string    `json:"title" validate:"required"`
	Pages     int       `json:"pages" validate:"gt=0"`
	CoverURL  string    `json:"coverUrl,omitempty"`
	Category  string    `json:"category,omitempty"`
	Tags      []string  `json:"tags" validate:"required"`
	UpdatedAt time.Time `json:"updatedAt" validate:"required"`
}

// PDFDetail is a single document. PageURLs, when the backend supplies them, are
// static (non-expiring) page image URLs indexed by page-1.
type PDFDetail struct {
	PDF
	Author      string   `json:"author,omitempty"`
	Description string   `json:"description,omitempty"`
	PageURLs    []string `json:"pageUrls,omitempty"`
}

// ListPage is one page of catalogue results. NextCursor is empty on the last page.
type ListPage struct {
	Items      []PDF  `json:"items" validate:"required,dive"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ListQuery filters the catalogue. Zero values are omitted from the request.
type ListQuery struct {
	Cursor   string
	Query    string
	Category string
	Tag      string
	Sort     string
}

// PageURL is a signed, possibly expiring, page image URL.
type PageURL struct {
	URL       string     `json:"url" validate:"required,url"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Width     int        `json:"width,omitempty" validate:"gte=0"`
	Height    int        `json:"height,omitempty" validate:"gte=0"`
}

// SearchHit is a page matching a search query.
type SearchHit struct {
	Page    int    `json:"page" validate:"gte=1"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchResult lists in-document search hits.
type SearchResult struct {
	Hits []SearchHit `json:"hits" validate:"required,dive"`
}

// session is the login and refresh response.
type session struct {
	AccessToken string `json:"accessToken" validate:"required"`
}
