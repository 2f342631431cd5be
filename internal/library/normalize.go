package library

import (
	"maps"
	"strconv"
	"time"
)

// alias copies m[fallback] into m[canonical] when canonical is missing.
func alias(m map[string]any, canonical, fallback string) {
	if isMissing(m[canonical]) && !isMissing(m[fallback]) {
		m[canonical] = m[fallback]
	}
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// normalizePDF applies field aliases and the documented defaults to one item.
// placeholderID is used only when no id is present at all.
func normalizePDF(raw any, placeholderID string, now time.Time) any {
	m, ok := raw.(map[string]any)
	if !ok {
		return raw
	}
	out := maps.Clone(m)

	alias(out, "id", "_id")
	alias(out, "title", "name")
	alias(out, "pages", "pageCount")
	alias(out, "coverUrl", "cover_url")
	alias(out, "updatedAt", "updated_at")
	alias(out, "pageUrls", "page_urls")

	if isMissing(out["id"]) && placeholderID != "" {
		out["id"] = placeholderID
	}
	if out["tags"] == nil {
		out["tags"] = []any{}
	}
	if isMissing(out["updatedAt"]) {
		out["updatedAt"] = now.UTC().Format(time.RFC3339)
	}
	return out
}

func listNormalizer(now func() time.Time) normalizer {
	return func(raw any) any {
		var out map[string]any
		switch v := raw.(type) {
		case []any:
			out = map[string]any{"items": v}
		case map[string]any:
			out = maps.Clone(v)
		default:
			return raw
		}

		alias(out, "items", "data")
		alias(out, "nextCursor", "next_cursor")
		if out["nextCursor"] == nil {
			delete(out, "nextCursor")
		}

		items, ok := out["items"].([]any)
		if !ok {
			return out
		}
		ts := now()
		normalized := make([]any, len(items))
		for i, item := range items {
			normalized[i] = normalizePDF(item, strconv.Itoa(i+1), ts)
		}
		out["items"] = normalized
		return out
	}
}

func detailNormalizer(id string, now func() time.Time) normalizer {
	return func(raw any) any {
		return normalizePDF(raw, id, now())
	}
}

func normalizePageURL(raw any) any {
	m, ok := raw.(map[string]any)
	if !ok {
		return raw
	}
	out := maps.Clone(m)
	alias(out, "url", "signedUrl")
	alias(out, "expiresAt", "expires_at")
	if isMissing(out["expiresAt"]) {
		delete(out, "expiresAt")
	}
	return out
}

func normalizeSearch(raw any) any {
	var out map[string]any
	switch v := raw.(type) {
	case []any:
		out = map[string]any{"hits": v}
	case map[string]any:
		out = maps.Clone(v)
	default:
		return raw
	}

	alias(out, "hits", "results")

	hits, ok := out["hits"].([]any)
	if !ok {
		return out
	}
	normalized := make([]any, len(hits))
	for i, hit := range hits {
		if m, ok := hit.(map[string]any); ok {
			h := maps.Clone(m)
			alias(h, "page", "pageNumber")
			normalized[i] = h
			continue
		}
		normalized[i] = hit
	}
	out["hits"] = normalized
	return out
}
