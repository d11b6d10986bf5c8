package search

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeTitle applies NFC and trims surrounding whitespace.
func normalizeTitle(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// flatten keeps items that carry a thumbnail and maps them to Items.
func flatten(page *Page) []Item {
	items := make([]Item, 0, len(page.Items))
	for _, raw := range page.Items {
		if raw.Thumbnail == "" {
			continue
		}
		items = append(items, Item{Title: normalizeTitle(raw.Title), URL: raw.URL})
	}
	return items
}
