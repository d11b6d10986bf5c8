// Package search runs reverse image searches against a provider and
// flattens the paginated results.
package search

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidInput is returned when an ImageRef or page limit is unusable.
var ErrInvalidInput = errors.New("invalid search input")

// Item is a flattened search result.
type Item struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// RawItem is a result as reported by the provider.
type RawItem struct {
	Title     string
	URL       string
	Thumbnail string
}

// Page is one provider result page. Next is an opaque continuation token;
// empty means there are no further pages.
type Page struct {
	Items []RawItem
	Next  string
}

// ImageRef identifies the query image. Exactly one field must be set.
type ImageRef struct {
	URL  string
	File string
}

// Validate checks that exactly one of URL and File is set.
func (r ImageRef) Validate() error {
	switch {
	case r.URL == "" && r.File == "":
		return fmt.Errorf("%w: either an image URL or a file is required", ErrInvalidInput)
	case r.URL != "" && r.File != "":
		return fmt.Errorf("%w: image URL and file are mutually exclusive", ErrInvalidInput)
	}
	return nil
}

func (r ImageRef) String() string {
	if r.URL != "" {
		return r.URL
	}
	return r.File
}

// Session is a provider connection scoped to one search.
type Session interface {
	SearchURL(ctx context.Context, imageURL string) (*Page, error)
	SearchFile(ctx context.Context, path string) (*Page, error)
	NextPage(ctx context.Context, page *Page) (*Page, error)
	Close() error
}

// SessionFactory opens provider sessions.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// SessionFactoryFunc adapts a function to SessionFactory.
type SessionFactoryFunc func(ctx context.Context) (Session, error)

// Open implements SessionFactory.
func (f SessionFactoryFunc) Open(ctx context.Context) (Session, error) { return f(ctx) }

// Cache stores complete result lists keyed by query.
type Cache interface {
	Get(ctx context.Context, key string) ([]Item, bool, error)
	Set(ctx context.Context, key string, items []Item) error
}

// PageFunc receives each flattened page as it arrives, numbered from 1.
// Returning an error stops the search.
type PageFunc func(page int, items []Item) error

// ProviderError wraps a failure of the initial provider request.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("search provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
