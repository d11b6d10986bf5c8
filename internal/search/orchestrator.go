package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Orchestrator runs a search within one provider session and collects pages.
type Orchestrator struct {
	factory SessionFactory
	cache   Cache
}

// NewOrchestrator creates an Orchestrator. cache may be nil.
func NewOrchestrator(factory SessionFactory, cache Cache) *Orchestrator {
	return &Orchestrator{factory: factory, cache: cache}
}

// Search returns the flattened results of up to maxPages pages. The result is
// never nil.
func (o *Orchestrator) Search(ctx context.Context, ref ImageRef, maxPages int) ([]Item, error) {
	results := []Item{}
	err := o.SearchPages(ctx, ref, maxPages, func(_ int, items []Item) error {
		results = append(results, items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SearchPages issues the initial search and then follows continuation tokens
// until maxPages pages were delivered, the provider has no more pages, or a
// next-page request fails. A failed next-page request ends pagination without
// an error; a failed initial request returns a *ProviderError.
func (o *Orchestrator) SearchPages(ctx context.Context, ref ImageRef, maxPages int, fn PageFunc) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if maxPages < 1 {
		return fmt.Errorf("%w: max pages must be at least 1, got %d", ErrInvalidInput, maxPages)
	}

	source := "file"
	if ref.URL != "" {
		source = "url"
	}
	start := time.Now()
	defer func() { searchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds()) }()

	key := o.cacheKey(ref, maxPages)
	if key != "" {
		if items, ok := o.cached(ctx, key); ok {
			return fn(1, items)
		}
	}

	session, err := o.factory.Open(ctx)
	if err != nil {
		return &ProviderError{Op: "open session", Err: err}
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("Failed to close search session", "error", err)
		}
	}()

	page, err := initialSearch(ctx, session, ref)
	if err != nil {
		return &ProviderError{Op: "search", Err: err}
	}

	all := []Item{}
	complete := true
	for i := 0; page != nil && i < maxPages; i++ {
		pagesFetched.Inc()
		items := flatten(page)
		if err := fn(i+1, items); err != nil {
			return err
		}
		all = append(all, items...)

		if i+1 >= maxPages || page.Next == "" {
			break
		}
		next, err := session.NextPage(ctx, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			pageFailures.Inc()
			slog.Warn("Next page request failed, returning partial results",
				"page", i+2, "results", len(all), "error", err)
			complete = false
			break
		}
		page = next
	}

	slog.Debug("Search finished", "source", source, "results", len(all), "duration", time.Since(start))
	if key != "" && complete {
		if err := o.cache.Set(ctx, key, all); err != nil {
			slog.Warn("Failed to store search results in cache", "error", err)
		}
	}
	return nil
}

func initialSearch(ctx context.Context, session Session, ref ImageRef) (*Page, error) {
	if ref.URL != "" {
		return session.SearchURL(ctx, ref.URL)
	}
	return session.SearchFile(ctx, ref.File)
}

func (o *Orchestrator) cached(ctx context.Context, key string) ([]Item, bool) {
	items, ok, err := o.cache.Get(ctx, key)
	switch {
	case err != nil:
		cacheLookups.WithLabelValues("error").Inc()
		slog.Warn("Search cache lookup failed", "error", err)
		return nil, false
	case !ok:
		cacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	cacheLookups.WithLabelValues("hit").Inc()
	if items == nil {
		items = []Item{}
	}
	return items, true
}

// cacheKey hashes the URL or the file contents. It returns "" when caching is
// disabled or the file cannot be read.
func (o *Orchestrator) cacheKey(ref ImageRef, maxPages int) string {
	if o.cache == nil {
		return ""
	}
	h := sha256.New()
	if ref.URL != "" {
		h.Write([]byte("url:" + ref.URL))
	} else {
		f, err := os.Open(ref.File)
		if err != nil {
			return ""
		}
		defer func() { _ = f.Close() }()
		h.Write([]byte("file:"))
		if _, err := io.Copy(h, f); err != nil {
			return ""
		}
	}
	return hex.EncodeToString(h.Sum(nil)) + ":" + strconv.Itoa(maxPages)
}

// IsProviderError reports whether err came from the search provider.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
