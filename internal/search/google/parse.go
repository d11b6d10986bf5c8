package google

import (
	"io"
	"net/url"
	"strings"

	"github.com/MeKo-Tech/glens/internal/search"
	"github.com/PuerkitoBio/goquery"
)

// resultSelector matches organic result blocks.
const resultSelector = "div.g"

// parsePage extracts result items and the next-page link. Relative links are
// resolved against base.
func parsePage(r io.Reader, base *url.URL) (*search.Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	page := &search.Page{Items: []search.RawItem{}}
	doc.Find(resultSelector).Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h3").First().Text())
		href, _ := s.Find("a[href]").First().Attr("href")
		thumb, _ := s.Find("img[src]").First().Attr("src")
		if title == "" && href == "" {
			return
		}
		page.Items = append(page.Items, search.RawItem{
			Title:     title,
			URL:       resolve(base, unwrapRedirect(href)),
			Thumbnail: thumb,
		})
	})

	if next, ok := doc.Find("a#pnnext").First().Attr("href"); ok && next != "" {
		page.Next = resolve(base, next)
	}
	return page, nil
}

// unwrapRedirect returns the target of a "/url?q=<target>" redirect link.
func unwrapRedirect(href string) string {
	if !strings.HasPrefix(href, "/url?") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if q := u.Query().Get("q"); q != "" {
		return q
	}
	return href
}

func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
