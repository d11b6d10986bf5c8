package support

import (
	"fmt"
	"html"
	"image"
	_ "image/png" // decode uploaded crops
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Result is one listing rendered by the fake provider.
type Result struct {
	Title     string
	URL       string
	Thumbnail string
}

// FakeProvider imitates the reverse image search pages and also hosts test images.
type FakeProvider struct {
	Server *httptest.Server

	mu           sync.Mutex
	pages        [][]Result
	failStatus   int
	uploads      []image.Point
	imageURLs    []string
	nextRequests int
	images       map[string][]byte
}

// NewFakeProvider starts the fake provider.
func NewFakeProvider() *FakeProvider {
	p := &FakeProvider{images: map[string][]byte{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/searchbyimage", p.handleURLSearch)
	mux.HandleFunc("/searchbyimage/upload", p.handleUpload)
	mux.HandleFunc("/search", p.handleNext)
	mux.HandleFunc("/images/", p.handleImage)
	p.Server = httptest.NewServer(mux)
	return p
}

// Close stops the server.
func (p *FakeProvider) Close() { p.Server.Close() }

// SetPages replaces the pages served, first page first.
func (p *FakeProvider) SetPages(pages [][]Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages = pages
}

// FailWith makes every search request return status.
func (p *FakeProvider) FailWith(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failStatus = status
}

// Host makes data available at ImageURL(name).
func (p *FakeProvider) Host(name string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.images[name] = data
}

// ImageURL returns the URL a hosted image is served at.
func (p *FakeProvider) ImageURL(name string) string {
	return p.Server.URL + "/images/" + name
}

// Uploads returns the dimensions of every image uploaded for search.
func (p *FakeProvider) Uploads() []image.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]image.Point(nil), p.uploads...)
}

// ImageURLs returns the image_url values of URL searches.
func (p *FakeProvider) ImageURLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.imageURLs...)
}

// NextRequests returns how many next-page requests were served.
func (p *FakeProvider) NextRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextRequests
}

func (p *FakeProvider) handleURLSearch(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.imageURLs = append(p.imageURLs, r.URL.Query().Get("image_url"))
	p.mu.Unlock()
	p.render(w, 0)
}

func (p *FakeProvider) handleUpload(w http.ResponseWriter, r *http.Request) {
	f, _, err := r.FormFile("encoded_image")
	if err != nil {
		http.Error(w, "missing encoded_image", http.StatusBadRequest)
		return
	}
	defer func() { _ = f.Close() }()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		http.Error(w, "undecodable image", http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.uploads = append(p.uploads, image.Pt(cfg.Width, cfg.Height))
	p.mu.Unlock()
	p.render(w, 0)
}

func (p *FakeProvider) handleNext(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || n < 2 {
		http.Error(w, "bad page", http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.nextRequests++
	p.mu.Unlock()
	p.render(w, n-1)
}

func (p *FakeProvider) handleImage(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/images/")
	p.mu.Lock()
	data, ok := p.images[name]
	p.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}

func (p *FakeProvider) render(w http.ResponseWriter, index int) {
	p.mu.Lock()
	status := p.failStatus
	var results []Result
	if index < len(p.pages) {
		results = p.pages[index]
	}
	hasNext := index+1 < len(p.pages)
	p.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	var b strings.Builder
	b.WriteString("<html><body><div id=\"search\">")
	for _, res := range results {
		b.WriteString(`<div class="g"><a href="` + html.EscapeString(res.URL) + `"><h3>` + html.EscapeString(res.Title) + `</h3></a>`)
		if res.Thumbnail != "" {
			b.WriteString(`<img src="` + html.EscapeString(res.Thumbnail) + `">`)
		}
		b.WriteString("</div>")
	}
	if hasNext {
		fmt.Fprintf(&b, `<a id="pnnext" href="/search?page=%d">Next</a>`, index+2)
	}
	b.WriteString("</div></body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, b.String())
}
