// Package google implements a search.SessionFactory for Google reverse image search.
package google

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/glens/internal/search"
)

// DefaultBaseURL is the public Google endpoint.
const DefaultBaseURL = "https://www.google.com"

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/124.0 Safari/537.36"

// Config controls how sessions reach the provider.
type Config struct {
	BaseURL   string
	Proxy     string // optional http(s) proxy URL
	Timeout   time.Duration
	UserAgent string
}

// StatusError reports a non-2xx response from the provider.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d for %s", e.StatusCode, e.URL)
}

// Provider opens one HTTP session with its own cookie jar per search.
type Provider struct {
	base      *url.URL
	proxy     *url.URL
	timeout   time.Duration
	userAgent string
}

// New validates config and returns a Provider.
func New(config Config) (*Provider, error) {
	raw := config.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid search base URL %q", raw)
	}

	p := &Provider{base: base, timeout: config.Timeout, userAgent: config.UserAgent}
	if p.userAgent == "" {
		p.userAgent = defaultUserAgent
	}
	if config.Proxy != "" {
		proxy, err := url.Parse(config.Proxy)
		if err != nil || proxy.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL %q", config.Proxy)
		}
		p.proxy = proxy
	}
	return p, nil
}

// Open implements search.SessionFactory.
func (p *Provider) Open(_ context.Context) (search.Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if p.proxy != nil {
		transport.Proxy = http.ProxyURL(p.proxy)
	}
	return &session{
		client:    &http.Client{Jar: jar, Transport: transport, Timeout: p.timeout},
		base:      p.base,
		userAgent: p.userAgent,
	}, nil
}

type session struct {
	client    *http.Client
	base      *url.URL
	userAgent string
}

func (s *session) SearchURL(ctx context.Context, imageURL string) (*search.Page, error) {
	u := *s.base
	u.Path += "/searchbyimage"
	u.RawQuery = url.Values{"image_url": {imageURL}, "safe": {"off"}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return s.do(req)
}

func (s *session) SearchFile(ctx context.Context, path string) (*search.Page, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is a request-scoped temp file
	if err != nil {
		return nil, fmt.Errorf("failed to read query image: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("encoded_image", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	u := *s.base
	u.Path += "/searchbyimage/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req)
}

func (s *session) NextPage(ctx context.Context, page *search.Page) (*search.Page, error) {
	if page == nil || page.Next == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.Next, nil)
	if err != nil {
		return nil, err
	}
	return s.do(req)
}

func (s *session) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *session) do(req *http.Request) (*search.Page, error) {
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: req.URL.Redacted(), StatusCode: resp.StatusCode}
	}

	page, err := parsePage(resp.Body, resp.Request.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse result page: %w", err)
	}
	slog.Debug("Fetched result page",
		"url", resp.Request.URL.Redacted(),
		"items", len(page.Items),
		"has_next", page.Next != "",
		"duration", time.Since(start))
	return page, nil
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
