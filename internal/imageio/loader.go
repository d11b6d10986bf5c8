package imageio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// AllowedUploadExtensions lists the file extensions accepted for uploads.
var AllowedUploadExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp"}

// IsAllowedUpload reports whether the filename has an allowed image extension.
func IsAllowedUpload(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, s := range AllowedUploadExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Config controls remote fetching.
type Config struct {
	Timeout   time.Duration
	MaxBytes  int64 // 0 means unlimited
	UserAgent string
}

// DefaultConfig returns the default fetch configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		MaxBytes:  20 << 20,
		UserAgent: "glens/1.0",
	}
}

// Loader fetches and decodes images from URLs or local paths.
type Loader struct {
	client *http.Client
	config Config
}

// NewLoader creates a Loader. A nil client gets a default one with the configured timeout.
func NewLoader(config Config, client *http.Client) *Loader {
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &Loader{client: client, config: config}
}

// Load returns the decoded image referenced by ref.
func (l *Loader) Load(ctx context.Context, ref string) (image.Image, error) {
	if IsRemote(ref) {
		data, err := l.Download(ctx, ref)
		if err != nil {
			return nil, err
		}
		return Decode(data, ref)
	}
	return LoadFile(ref)
}

// Download streams the remote resource into memory.
func (l *Loader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	if l.config.UserAgent != "" {
		req.Header.Set("User-Agent", l.config.UserAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DownloadError{URL: url, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if l.config.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, l.config.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &DownloadError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if l.config.MaxBytes > 0 && int64(len(data)) > l.config.MaxBytes {
		return nil, &DownloadError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("image exceeds %d bytes", l.config.MaxBytes),
		}
	}
	if len(data) == 0 {
		return nil, &DownloadError{URL: url, StatusCode: resp.StatusCode, Err: ErrEmptyBody}
	}

	slog.Debug("Downloaded image", "url", url, "bytes", len(data))
	return data, nil
}

// Decode decodes raw bytes into an image.
func Decode(data []byte, source string) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Source: source, Err: errors.New("image has no pixels")}
	}
	return img, nil
}

// LoadFile decodes an image from the local filesystem.
func LoadFile(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // G304: reading a caller-provided image path is expected
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFileNotFound, path, err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{Source: path, Err: err}
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Source: path, Err: errors.New("image has no pixels")}
	}
	return img, nil
}
