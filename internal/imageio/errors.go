package imageio

import (
	"errors"
	"fmt"
)

var (
	// ErrFileNotFound is returned when a local image path does not exist or cannot be read.
	ErrFileNotFound = errors.New("image file not found")

	// ErrEmptyBody is wrapped by DownloadError when the remote server sent no bytes.
	ErrEmptyBody = errors.New("empty response body")
)

// DownloadError represents a failed fetch of a remote image.
type DownloadError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 && e.Err == nil {
		return fmt.Sprintf("failed to download image from %s: status code %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to download image from %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// DecodeError represents bytes that could not be decoded as an image.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image from %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
