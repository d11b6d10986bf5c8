package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/MeKo-Tech/glens/internal/imageio"
	"github.com/MeKo-Tech/glens/internal/search"
)

// errCropperUnavailable is returned when the requested strategy was not configured.
var errCropperUnavailable = errors.New("crop strategy unavailable")

// requestError is a client error detected while reading the request.
type requestError struct {
	Status  int
	Message string
}

func (e *requestError) Error() string { return e.Message }

func badRequest(format string, args ...any) error {
	return &requestError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// statusForError maps an error to the HTTP status and the message shown to the
// client. Client messages never carry paths, URLs or wrapped causes; the full
// error is only logged.
func statusForError(err error) (int, string) {
	var (
		reqErr   *requestError
		dlErr    *imageio.DownloadError
		decErr   *imageio.DecodeError
		provErr  *search.ProviderError
		maxBytes *http.MaxBytesError
	)
	switch {
	case errors.As(err, &reqErr):
		return reqErr.Status, reqErr.Message
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxBytes.Limit)
	case errors.Is(err, search.ErrInvalidInput), errors.Is(err, crop.ErrUnknownStrategy):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, crop.ErrNoForegroundFound):
		return http.StatusUnprocessableEntity, crop.ErrNoForegroundFound.Error()
	case errors.Is(err, crop.ErrNoDetectionFound):
		return http.StatusUnprocessableEntity, crop.ErrNoDetectionFound.Error()
	case errors.As(err, &dlErr):
		if dlErr.StatusCode != 0 {
			return http.StatusUnprocessableEntity, fmt.Sprintf("failed to download image (status %d)", dlErr.StatusCode)
		}
		return http.StatusUnprocessableEntity, "failed to download image"
	case errors.As(err, &decErr):
		return http.StatusUnprocessableEntity, "image could not be decoded"
	case errors.Is(err, imageio.ErrFileNotFound):
		return http.StatusUnprocessableEntity, "image file not found"
	case errors.As(err, &provErr):
		return http.StatusBadGateway, "search provider request failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
