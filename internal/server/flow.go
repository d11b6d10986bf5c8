package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/MeKo-Tech/glens/internal/history"
	"github.com/MeKo-Tech/glens/internal/search"
	"github.com/MeKo-Tech/glens/internal/tempfile"
)

// searchRequest is a validated request shared by the HTTP and websocket routes.
type searchRequest struct {
	PicURL   string
	File     string // persisted upload, used only when PicURL is empty
	NeedCrop bool
	CropKind crop.Kind
	MaxPages int
}

func (r searchRequest) source() string {
	if r.PicURL != "" {
		return r.PicURL
	}
	return r.File
}

func (r searchRequest) sourceKind() string {
	if r.PicURL != "" {
		return "url"
	}
	return "upload"
}

// execute optionally crops the image and runs the search, passing each page to fn.
// Artifacts are adopted by scope.
func (s *Server) execute(ctx context.Context, scope *tempfile.Scope, req searchRequest, fn search.PageFunc) error {
	ref := search.ImageRef{URL: req.PicURL}
	if ref.URL == "" {
		ref.File = req.File
	}

	if req.NeedCrop {
		cropper, ok := s.croppers[req.CropKind]
		if !ok {
			return fmt.Errorf("%w: %s", errCropperUnavailable, req.CropKind)
		}

		start := time.Now()
		artifact, err := cropper.Crop(ctx, req.source())
		cropDuration.WithLabelValues(req.CropKind.String()).Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		scope.Track(artifact.Path)

		slog.Debug("Cropped image before search",
			"strategy", req.CropKind.String(), "box", artifact.Box.String(),
			"width", artifact.Width, "height", artifact.Height)
		ref = search.ImageRef{File: artifact.Path}
	}

	return s.searcher.SearchPages(ctx, ref, req.MaxPages, fn)
}

// recordHistory stores a completed search. Failures are logged only.
func (s *Server) recordHistory(ctx context.Context, req searchRequest, results int, took time.Duration) {
	if s.history == nil {
		return
	}

	entry := history.Entry{
		Source:      req.sourceKind(),
		Cropped:     req.NeedCrop,
		ResultCount: results,
		DurationMS:  took.Milliseconds(),
	}
	if req.PicURL != "" {
		entry.Source = req.PicURL
	}
	if req.NeedCrop {
		entry.Strategy = req.CropKind.String()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.history.Record(ctx, entry); err != nil {
		slog.Warn("Failed to record search history", "error", err)
	}
}
