package server

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/MeKo-Tech/glens/internal/imageio"
	"github.com/MeKo-Tech/glens/internal/search"
	"github.com/MeKo-Tech/glens/internal/tempfile"
)

// glensHandler handles POST /glens: optional crop followed by a reverse image search.
func (s *Server) glensHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	scope := tempfile.NewScope(s.tempDir)
	defer func() {
		if err := scope.Close(); err != nil {
			slog.Warn("Failed to release request temp files", "request_id", requestIDFrom(r.Context()), "error", err)
		}
	}()

	req, err := s.parseGlensRequest(w, r, scope)
	if err != nil {
		glensRequests.WithLabelValues("false", "invalid").Inc()
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	results := []search.Item{}
	err = s.execute(ctx, scope, req, func(_ int, items []search.Item) error {
		results = append(results, items...)
		return nil
	})
	cropped := strconv.FormatBool(req.NeedCrop)
	if err != nil {
		glensRequests.WithLabelValues(cropped, "error").Inc()
		s.writeError(w, r, err)
		return
	}

	glensRequests.WithLabelValues(cropped, "success").Inc()
	resultsPerRequest.Observe(float64(len(results)))
	slog.Info("Search completed",
		"request_id", requestIDFrom(r.Context()),
		"source", req.sourceKind(),
		"cropped", req.NeedCrop,
		"results", len(results),
		"duration", time.Since(start))

	s.recordHistory(r.Context(), req, len(results), time.Since(start))
	writeJSON(w, http.StatusOK, results)
}

// parseGlensRequest validates the form and persists the upload when it is the
// image to search. The file extension is checked even when pic_url wins.
func (s *Server) parseGlensRequest(w http.ResponseWriter, r *http.Request, scope *tempfile.Scope) (searchRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return searchRequest{}, err
			}
			return searchRequest{}, badRequest("failed to parse form data")
		}
		if err := r.ParseForm(); err != nil {
			return searchRequest{}, badRequest("failed to parse form data")
		}
	}

	req := searchRequest{
		PicURL:   strings.TrimSpace(r.FormValue("pic_url")),
		CropKind: s.defaultCropKind,
		MaxPages: s.defaultMaxPages,
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		return searchRequest{}, badRequest("failed to read uploaded image")
	default:
		defer func() { _ = file.Close() }()
		if !imageio.IsAllowedUpload(header.Filename) {
			return searchRequest{}, badRequest("unsupported file type %q (allowed: %s)",
				filepath.Ext(header.Filename), strings.Join(imageio.AllowedUploadExtensions, ", "))
		}
	}

	if file == nil && req.PicURL == "" {
		return searchRequest{}, badRequest("either image or pic_url must be provided")
	}

	if v := r.FormValue("need_crop"); v != "" {
		needCrop, err := strconv.ParseBool(v)
		if err != nil {
			return searchRequest{}, badRequest("invalid need_crop value %q", v)
		}
		req.NeedCrop = needCrop
	}
	if v := strings.TrimSpace(r.FormValue("crop_type")); v != "" {
		kind, err := crop.ParseKind(v)
		if err != nil {
			return searchRequest{}, badRequest("invalid crop_type %q (use 0 for object detection or 1 for foreground)", v)
		}
		req.CropKind = kind
	}
	if v := strings.TrimSpace(r.FormValue("max_pages")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return searchRequest{}, badRequest("invalid max_pages %q (must be a positive integer)", v)
		}
		req.MaxPages = n
	}

	if req.PicURL == "" {
		path, err := persistUpload(scope, file, header)
		if err != nil {
			return searchRequest{}, err
		}
		req.File = path
	}
	return req, nil
}

func persistUpload(scope *tempfile.Scope, file multipart.File, header *multipart.FileHeader) (string, error) {
	uploadSizeBytes.Observe(float64(header.Size))
	ext := strings.ToLower(filepath.Ext(header.Filename))
	path, err := scope.WriteFrom("glens-upload-*"+ext, file)
	if err != nil {
		return "", err
	}
	slog.Debug("Persisted upload", "filename", header.Filename, "path", path, "bytes", header.Size)
	return path, nil
}
