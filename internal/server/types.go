// Package server exposes the reverse image search over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/MeKo-Tech/glens/internal/history"
	"github.com/MeKo-Tech/glens/internal/search"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Searcher runs a paginated reverse image search.
type Searcher interface {
	SearchPages(ctx context.Context, ref search.ImageRef, maxPages int, fn search.PageFunc) error
}

// Cropper turns an image reference into a cropped artifact.
type Cropper interface {
	Crop(ctx context.Context, ref string) (*crop.Artifact, error)
}

// HistoryStore records completed searches.
type HistoryStore interface {
	Record(ctx context.Context, e history.Entry) (history.Entry, error)
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	TempDir         string
	DefaultMaxPages int
	DefaultCropKind crop.Kind
	RateLimit       RateLimitConfig
}

// Dependencies are the collaborators a Server delegates to. History is optional,
// and a strategy missing from Croppers is reported as unavailable.
type Dependencies struct {
	Searcher Searcher
	Croppers map[crop.Kind]Cropper
	History  HistoryStore
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	searcher        Searcher
	croppers        map[crop.Kind]Cropper
	history         HistoryStore
	rateLimiter     *RateLimiter
	corsOrigin      string
	maxUploadBytes  int64
	timeout         time.Duration
	tempDir         string
	defaultMaxPages int
	defaultCropKind crop.Kind
}

// Response types for API endpoints.
type HealthResponse struct {
	Status   string   `json:"status"`
	Version  string   `json:"version,omitempty"`
	Time     string   `json:"time"`
	Croppers []string `json:"croppers"`
	History  bool     `json:"history"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// NewServer creates a new server instance.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if deps.Searcher == nil {
		return nil, errors.New("server requires a searcher")
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 20
	}
	if config.TimeoutSec <= 0 {
		config.TimeoutSec = 60
	}
	if config.DefaultMaxPages <= 0 {
		config.DefaultMaxPages = 2
	}
	if config.CORSOrigin == "" {
		config.CORSOrigin = "*"
	}

	croppers := make(map[crop.Kind]Cropper, len(deps.Croppers))
	for k, c := range deps.Croppers {
		if c != nil {
			croppers[k] = c
		}
	}

	s := &Server{
		searcher:        deps.Searcher,
		croppers:        croppers,
		history:         deps.History,
		corsOrigin:      config.CORSOrigin,
		maxUploadBytes:  config.MaxUploadMB << 20,
		timeout:         time.Duration(config.TimeoutSec) * time.Second,
		tempDir:         config.TempDir,
		defaultMaxPages: config.DefaultMaxPages,
		defaultCropKind: config.DefaultCropKind,
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit)
	}
	return s, nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/glens", s.corsMiddleware(s.requestIDMiddleware(s.rateLimitMiddleware(s.glensHandler))))
	mux.HandleFunc("/history", s.corsMiddleware(s.historyHandler))
	// The websocket route is not wrapped by corsMiddleware: the upgrade needs the
	// raw ResponseWriter to hijack the connection.
	mux.HandleFunc("/ws/search", s.requestIDMiddleware(s.rateLimitMiddleware(s.searchWebSocketHandler)))
}

// Handler returns a mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}
