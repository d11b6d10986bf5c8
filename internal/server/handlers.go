package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/MeKo-Tech/glens/internal/history"
	"github.com/MeKo-Tech/glens/internal/version"
)

// defaultHistoryLimit is used when /history is called without a limit.
const defaultHistoryLimit = 50

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	croppers := make([]string, 0, len(s.croppers))
	for k := range s.croppers {
		croppers = append(croppers, k.String())
	}
	slices.Sort(croppers)

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  version.Version,
		Time:     time.Now().UTC().Format(time.RFC3339),
		Croppers: croppers,
		History:  s.history != nil,
	})
}

// historyHandler lists recent searches.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "search history is disabled"})
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, history.MaxRecent)
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list search history", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

// writeError maps err to a status code and writes a JSON error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusForError(err)
	id := requestIDFrom(r.Context())

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "request_id", id, "status", status, "error", err)
	} else {
		slog.Info("Request rejected", "request_id", id, "status", status, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: msg, RequestID: id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
