package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/MeKo-Tech/glens/internal/search"
	"github.com/MeKo-Tech/glens/internal/tempfile"
	"github.com/gorilla/websocket"
)

const (
	wsReadLimit    = 64 << 10
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsSearchRequest is the single message a client sends after connecting.
type wsSearchRequest struct {
	PicURL   string `json:"pic_url"`
	NeedCrop bool   `json:"need_crop"`
	CropType *int   `json:"crop_type,omitempty"`
	MaxPages int    `json:"max_pages,omitempty"`
}

type wsPageMessage struct {
	Type  string        `json:"type"`
	Page  int           `json:"page"`
	Items []search.Item `json:"items"`
}

type wsDoneMessage struct {
	Type      string `json:"type"`
	Total     int    `json:"total"`
	RequestID string `json:"request_id,omitempty"`
}

type wsErrorMessage struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

// searchWebSocketHandler streams search results page by page.
func (s *Server) searchWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	id := requestIDFrom(r.Context())
	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr, "request_id", id)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(s.timeout))

	var msg wsSearchRequest
	if err := conn.ReadJSON(&msg); err != nil {
		s.sendWSError(conn, id, badRequest("invalid search request"))
		return
	}
	websocketMessagesTotal.WithLabelValues("received").Inc()
	_ = conn.SetReadDeadline(time.Time{})

	req, err := s.parseWSRequest(msg)
	if err != nil {
		s.sendWSError(conn, id, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	go watchClose(conn, cancel)

	scope := tempfile.NewScope(s.tempDir)
	defer func() { _ = scope.Close() }()

	start := time.Now()
	total := 0
	err = s.execute(ctx, scope, req, func(page int, items []search.Item) error {
		total += len(items)
		return s.sendWS(conn, wsPageMessage{Type: "page", Page: page, Items: items})
	})
	cropped := strconv.FormatBool(req.NeedCrop)
	if err != nil {
		glensRequests.WithLabelValues(cropped, "error").Inc()
		s.sendWSError(conn, id, err)
		return
	}

	glensRequests.WithLabelValues(cropped, "success").Inc()
	resultsPerRequest.Observe(float64(total))
	s.recordHistory(r.Context(), req, total, time.Since(start))

	if err := s.sendWS(conn, wsDoneMessage{Type: "done", Total: total, RequestID: id}); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteTimeout))
}

func (s *Server) parseWSRequest(msg wsSearchRequest) (searchRequest, error) {
	req := searchRequest{
		PicURL:   strings.TrimSpace(msg.PicURL),
		NeedCrop: msg.NeedCrop,
		CropKind: s.defaultCropKind,
		MaxPages: s.defaultMaxPages,
	}
	if req.PicURL == "" {
		return searchRequest{}, badRequest("pic_url must be provided")
	}
	if msg.CropType != nil {
		kind, err := crop.ParseKind(strconv.Itoa(*msg.CropType))
		if err != nil {
			return searchRequest{}, badRequest("invalid crop_type %d (use 0 for object detection or 1 for foreground)", *msg.CropType)
		}
		req.CropKind = kind
	}
	if msg.MaxPages < 0 {
		return searchRequest{}, badRequest("invalid max_pages %d (must be a positive integer)", msg.MaxPages)
	}
	if msg.MaxPages > 0 {
		req.MaxPages = msg.MaxPages
	}
	return req, nil
}

// watchClose drains the connection and cancels the search once the client goes away.
func watchClose(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (s *Server) sendWS(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		slog.Debug("Failed to write WebSocket message", "error", err)
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

func (s *Server) sendWSError(conn *websocket.Conn, id string, err error) {
	status, msg := statusForError(err)
	if errors.Is(err, context.Canceled) {
		slog.Debug("WebSocket search cancelled", "request_id", id)
		return
	}
	if status >= http.StatusInternalServerError {
		slog.Error("WebSocket search failed", "request_id", id, "status", status, "error", err)
	} else {
		slog.Info("WebSocket search rejected", "request_id", id, "status", status, "error", err)
	}
	_ = s.sendWS(conn, wsErrorMessage{Type: "error", Error: msg, Status: status, RequestID: id})
}
