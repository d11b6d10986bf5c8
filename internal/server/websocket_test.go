package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/MeKo-Tech/glens/internal/search"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsReply struct {
	Type   string        `json:"type"`
	Page   int           `json:"page"`
	Items  []search.Item `json:"items"`
	Total  int           `json:"total"`
	Error  string        `json:"error"`
	Status int           `json:"status"`
}

func dialSearch(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/search"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntilFinal collects messages up to and including a done or error message.
func readUntilFinal(t *testing.T, conn *websocket.Conn) []wsReply {
	t.Helper()

	var replies []wsReply
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var r wsReply
		require.NoError(t, json.Unmarshal(data, &r))
		replies = append(replies, r)
		if r.Type == "done" || r.Type == "error" {
			return replies
		}
	}
}

func TestSearchWebSocket_StreamsPages(t *testing.T) {
	searcher := &fakeSearcher{pages: twoPages}
	s := newTestServer(t, testConfig(t), Dependencies{Searcher: searcher})
	conn := dialSearch(t, s)

	require.NoError(t, conn.WriteJSON(map[string]any{"pic_url": "https://img.example/a.png", "max_pages": 3}))
	replies := readUntilFinal(t, conn)

	require.Len(t, replies, 4)
	for i, r := range replies[:3] {
		assert.Equal(t, "page", r.Type)
		assert.Equal(t, i+1, r.Page)
		assert.Equal(t, twoPages[i], r.Items)
	}
	assert.Equal(t, "done", replies[3].Type)
	assert.Equal(t, 4, replies[3].Total)
	assert.Equal(t, 3, searcher.lastCall(t).MaxPages)
}

func TestSearchWebSocket_DefaultsAndCrop(t *testing.T) {
	searcher := &fakeSearcher{pages: twoPages}
	cropper := &fakeCropper{dir: t.TempDir(), kind: crop.KindObjectDetection}
	s := newTestServer(t, testConfig(t), Dependencies{
		Searcher: searcher,
		Croppers: map[crop.Kind]Cropper{crop.KindObjectDetection: cropper},
	})
	conn := dialSearch(t, s)

	require.NoError(t, conn.WriteJSON(map[string]any{"pic_url": "https://img.example/a.png", "need_crop": true, "crop_type": 0}))
	replies := readUntilFinal(t, conn)

	assert.Equal(t, "done", replies[len(replies)-1].Type)
	assert.Equal(t, 3, replies[len(replies)-1].Total)
	assert.Equal(t, []string{"https://img.example/a.png"}, cropper.seen())

	call := searcher.lastCall(t)
	assert.Equal(t, 2, call.MaxPages)
	assert.NotEmpty(t, call.Ref.File)
}

func TestSearchWebSocket_Errors(t *testing.T) {
	tests := []struct {
		name       string
		request    any
		deps       Dependencies
		wantStatus int
	}{
		{"missing url", map[string]any{"need_crop": false}, Dependencies{Searcher: &fakeSearcher{}}, 400},
		{"bad crop type", map[string]any{"pic_url": "https://img.example/a.png", "crop_type": 9}, Dependencies{Searcher: &fakeSearcher{}}, 400},
		{"negative pages", map[string]any{"pic_url": "https://img.example/a.png", "max_pages": -1}, Dependencies{Searcher: &fakeSearcher{}}, 400},
		{"not json", "just text", Dependencies{Searcher: &fakeSearcher{}}, 400},
		{
			"provider failure",
			map[string]any{"pic_url": "https://img.example/a.png"},
			Dependencies{Searcher: &fakeSearcher{err: &search.ProviderError{Op: "search", Err: assert.AnError}}},
			502,
		},
		{
			"nothing to crop",
			map[string]any{"pic_url": "https://img.example/a.png", "need_crop": true},
			Dependencies{
				Searcher: &fakeSearcher{},
				Croppers: map[crop.Kind]Cropper{crop.KindForeground: &fakeCropper{err: crop.ErrNoForegroundFound}},
			},
			422,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig(t), tt.deps)
			conn := dialSearch(t, s)

			if text, ok := tt.request.(string); ok {
				require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(text)))
			} else {
				require.NoError(t, conn.WriteJSON(tt.request))
			}
			replies := readUntilFinal(t, conn)

			last := replies[len(replies)-1]
			assert.Equal(t, "error", last.Type)
			assert.Equal(t, tt.wantStatus, last.Status)
			assert.NotEmpty(t, last.Error)
		})
	}
}
