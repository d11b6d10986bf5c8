package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORSMiddleware(t *testing.T) {
	cfg := testConfig(t)
	cfg.CORSOrigin = "https://app.example"
	s := newTestServer(t, cfg, Dependencies{Searcher: &fakeSearcher{}})

	called := false
	h := s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		called = false
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodOptions, "/glens", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.False(t, called)
		assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("passes through", func(t *testing.T) {
		called = false
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.True(t, called)
		assert.Equal(t, http.StatusTeapot, w.Code)
		assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	s := newTestServer(t, testConfig(t), Dependencies{Searcher: &fakeSearcher{}})

	var seen string
	h := s.requestIDMiddleware(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFrom(r.Context())
	})

	tests := []struct {
		name   string
		header string
		reuse  bool
	}{
		{"generated when absent", "", false},
		{"client value reused", "trace-123", true},
		{"oversized value replaced", strings.Repeat("x", maxRequestIDLen+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/glens", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			w := httptest.NewRecorder()
			h(w, req)

			assert.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
			if tt.reuse {
				assert.Equal(t, tt.header, seen)
			} else {
				assert.Len(t, seen, 36, "uuid string")
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit = RateLimitConfig{Enabled: true, RequestsPerMinute: 1}
	s := newTestServer(t, cfg, Dependencies{Searcher: &fakeSearcher{}})

	first := serve(s, glensRequest(t, map[string]string{"pic_url": "https://img.example/a.png"}, nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := serve(s, glensRequest(t, map[string]string{"pic_url": "https://img.example/a.png"}, nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "minute", second.Header().Get("X-RateLimit-Type"))
	assert.Equal(t, "1", second.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body["error"])

	other := glensRequest(t, map[string]string{"pic_url": "https://img.example/a.png"}, nil)
	other.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, http.StatusOK, serve(s, other).Code, "other clients are unaffected")
}

func TestHandleRateLimitError_Quota(t *testing.T) {
	w := httptest.NewRecorder()
	handleRateLimitError(w, &QuotaExceededError{
		Type:   "data",
		Limit:  100,
		Used:   90,
		Resets: time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "data", w.Header().Get("X-Quota-Type"))
	assert.Equal(t, "90", w.Header().Get("X-Quota-Used"))
	assert.Equal(t, "Sat, 11 May 2024 00:00:00 GMT", w.Header().Get("X-Quota-Resets"))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xRealIP    string
		remoteAddr string
		want       string
	}{
		{"forwarded chain", "198.51.100.1, 10.0.0.1", "", "10.0.0.2:1234", "198.51.100.1"},
		{"single forwarded", " 198.51.100.2 ", "", "10.0.0.2:1234", "198.51.100.2"},
		{"real ip", "", "198.51.100.3", "10.0.0.2:1234", "198.51.100.3"},
		{"remote addr", "", "", "192.0.2.7:5555", "192.0.2.7"},
		{"remote addr without port", "", "", "192.0.2.8", "192.0.2.8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
