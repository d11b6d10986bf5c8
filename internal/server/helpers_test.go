package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/MeKo-Tech/glens/internal/history"
	"github.com/MeKo-Tech/glens/internal/search"
	"github.com/stretchr/testify/require"
)

type searchCall struct {
	Ref      search.ImageRef
	MaxPages int
}

// fakeSearcher serves canned pages and records every call.
type fakeSearcher struct {
	mu       sync.Mutex
	pages    [][]search.Item
	err      error
	calls    []searchCall
	onSearch func(ref search.ImageRef)
}

func (f *fakeSearcher) SearchPages(ctx context.Context, ref search.ImageRef, maxPages int, fn search.PageFunc) error {
	f.mu.Lock()
	f.calls = append(f.calls, searchCall{Ref: ref, MaxPages: maxPages})
	f.mu.Unlock()

	if f.onSearch != nil {
		f.onSearch(ref)
	}
	if f.err != nil {
		return f.err
	}
	for i, items := range f.pages {
		if i >= maxPages {
			break
		}
		if err := fn(i+1, items); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSearcher) lastCall(t *testing.T) searchCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls, "searcher was not called")
	return f.calls[len(f.calls)-1]
}

// fakeCropper writes an empty artifact file, or fails with err.
type fakeCropper struct {
	mu   sync.Mutex
	dir  string
	kind crop.Kind
	err  error
	refs []string
}

func (f *fakeCropper) Crop(ctx context.Context, ref string) (*crop.Artifact, error) {
	f.mu.Lock()
	f.refs = append(f.refs, ref)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	fh, err := os.CreateTemp(f.dir, "glens-crop-*.png")
	if err != nil {
		return nil, err
	}
	_ = fh.Close()
	return &crop.Artifact{
		Path:     fh.Name(),
		Box:      crop.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10},
		Width:    10,
		Height:   10,
		Strategy: f.kind,
	}, nil
}

func (f *fakeCropper) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refs...)
}

type fakeHistory struct {
	mu       sync.Mutex
	recorded []history.Entry
	recent   []history.Entry
	err      error
	limit    int
}

func (f *fakeHistory) Record(ctx context.Context, e history.Entry) (history.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, e)
	return e, f.err
}

func (f *fakeHistory) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	f.limit = limit
	return f.recent, f.err
}

// testConfig mirrors the service defaults with a per-test temp dir.
func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		CORSOrigin:      "*",
		MaxUploadMB:     1,
		TimeoutSec:      5,
		TempDir:         t.TempDir(),
		DefaultMaxPages: 2,
		DefaultCropKind: crop.DefaultKind,
	}
}

func newTestServer(t *testing.T, config Config, deps Dependencies) *Server {
	t.Helper()
	s, err := NewServer(config, deps)
	require.NoError(t, err)
	return s
}

type upload struct {
	name string
	data []byte
}

func glensRequest(t *testing.T, fields map[string]string, file *upload) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("image", file.name)
		require.NoError(t, err)
		_, err = fw.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/glens", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}
