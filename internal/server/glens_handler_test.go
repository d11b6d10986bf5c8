package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/MeKo-Tech/glens/internal/imageio"
	"github.com/MeKo-Tech/glens/internal/search"
	"github.com/MeKo-Tech/glens/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var twoPages = [][]search.Item{
	{{Title: "Cat", URL: "https://a.example/cat"}, {Title: "Dog", URL: "https://a.example/dog"}},
	{{Title: "Bird", URL: "https://a.example/bird"}},
	{{Title: "Fish", URL: "https://a.example/fish"}},
}

func decodeItems(t *testing.T, w *httptest.ResponseRecorder) []search.Item {
	t.Helper()
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var items []search.Item
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	return items
}

func TestGlensHandler_Validation(t *testing.T) {
	png := testutil.EncodePNG(t, testutil.BlackWithSquare(20, 20, image.Rect(5, 5, 10, 10)))

	tests := []struct {
		name    string
		fields  map[string]string
		file    *upload
		errPart string
	}{
		{"neither image nor url", nil, nil, "either image or pic_url"},
		{"blank url", map[string]string{"pic_url": "   "}, nil, "either image or pic_url"},
		{"disallowed extension", nil, &upload{"photo.webp", png}, "unsupported file type"},
		{"extension checked when url wins", map[string]string{"pic_url": "https://img.example/a.png"}, &upload{"notes.txt", png}, "unsupported file type"},
		{"bad need_crop", map[string]string{"pic_url": "https://img.example/a.png", "need_crop": "maybe"}, nil, "need_crop"},
		{"bad crop_type", map[string]string{"pic_url": "https://img.example/a.png", "crop_type": "7"}, nil, "crop_type"},
		{"zero max_pages", map[string]string{"pic_url": "https://img.example/a.png", "max_pages": "0"}, nil, "max_pages"},
		{"non-numeric max_pages", map[string]string{"pic_url": "https://img.example/a.png", "max_pages": "two"}, nil, "max_pages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &fakeSearcher{}
			s := newTestServer(t, testConfig(t), Dependencies{Searcher: searcher})

			w := serve(s, glensRequest(t, tt.fields, tt.file))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, tt.errPart)
			assert.NotEmpty(t, resp.RequestID)
			assert.Empty(t, searcher.calls, "invalid requests never reach the searcher")
		})
	}
}

func TestGlensHandler_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, testConfig(t), Dependencies{Searcher: &fakeSearcher{}})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/glens", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestGlensHandler_SearchByURL(t *testing.T) {
	searcher := &fakeSearcher{pages: twoPages}
	s := newTestServer(t, testConfig(t), Dependencies{Searcher: searcher})

	w := serve(s, glensRequest(t, map[string]string{"pic_url": " https://img.example/a.png "}, nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	items := decodeItems(t, w)
	assert.Equal(t, []search.Item{twoPages[0][0], twoPages[0][1], twoPages[1][0]}, items)

	call := searcher.lastCall(t)
	assert.Equal(t, search.ImageRef{URL: "https://img.example/a.png"}, call.Ref)
	assert.Equal(t, 2, call.MaxPages, "default max pages")
}

func TestGlensHandler_URLEncodedForm(t *testing.T) {
	searcher := &fakeSearcher{pages: twoPages}
	s := newTestServer(t, testConfig(t), Dependencies{Searcher: searcher})

	req := httptest.NewRequest(http.MethodPost, "/glens", strings.NewReader("pic_url=https%3A%2F%2Fimg.example%2Fb.png&max_pages=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := serve(s, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decodeItems(t, w), 2)
	assert.Equal(t, 1, searcher.lastCall(t).MaxPages)
}

func TestGlensHandler_MaxPagesOverride(t *testing.T) {
	searcher := &fakeSearcher{pages: twoPages}
	s := newTestServer(t, testConfig(t), Dependencies{Searcher: searcher})

	w := serve(s, glensRequest(t, map[string]string{"pic_url": "https://img.example/a.png", "max_pages": "3"}, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeItems(t, w), 4)
	assert.Equal(t, 3, searcher.lastCall(t).MaxPages)
}

func TestGlensHandler_EmptyResultsIsArray(t *testing.T) {
	s := newTestServer(t, testConfig(t), Dependencies{Searcher: &fakeSearcher{}})

	w := serve(s, glensRequest(t, map[string]string{"pic_url": "https://img.example/a.png"}, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGlensHandler_UploadIsPersistedAndRemoved(t *testing.T) {
	png := testutil.EncodePNG(t, testutil.BlackWithSquare(20, 20, image.Rect(5, 5, 10, 10)))
	cfg := testConfig(t)

	var seenPath string
	searcher := &fakeSearcher{pages: twoPages[:1]}
	searcher.onSearch = func(ref search.ImageRef) {
		seenPath = ref.File
		data, err := os.ReadFile(ref.File)
		if assert.NoError(t, err) {
			assert.Equal(t, png, data)
		}
	}
	s := newTestServer(t, cfg, Dependencies{Searcher: searcher})

	w := serve(s, glensRequest(t, nil, &upload{"Photo.PNG", png}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decodeItems(t, w), 2)
	assert.Empty(t, searcher.lastCall(t).Ref.URL)
	assert.Equal(t, cfg.TempDir, filepath.Dir(seenPath))
	assert.Equal(t, ".png", filepath.Ext(seenPath))
	assert.False(t, testutil.FileExists(seenPath), "upload must be removed after the request")
}

func TestGlensHandler_URLWinsOverUpload(t *testing.T) {
	png := testutil.EncodePNG(t, testutil.BlackWithSquare(20, 20, image.Rect(5, 5, 10, 10)))
	cfg := testConfig(t)
	searcher := &fakeSearcher{}
	s := newTestServer(t, cfg, Dependencies{Searcher: searcher})

	w := serve(s, glensRequest(t, map[string]string{"pic_url": "https://img.example/a.png"}, &upload{"a.jpg", png}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, search.ImageRef{URL: "https://img.example/a.png"}, searcher.lastCall(t).Ref)
	n, err := testutil.CountFiles(cfg.TempDir)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGlensHandler_CropUsesSelectedStrategy(t *testing.T) {
	tests := []struct {
		name     string
		cropType string
		wantKind crop.Kind
	}{
		{"default strategy", "", crop.KindForeground},
		{"object detection", "0", crop.KindObjectDetection},
		{"foreground", "1", crop.KindForeground},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			artifactDir := t.TempDir()
			croppers := map[crop.Kind]*fakeCropper{
				crop.KindObjectDetection: {dir: artifactDir, kind: crop.KindObjectDetection},
				crop.KindForeground:      {dir: artifactDir, kind: crop.KindForeground},
			}

			var searched string
			searcher := &fakeSearcher{pages: twoPages[:1]}
			searcher.onSearch = func(ref search.ImageRef) {
				searched = ref.File
				assert.True(t, testutil.FileExists(ref.File), "artifact must exist during the search")
			}
			s := newTestServer(t, testConfig(t), Dependencies{
				Searcher: searcher,
				Croppers: map[crop.Kind]Cropper{
					crop.KindObjectDetection: croppers[crop.KindObjectDetection],
					crop.KindForeground:      croppers[crop.KindForeground],
				},
			})

			fields := map[string]string{"pic_url": "https://img.example/a.png", "need_crop": "true"}
			if tt.cropType != "" {
				fields["crop_type"] = tt.cropType
			}
			w := serve(s, glensRequest(t, fields, nil))

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, []string{"https://img.example/a.png"}, croppers[tt.wantKind].refs)
			for kind, c := range croppers {
				if kind != tt.wantKind {
					assert.Empty(t, c.refs)
				}
			}

			call := searcher.lastCall(t)
			assert.Empty(t, call.Ref.URL, "cropped artifacts are searched as files")
			assert.Equal(t, artifactDir, filepath.Dir(searched))
			assert.False(t, testutil.FileExists(searched), "artifact must be removed after the request")
		})
	}
}

func TestGlensHandler_NeedCropFalseSkipsCropper(t *testing.T) {
	cropper := &fakeCropper{dir: t.TempDir()}
	s := newTestServer(t, testConfig(t), Dependencies{
		Searcher: &fakeSearcher{},
		Croppers: map[crop.Kind]Cropper{crop.KindForeground: cropper},
	})

	w := serve(s, glensRequest(t, map[string]string{"pic_url": "https://img.example/a.png", "need_crop": "false"}, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, cropper.refs)
}

func TestGlensHandler_ForegroundCropEndToEnd(t *testing.T) {
	fixture := testutil.BlackWithSquare(200, 200, image.Rect(60, 60, 110, 110))
	artifactDir := t.TempDir()
	cfg := testConfig(t)

	cropper := crop.NewCropper(
		imageio.NewLoader(imageio.DefaultConfig(), nil),
		crop.NewForegroundStrategy(crop.DefaultForegroundThreshold),
		artifactDir,
	)
	searcher := &fakeSearcher{pages: twoPages[:1]}
	searcher.onSearch = func(ref search.ImageRef) {
		img := testutil.LoadImage(t, ref.File)
		assert.Equal(t, 50, img.Bounds().Dx())
		assert.Equal(t, 50, img.Bounds().Dy())
	}
	s := newTestServer(t, cfg, Dependencies{
		Searcher: searcher,
		Croppers: map[crop.Kind]Cropper{crop.KindForeground: cropper},
	})

	w := serve(s, glensRequest(t,
		map[string]string{"need_crop": "1", "crop_type": "1"},
		&upload{"test.jpg", testutil.EncodePNG(t, fixture)}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decodeItems(t, w), 2)

	for _, dir := range []string{artifactDir, cfg.TempDir} {
		n, err := testutil.CountFiles(dir)
		require.NoError(t, err)
		assert.Zero(t, n, "no temp files may survive the request in %s", dir)
	}
}

func TestGlensHandler_CorruptUploadHidesTempPath(t *testing.T) {
	cfg := testConfig(t)
	cropper := crop.NewCropper(
		imageio.NewLoader(imageio.DefaultConfig(), nil),
		crop.NewForegroundStrategy(crop.DefaultForegroundThreshold),
		t.TempDir(),
	)
	searcher := &fakeSearcher{}
	s := newTestServer(t, cfg, Dependencies{
		Searcher: searcher,
		Croppers: map[crop.Kind]Cropper{crop.KindForeground: cropper},
	})

	w := serve(s, glensRequest(t,
		map[string]string{"need_crop": "1"},
		&upload{"x.png", []byte("not an image")}))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "image could not be decoded", body.Error)
	assert.NotContains(t, w.Body.String(), cfg.TempDir)
	assert.NotContains(t, w.Body.String(), "glens-upload-")
	assert.Empty(t, searcher.calls)

	n, err := testutil.CountFiles(cfg.TempDir)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGlensHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		cropErr    error
		searchErr  error
		wantStatus int
		wantMsg    string
	}{
		{"no foreground", crop.ErrNoForegroundFound, nil, http.StatusUnprocessableEntity, "no foreground"},
		{"no detection", crop.ErrNoDetectionFound, nil, http.StatusUnprocessableEntity, "no object"},
		{"download failure", &imageio.DownloadError{URL: "https://img.example/a.png", StatusCode: 404}, nil, http.StatusUnprocessableEntity, "failed to download image (status 404)"},
		{"decode failure", &imageio.DecodeError{Source: "upload", Err: errors.New("bad magic")}, nil, http.StatusUnprocessableEntity, "image could not be decoded"},
		{"missing file", fmt.Errorf("%w: /nope", imageio.ErrFileNotFound), nil, http.StatusUnprocessableEntity, "not found"},
		{"provider failure", nil, &search.ProviderError{Op: "search", Err: errors.New("captcha page")}, http.StatusBadGateway, "search provider request failed"},
		{"invalid ref", nil, fmt.Errorf("%w: both set", search.ErrInvalidInput), http.StatusBadRequest, "both set"},
		{"unexpected failure", nil, errors.New("disk on fire"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig(t), Dependencies{
				Searcher: &fakeSearcher{err: tt.searchErr},
				Croppers: map[crop.Kind]Cropper{crop.KindForeground: &fakeCropper{dir: t.TempDir(), err: tt.cropErr}},
			})

			fields := map[string]string{"pic_url": "https://img.example/a.png"}
			if tt.cropErr != nil {
				fields["need_crop"] = "true"
			}
			w := serve(s, glensRequest(t, fields, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, tt.wantMsg)
			assert.NotContains(t, resp.Error, "disk on fire")
			assert.NotContains(t, resp.Error, "captcha")
		})
	}
}

func TestGlensHandler_UnconfiguredCropper(t *testing.T) {
	s := newTestServer(t, testConfig(t), Dependencies{
		Searcher: &fakeSearcher{},
		Croppers: map[crop.Kind]Cropper{crop.KindForeground: &fakeCropper{dir: t.TempDir()}},
	})

	w := serve(s, glensRequest(t, map[string]string{"pic_url": "https://img.example/a.png", "need_crop": "true", "crop_type": "0"}, nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGlensHandler_UploadTooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxUploadMB = 1
	s := newTestServer(t, cfg, Dependencies{Searcher: &fakeSearcher{}})

	big := make([]byte, 2<<20)
	w := serve(s, glensRequest(t, nil, &upload{"big.png", big}))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestGlensHandler_RecordsHistory(t *testing.T) {
	hist := &fakeHistory{}
	s := newTestServer(t, testConfig(t), Dependencies{
		Searcher: &fakeSearcher{pages: twoPages},
		Croppers: map[crop.Kind]Cropper{crop.KindForeground: &fakeCropper{dir: t.TempDir()}},
		History:  hist,
	})

	w := serve(s, glensRequest(t, map[string]string{"pic_url": "https://img.example/a.png", "need_crop": "yes"}, nil))
	require.Equal(t, http.StatusBadRequest, w.Code, "need_crop accepts strconv booleans only")

	w = serve(s, glensRequest(t, map[string]string{"pic_url": "https://img.example/a.png", "need_crop": "t"}, nil))
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, hist.recorded, 1)
	e := hist.recorded[0]
	assert.Equal(t, "https://img.example/a.png", e.Source)
	assert.True(t, e.Cropped)
	assert.Equal(t, "foreground", e.Strategy)
	assert.Equal(t, 3, e.ResultCount)
}

func TestGlensHandler_HistoryFailureDoesNotFailRequest(t *testing.T) {
	s := newTestServer(t, testConfig(t), Dependencies{
		Searcher: &fakeSearcher{pages: twoPages},
		History:  &fakeHistory{err: errors.New("db down")},
	})

	w := serve(s, glensRequest(t, map[string]string{"pic_url": "https://img.example/a.png"}, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
