// Package support holds the step definitions for the glens end-to-end features.
package support

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/MeKo-Tech/glens/internal/detector"
	"github.com/MeKo-Tech/glens/internal/imageio"
	"github.com/MeKo-Tech/glens/internal/search"
	"github.com/MeKo-Tech/glens/internal/search/google"
	"github.com/MeKo-Tech/glens/internal/server"
)

// TestContext carries per-scenario state: the fake provider, the service under
// test and the last response received from it.
type TestContext struct {
	Provider *FakeProvider
	Service  *httptest.Server

	FixtureDir string
	TempDir    string

	detections []detector.Detection

	LastStatus int
	LastBody   []byte
}

// NewTestContext creates the fake provider and scratch directories for a scenario.
func NewTestContext() (*TestContext, error) {
	fixtures, err := os.MkdirTemp("", "glens-fixtures-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create fixture dir: %w", err)
	}
	tmp, err := os.MkdirTemp("", "glens-work-*")
	if err != nil {
		_ = os.RemoveAll(fixtures)
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	return &TestContext{
		Provider:   NewFakeProvider(),
		FixtureDir: fixtures,
		TempDir:    tmp,
	}, nil
}

// stubDetector reports fixed detections regardless of the image.
type stubDetector struct {
	dets []detector.Detection
}

func (d stubDetector) Detect(context.Context, image.Image) ([]detector.Detection, error) {
	return d.dets, nil
}

// startService wires the real search and crop stack against the fake provider.
// It is idempotent so that several request steps share one service.
func (tc *TestContext) startService() error {
	if tc.Service != nil {
		return nil
	}

	provider, err := google.New(google.Config{
		BaseURL: tc.Provider.Server.URL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	loader := imageio.NewLoader(imageio.DefaultConfig(), nil)
	croppers := map[crop.Kind]server.Cropper{
		crop.KindForeground: crop.NewCropper(loader, crop.NewForegroundStrategy(0), tc.TempDir),
	}
	if tc.detections != nil {
		croppers[crop.KindObjectDetection] = crop.NewCropper(loader,
			crop.NewObjectStrategy(stubDetector{dets: tc.detections}), tc.TempDir)
	}

	srv, err := server.NewServer(server.Config{
		MaxUploadMB:     5,
		TimeoutSec:      10,
		TempDir:         tc.TempDir,
		DefaultMaxPages: 2,
		DefaultCropKind: crop.DefaultKind,
	}, server.Dependencies{
		Searcher: search.NewOrchestrator(provider, nil),
		Croppers: croppers,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	tc.Service = httptest.NewServer(srv.Handler())
	return nil
}

// Fixture returns the path of a named fixture file.
func (tc *TestContext) Fixture(name string) string {
	return filepath.Join(tc.FixtureDir, name)
}

// Do sends req to the service and records the response.
func (tc *TestContext) Do(req *http.Request) error {
	resp, err := tc.Service.Client().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	tc.LastStatus = resp.StatusCode
	tc.LastBody = body
	return nil
}

// Cleanup stops both servers and removes scratch directories.
func (tc *TestContext) Cleanup() error {
	if tc.Service != nil {
		tc.Service.Close()
	}
	tc.Provider.Close()
	return errors.Join(os.RemoveAll(tc.FixtureDir), os.RemoveAll(tc.TempDir))
}
