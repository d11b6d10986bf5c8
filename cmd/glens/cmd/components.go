package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/glens/internal/cache"
	"github.com/MeKo-Tech/glens/internal/config"
	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/MeKo-Tech/glens/internal/detector"
	"github.com/MeKo-Tech/glens/internal/history"
	"github.com/MeKo-Tech/glens/internal/imageio"
	"github.com/MeKo-Tech/glens/internal/onnx"
	"github.com/MeKo-Tech/glens/internal/search"
	"github.com/MeKo-Tech/glens/internal/search/google"
)

// cleanup collects release functions and runs them in reverse order.
type cleanup []func()

func (c *cleanup) add(f func()) {
	if f != nil {
		*c = append(*c, f)
	}
}

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func newImageLoader(cfg *config.Config) *imageio.Loader {
	return imageio.NewLoader(cfg.ToFetchConfig(), nil)
}

// newObjectDetector loads the detection model, or defers loading in lazy mode.
func newObjectDetector(cfg *config.Config) (crop.Detector, func(), error) {
	dc := cfg.ToDetectorConfig()
	if cfg.Detector.Lazy {
		l := detector.NewLazy(dc)
		return l, func() { _ = l.Close() }, nil
	}

	d, err := detector.NewDetector(dc)
	if err != nil {
		return nil, nil, err
	}
	return d, func() {
		if err := d.Close(); err != nil {
			slog.Warn("Failed to close detector", "error", err)
		}
	}, nil
}

// newCropper builds the cropper for kind. Artifacts are written to tempDir.
func newCropper(cfg *config.Config, source crop.ImageSource, kind crop.Kind, tempDir string) (*crop.Cropper, func(), error) {
	switch kind {
	case crop.KindForeground:
		strategy := crop.NewForegroundStrategy(uint8(cfg.Crop.ForegroundThreshold)) //nolint:gosec // validated to 0..254
		return crop.NewCropper(source, strategy, tempDir), nil, nil
	case crop.KindObjectDetection:
		det, release, err := newObjectDetector(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("object detection unavailable: %w", err)
		}
		return crop.NewCropper(source, crop.NewObjectStrategy(det), tempDir), func() {
			release()
			if err := onnx.Shutdown(); err != nil {
				slog.Warn("Failed to shut down ONNX Runtime", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", crop.ErrUnknownStrategy, kind)
	}
}

// newOrchestrator wires the search provider and the optional Redis cache.
func newOrchestrator(ctx context.Context, cfg *config.Config) (*search.Orchestrator, func(), error) {
	provider, err := google.New(cfg.ToGoogleConfig())
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Cache.Enabled {
		return search.NewOrchestrator(provider, nil), nil, nil
	}

	rc := cache.NewRedisCache(cfg.ToCacheConfig())
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		slog.Warn("Search cache is unreachable, searches will bypass it until it recovers",
			"addr", cfg.Cache.RedisAddr, "error", err)
	}
	return search.NewOrchestrator(provider, rc), func() { _ = rc.Close() }, nil
}

// newHistoryStore connects to PostgreSQL and creates the schema. It returns
// nil when history is disabled.
func newHistoryStore(ctx context.Context, cfg *config.Config) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := history.NewStore(ctx, cfg.History.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("history database unreachable: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
