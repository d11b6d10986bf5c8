package detector

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"
)

// DefaultLoadRetryInterval is the minimum gap between attempts to load a model
// that failed to load.
const DefaultLoadRetryInterval = 30 * time.Second

// Lazy defers loading the model until the first Detect call. A failed load is
// returned to callers until RetryInterval has passed, then attempted again.
type Lazy struct {
	config Config
	load   func(Config) (*Detector, error)
	now    func() time.Time

	// RetryInterval is the minimum time between load attempts after a failure.
	RetryInterval time.Duration

	mu       sync.Mutex
	det      *Detector
	err      error
	failedAt time.Time
	closed   bool
}

// NewLazy returns a detector that loads config.ModelPath on first use.
func NewLazy(config Config) *Lazy {
	return &Lazy{
		config:        config,
		load:          NewDetector,
		now:           time.Now,
		RetryInterval: DefaultLoadRetryInterval,
	}
}

// Detect loads the model if needed and runs detection.
func (l *Lazy) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	det, err := l.get()
	if err != nil {
		return nil, err
	}
	return det.Detect(ctx, img)
}

// Loaded reports whether the model has been loaded successfully.
func (l *Lazy) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.det != nil
}

func (l *Lazy) get() (*Detector, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.closed:
		return nil, ErrClosed
	case l.det != nil:
		return l.det, nil
	case l.err != nil && l.now().Sub(l.failedAt) < l.RetryInterval:
		return nil, l.err
	}

	slog.Info("Loading object detection model", "model_path", l.config.ModelPath, "retry", l.err != nil)
	det, err := l.load(l.config)
	if err != nil {
		l.err, l.failedAt = err, l.now()
		slog.Error("Failed to load object detection model",
			"model_path", l.config.ModelPath, "retry_in", l.RetryInterval, "error", err)
		return nil, err
	}
	l.det, l.err = det, nil
	return det, nil
}

// Close releases the underlying detector if it was loaded.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.det == nil {
		return nil
	}
	err := l.det.Close()
	l.det = nil
	return err
}
