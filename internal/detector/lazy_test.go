package detector

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazy_MissingModelWithinRetryInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "absent.onnx")

	loads := 0
	l := NewLazy(cfg)
	l.load = func(c Config) (*Detector, error) {
		loads++
		return NewDetector(c)
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))

	for range 3 {
		_, err := l.Detect(context.Background(), img)
		require.ErrorIs(t, err, ErrModelNotFound)
	}
	assert.Equal(t, 1, loads, "failures are not retried before the interval elapses")
	assert.False(t, l.Loaded())
}

func TestLazy_RetriesAfterTransientFailure(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	loadErr := errors.New("model file still being copied")

	loads := 0
	l := NewLazy(DefaultConfig())
	l.now = func() time.Time { return now }
	l.RetryInterval = time.Minute
	l.load = func(Config) (*Detector, error) {
		loads++
		if loads == 1 {
			return nil, loadErr
		}
		return &Detector{}, nil
	}

	_, err := l.get()
	require.ErrorIs(t, err, loadErr)

	now = now.Add(30 * time.Second)
	_, err = l.get()
	require.ErrorIs(t, err, loadErr)
	assert.Equal(t, 1, loads)

	now = now.Add(31 * time.Second)
	det, err := l.get()
	require.NoError(t, err)
	assert.NotNil(t, det)
	assert.Equal(t, 2, loads)
	assert.True(t, l.Loaded())

	again, err := l.get()
	require.NoError(t, err)
	assert.Same(t, det, again)
	assert.Equal(t, 2, loads)
}

func TestLazy_Close(t *testing.T) {
	l := NewLazy(DefaultConfig())
	l.load = func(Config) (*Detector, error) { return nil, errors.New("must not load") }

	require.NoError(t, l.Close())
	_, err := l.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.ErrorIs(t, err, ErrClosed)
}
