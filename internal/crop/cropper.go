package crop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/disintegration/imaging"
)

// ImageSource loads an image from a local path or URL.
type ImageSource interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// Artifact is a cropped image written to a new temporary PNG file.
// The caller owns the file and must release it with Remove.
type Artifact struct {
	Path     string
	Box      BoundingBox
	Width    int
	Height   int
	Strategy Kind
}

// Remove deletes the artifact file.
func (a *Artifact) Remove() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Cropper runs the load -> candidates -> select -> crop -> write sequence
// shared by every strategy.
type Cropper struct {
	source   ImageSource
	strategy Strategy
	tempDir  string
}

// NewCropper creates a Cropper. Artifacts are written to tempDir (os.TempDir when empty).
func NewCropper(source ImageSource, strategy Strategy, tempDir string) *Cropper {
	return &Cropper{source: source, strategy: strategy, tempDir: tempDir}
}

// Kind returns the strategy kind of this cropper.
func (c *Cropper) Kind() Kind {
	return c.strategy.Kind()
}

// Crop loads ref and writes the selected region to a new artifact.
func (c *Cropper) Crop(ctx context.Context, ref string) (*Artifact, error) {
	img, err := c.source.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return c.CropImage(ctx, img)
}

// CropImage writes the selected region of img to a new artifact.
func (c *Cropper) CropImage(ctx context.Context, img image.Image) (*Artifact, error) {
	start := time.Now()

	box, err := c.Select(ctx, img)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	cropped := imaging.Crop(img, box.Rect().Add(bounds.Min))

	f, err := os.CreateTemp(c.tempDir, "glens-crop-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact file: %w", err)
	}
	if err := imaging.Encode(f, cropped, imaging.PNG); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to close artifact: %w", err)
	}

	art := &Artifact{
		Path:     f.Name(),
		Box:      box,
		Width:    cropped.Bounds().Dx(),
		Height:   cropped.Bounds().Dy(),
		Strategy: c.strategy.Kind(),
	}
	slog.Debug("Cropped image saved",
		"path", art.Path,
		"strategy", art.Strategy.String(),
		"box", box.String(),
		"duration", time.Since(start))
	return art, nil
}

// Select returns the bounding box the strategy would crop to, in coordinates
// relative to img.Bounds().Min.
func (c *Cropper) Select(ctx context.Context, img image.Image) (BoundingBox, error) {
	if img == nil {
		return BoundingBox{}, errors.New("input image is nil")
	}
	cands, err := c.strategy.Candidates(ctx, img)
	if err != nil {
		return BoundingBox{}, err
	}
	best := selectLargest(cands)
	if best < 0 {
		return BoundingBox{}, fmt.Errorf("%s strategy returned no candidates", c.strategy.Kind())
	}

	bounds := img.Bounds()
	box := clampBox(cands[best].Box, bounds.Dx(), bounds.Dy())
	if !box.Valid() {
		return BoundingBox{}, fmt.Errorf("selected box %s is empty after clamping", cands[best].Box)
	}
	return box, nil
}

func clampBox(b BoundingBox, w, h int) BoundingBox {
	return BoundingBox{
		X1: clampInt(b.X1, 0, w),
		Y1: clampInt(b.Y1, 0, h),
		X2: clampInt(b.X2, 0, w),
		Y2: clampInt(b.Y2, 0, h),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
