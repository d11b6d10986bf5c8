package detector

import (
	"errors"
	"fmt"
	"os"

	"github.com/MeKo-Tech/glens/internal/models"
	"github.com/MeKo-Tech/glens/internal/onnx"
)

// Config holds configuration for the object detector.
type Config struct {
	ModelPath     string         // Path to the YOLOv8 ONNX model
	InputSize     int            // Square model input size (default: 640)
	ConfThreshold float32        // Minimum class score to keep a box (default: 0.25)
	IoUThreshold  float64        // IoU above which NMS suppresses a box (default: 0.7)
	MaxDetections int            // Upper bound on returned boxes (default: 300)
	ClassAgnostic bool           // Run NMS across classes instead of per class
	NumThreads    int            // Intra-op threads, 0 lets ONNX Runtime decide
	GPU           onnx.GPUConfig // CUDA settings
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		ModelPath:     models.DetectionModelPath("", ""),
		InputSize:     640,
		ConfThreshold: 0.25,
		IoUThreshold:  0.7,
		MaxDetections: 300,
		GPU:           onnx.DefaultGPUConfig(),
	}
}

// UpdateModelPath resolves a catalog name or .onnx file name against modelsDir.
func (c *Config) UpdateModelPath(modelsDir, name string) {
	c.ModelPath = models.DetectionModelPath(modelsDir, name)
}

func validateConfig(config Config) error {
	if config.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if config.InputSize <= 0 || config.InputSize%32 != 0 {
		return fmt.Errorf("input size must be a positive multiple of 32, got %d", config.InputSize)
	}
	if config.ConfThreshold < 0 || config.ConfThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %v", config.ConfThreshold)
	}
	if config.IoUThreshold < 0 || config.IoUThreshold > 1 {
		return fmt.Errorf("IoU threshold must be in [0,1], got %v", config.IoUThreshold)
	}
	return onnx.ValidateGPUConfig(config.GPU)
}

// ErrModelNotFound is returned when the configured model file is missing.
var ErrModelNotFound = errors.New("detection model not found")

func validateModelFile(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
	}
	return nil
}
