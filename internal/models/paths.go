// Package models locates the ONNX object detection models on disk.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultModelsDir is used when neither a flag nor the environment names a directory.
	DefaultModelsDir = "models"
	// EnvModelsDir overrides the models directory.
	EnvModelsDir = "GLENS_MODELS_DIR"
	// DefaultDetectionModel is the detector used by the object crop strategy.
	DefaultDetectionModel = "yolov8n"

	detectionSubdir = "detection"
)

// ErrUnknownModel is returned by Lookup for names outside the catalog.
var ErrUnknownModel = errors.New("unknown model")

// Model describes a supported detection model.
type Model struct {
	Name        string
	File        string
	InputSize   int
	Description string
}

var catalog = []Model{
	{Name: "yolov8n", File: "yolov8n.onnx", InputSize: 640, Description: "YOLOv8 nano, COCO 80 classes"},
	{Name: "yolov8s", File: "yolov8s.onnx", InputSize: 640, Description: "YOLOv8 small, COCO 80 classes"},
}

// Catalog returns the known detection models.
func Catalog() []Model {
	return append([]Model(nil), catalog...)
}

// Lookup finds a catalog entry by name, case-insensitively.
func Lookup(name string) (Model, error) {
	for _, m := range catalog {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Dir picks the models directory: explicit, then $GLENS_MODELS_DIR, then
// "models" beside the nearest go.mod, then "models" relative to the cwd.
func Dir(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvModelsDir); env != "" {
		return env
	}
	if root, ok := moduleRoot(); ok {
		return filepath.Join(root, DefaultModelsDir)
	}
	return DefaultModelsDir
}

func moduleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// DetectionModelPath resolves a catalog name (or a bare .onnx file name) to a
// path under modelsDir. <dir>/detection/<file> wins over <dir>/<file> when it exists.
func DetectionModelPath(modelsDir, name string) string {
	if name == "" {
		name = DefaultDetectionModel
	}
	file := name
	if m, err := Lookup(name); err == nil {
		file = m.File
	}

	base := Dir(modelsDir)
	nested := filepath.Join(base, detectionSubdir, file)
	if _, err := os.Stat(nested); err == nil {
		return nested
	}
	return filepath.Join(base, file)
}
