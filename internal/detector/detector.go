package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/glens/internal/mempool"
	"github.com/MeKo-Tech/glens/internal/onnx"
	"github.com/yalue/onnxruntime_go"
)

// ErrClosed is returned by Detect after Close.
var ErrClosed = errors.New("detector is closed")

// Detector runs a YOLOv8 ONNX model. It is safe for concurrent use.
type Detector struct {
	config     Config
	session    *onnxruntime_go.DynamicAdvancedSession
	inputInfo  onnxruntime_go.InputOutputInfo
	outputInfo onnxruntime_go.InputOutputInfo
	mu         sync.RWMutex
}

// NewDetector loads the model and creates an inference session.
func NewDetector(config Config) (*Detector, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if err := validateModelFile(config.ModelPath); err != nil {
		return nil, err
	}

	slog.Debug("Initializing detector",
		"model_path", config.ModelPath,
		"input_size", config.InputSize,
		"conf_threshold", config.ConfThreshold,
		"iou_threshold", config.IoUThreshold,
		"gpu_enabled", config.GPU.UseGPU)

	if err := onnx.Initialize(config.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := validateModelInfo(config.ModelPath)
	if err != nil {
		return nil, err
	}

	session, err := createSession(config, inputInfo, outputInfo)
	if err != nil {
		return nil, err
	}

	slog.Debug("Detector initialized successfully", "input", inputInfo.Name, "output", outputInfo.Name)
	return &Detector{
		config:     config,
		session:    session,
		inputInfo:  inputInfo,
		outputInfo: outputInfo,
	}, nil
}

// Close releases the inference session.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil
	}
	err := d.session.Destroy()
	d.session = nil
	if err != nil {
		return fmt.Errorf("failed to destroy detector session: %w", err)
	}
	return nil
}

// Config returns a copy of the detector configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Detect returns object boxes for img in original pixel coordinates, ordered
// by descending confidence.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	size := d.config.InputSize
	boxed, lb := letterboxImage(img, size)

	chw := toCHW(boxed)
	defer mempool.Float32s.Put(chw)

	tensor, err := onnx.NewImageTensor(chw, 3, size, size)
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor: %w", err)
	}

	data, shape, err := d.run(tensor)
	if err != nil {
		return nil, err
	}

	dets, err := postprocess(data, shape, lb, d.config)
	if err != nil {
		return nil, fmt.Errorf("postprocessing failed: %w", err)
	}

	elapsed := time.Since(start)
	inferenceDuration.Observe(elapsed.Seconds())
	detectionsReturned.Observe(float64(len(dets)))
	slog.Debug("Detection complete", "boxes", len(dets), "duration", elapsed)
	return dets, nil
}

// run executes the session and copies the output out of ONNX-owned memory.
func (d *Detector) run(tensor onnx.Tensor) ([]float32, []int64, error) {
	if err := tensor.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid tensor: %w", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.session == nil {
		return nil, nil, ErrClosed
	}

	input, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(tensor.Shape...), tensor.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := input.Destroy(); err != nil {
			slog.Warn("Failed to destroy input tensor", "error", err)
		}
	}()

	outputs := []onnxruntime_go.Value{nil}
	if err := d.session.Run([]onnxruntime_go.Value{input}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		if err := outputs[0].Destroy(); err != nil {
			slog.Warn("Failed to destroy output tensor", "error", err)
		}
	}()

	out, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("expected float32 tensor, got %T", outputs[0])
	}

	data := append([]float32(nil), out.GetData()...)
	shape := append([]int64(nil), out.GetShape()...)
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		st := onnx.Summarize(data)
		slog.Debug("Detector output", "shape", shape, "min", st.Min, "max", st.Max, "mean", st.Mean)
	}
	return data, shape, nil
}

// ModelInfo describes the loaded model.
func (d *Detector) ModelInfo() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return map[string]any{
		"model_path":     d.config.ModelPath,
		"input_name":     d.inputInfo.Name,
		"output_name":    d.outputInfo.Name,
		"input_shape":    d.inputInfo.Dimensions,
		"output_shape":   d.outputInfo.Dimensions,
		"input_size":     d.config.InputSize,
		"conf_threshold": d.config.ConfThreshold,
		"iou_threshold":  d.config.IoUThreshold,
		"num_threads":    d.config.NumThreads,
		"gpu_enabled":    d.config.GPU.UseGPU,
	}
}
