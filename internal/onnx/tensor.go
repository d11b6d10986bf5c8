package onnx

import (
	"errors"
	"fmt"
)

// Tensor is a float32 tensor in row-major order. Image tensors are NCHW.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// NewImageTensor wraps data as a batch of one image, shape [1, C, H, W].
// data is not copied.
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	t := Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	if err := t.Validate(); err != nil {
		return Tensor{}, err
	}
	return t, nil
}

// Elements is the product of the shape dimensions.
func (t Tensor) Elements() int {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return int(n)
}

// Validate checks for a rank-4 shape with positive dimensions that matches len(Data).
func (t Tensor) Validate() error {
	if len(t.Shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(t.Shape))
	}
	for i, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, d)
		}
	}
	if want := t.Elements(); len(t.Data) != want {
		return fmt.Errorf("data length %d does not match shape %v (%d elements)", len(t.Data), t.Shape, want)
	}
	return nil
}

// Stats summarizes raw model output for debug logging.
type Stats struct {
	Min, Max, Mean float32
}

// Summarize computes Stats over data. Empty input yields zeros.
func Summarize(data []float32) Stats {
	if len(data) == 0 {
		return Stats{}
	}
	s := Stats{Min: data[0], Max: data[0]}
	var sum float64
	for _, v := range data {
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
		sum += float64(v)
	}
	s.Mean = float32(sum / float64(len(data)))
	return s
}
