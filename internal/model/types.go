package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Brownie44l1/tumorscan/internal/imaging"
)

const (
	ModelFile    = "model.onnx"
	MetadataFile = "metadata.json"

	DefaultImageSize = 256
	DefaultThreshold = 0.5
)

// Metadata describes the tensors and preprocessing a model artifact expects.
type Metadata struct {
	InputName    string   `json:"input_name"`
	OutputName   string   `json:"output_name"`
	InputShape   []int64  `json:"input_shape"`
	OutputShape  []int64  `json:"output_shape"`
	Classes      []string `json:"classes"`
	ImageSize    int      `json:"image_size"`
	Layout       string   `json:"layout"`
	ResizeMethod string   `json:"resize_method"`
	Threshold    float32  `json:"threshold"`
	Blake3       string   `json:"blake3,omitempty"`
}

// Prediction is the decoded output of one forward pass.
type Prediction struct {
	ClassIndex int
	Scores     []float32
}

func DefaultMetadata() Metadata {
	return Metadata{
		InputName:    "input",
		OutputName:   "output",
		InputShape:   []int64{1, DefaultImageSize, DefaultImageSize, imaging.Channels},
		OutputShape:  []int64{1, 1},
		Classes:      []string{"no_tumor", "tumor"},
		ImageSize:    DefaultImageSize,
		Layout:       string(imaging.LayoutNHWC),
		ResizeMethod: imaging.DefaultMethod,
		Threshold:    DefaultThreshold,
	}
}

// ReadMetadata loads metadata from path, filling unset fields with defaults.
// A missing file yields the defaults; an unreadable or malformed one is an
// error.
func ReadMetadata(path string) (Metadata, bool, error) {
	md := DefaultMetadata()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return md, false, nil
	}
	if err != nil {
		return md, false, fmt.Errorf("failed to read metadata: %w", err)
	}

	if err := json.Unmarshal(data, &md); err != nil {
		return md, true, fmt.Errorf("failed to parse metadata: %w", err)
	}

	def := DefaultMetadata()
	if md.InputName == "" {
		md.InputName = def.InputName
	}
	if md.OutputName == "" {
		md.OutputName = def.OutputName
	}
	if md.ImageSize == 0 {
		md.ImageSize = def.ImageSize
	}
	if md.Threshold == 0 {
		md.Threshold = def.Threshold
	}

	return md, true, md.Validate()
}

// Validate checks that the metadata is internally consistent.
func (m Metadata) Validate() error {
	if m.ImageSize <= 0 {
		return fmt.Errorf("invalid image_size %d", m.ImageSize)
	}
	if len(m.InputShape) == 0 || len(m.OutputShape) == 0 {
		return errors.New("input_shape and output_shape are required")
	}
	for _, dim := range append(append([]int64{}, m.InputShape...), m.OutputShape...) {
		if dim <= 0 {
			return fmt.Errorf("invalid tensor dimension %d", dim)
		}
	}

	layout, err := imaging.ParseLayout(m.Layout)
	if err != nil {
		return err
	}

	want := int64(m.ImageSize) * int64(m.ImageSize) * imaging.Channels
	if got := elements(m.InputShape); got != want {
		return fmt.Errorf("input_shape %v holds %d values, %s image of %dx%d needs %d",
			m.InputShape, got, layout, m.ImageSize, m.ImageSize, want)
	}

	if m.Threshold <= 0 || m.Threshold >= 1 {
		return fmt.Errorf("threshold %v outside (0, 1)", m.Threshold)
	}

	return nil
}

func elements(shape []int64) int64 {
	n := int64(1)
	for _, dim := range shape {
		n *= dim
	}
	return n
}
