package model

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"github.com/Brownie44l1/tumorscan/internal/imaging"
)

var (
	ErrShape           = errors.New("tensor shape does not match model input")
	ErrChecksum        = errors.New("model checksum mismatch")
	ErrMissingArtifact = errors.New("model artifact not found")
)

type Options struct {
	// SharedLibraryPath points at the onnxruntime shared library. Empty uses
	// the platform default lookup.
	SharedLibraryPath string
	Logger            *zap.Logger
}

// OnnxModel is a loaded model artifact. It is read-only after Load; Predict
// serializes access to the bound input and output tensors.
type OnnxModel struct {
	Metadata Metadata

	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	logger       *zap.Logger
}

// Load reads model.onnx and metadata.json from dir and creates an inference
// session. Any error means the artifact cannot be served.
func Load(dir string, opts Options) (*OnnxModel, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	modelPath := filepath.Join(dir, ModelFile)
	if _, err := os.Stat(modelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, modelPath)
		}
		return nil, fmt.Errorf("failed to stat model: %w", err)
	}

	metadata, found, err := ReadMetadata(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, err
	}
	if !found {
		logger.Warn("no model metadata found, using defaults", zap.String("dir", dir))
	}

	if metadata.Blake3 != "" {
		if err := VerifyChecksum(modelPath, metadata.Blake3); err != nil {
			return nil, err
		}
	}

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	logger.Info("model loaded",
		zap.String("path", modelPath),
		zap.Int64s("input_shape", metadata.InputShape),
		zap.Int64s("output_shape", metadata.OutputShape),
		zap.Strings("classes", metadata.Classes),
		zap.String("resize_method", metadata.ResizeMethod),
	)

	return &OnnxModel{
		Metadata:     metadata,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		logger:       logger,
	}, nil
}

// Predict runs one forward pass on a batch-of-one tensor.
func (m *OnnxModel) Predict(ctx context.Context, tensor *imaging.Tensor) (*Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	input := m.inputTensor.GetData()
	if len(input) != tensor.Len() {
		return nil, fmt.Errorf("%w: expected %d values, got %d (shape %v)",
			ErrShape, len(input), tensor.Len(), tensor.Shape)
	}
	copy(input, tensor.Data)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	// The first sample's scores; the batch is always one.
	output := m.outputTensor.GetData()
	perSample := len(output)
	if len(m.Metadata.OutputShape) > 0 && m.Metadata.OutputShape[0] > 0 {
		perSample = len(output) / int(m.Metadata.OutputShape[0])
	}
	scores := append([]float32(nil), output[:perSample]...)

	class, err := DecideClass(scores, m.Metadata.Threshold)
	if err != nil {
		return nil, err
	}

	return &Prediction{ClassIndex: class, Scores: scores}, nil
}

func (m *OnnxModel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inputTensor != nil {
		m.inputTensor.Destroy()
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
	}
	if m.session != nil {
		m.session.Destroy()
	}
	ort.DestroyEnvironment()
}

// VerifyChecksum compares the blake3-256 digest of the file at path with the
// expected hex string.
func VerifyChecksum(path, expected string) error {
	sum, err := FileChecksum(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(sum, strings.TrimSpace(expected)) {
		return fmt.Errorf("%w: %s has %s, metadata expects %s", ErrChecksum, path, sum, expected)
	}
	return nil
}

func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open model: %w", err)
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash model: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
