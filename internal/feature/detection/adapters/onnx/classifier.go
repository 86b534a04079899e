// Package onnx runs the classifier with ONNX Runtime.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"apple_detector/internal/feature/detection/adapters/model"
	"apple_detector/internal/feature/detection/domain/entity"
)

// Config locates the model, its shape metadata and the runtime library.
type Config struct {
	ModelPath    string
	MetadataPath string
	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string
	// InputShape is the tensor shape the preprocessor produces. Empty skips the check.
	InputShape []int
}

// Metadata describes the exported graph's input and output tensors.
type Metadata struct {
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
}

// LoadMetadata reads the shape metadata written next to the exported model.
// Missing names default to "input" and "output".
func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if md.InputName == "" {
		md.InputName = "input"
	}
	if md.OutputName == "" {
		md.OutputName = "output"
	}
	if len(md.InputShape) == 0 || len(md.OutputShape) == 0 {
		return Metadata{}, fmt.Errorf("metadata must define input_shape and output_shape")
	}
	for _, d := range append(append([]int64(nil), md.InputShape...), md.OutputShape...) {
		if d <= 0 {
			return Metadata{}, fmt.Errorf("metadata shapes must be fully static, got input %v output %v", md.InputShape, md.OutputShape)
		}
	}
	return md, nil
}

// CheckInputShape verifies the graph input matches the tensor shape fed to it.
func (md Metadata) CheckInputShape(want []int) error {
	if len(want) == 0 {
		return nil
	}
	if len(md.InputShape) != len(want) {
		return fmt.Errorf("model input shape %v, want %v", md.InputShape, want)
	}
	for i, d := range md.InputShape {
		if d != int64(want[i]) {
			return fmt.Errorf("model input shape %v, want %v", md.InputShape, want)
		}
	}
	return nil
}

// Classifier is an ONNX Runtime session with pre-bound tensors. The bound
// tensors are shared by every Run, so invocations are serialized.
type Classifier struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	outputSize   int
}

var _ model.Backend = (*Classifier)(nil)

// Open initializes the runtime environment and creates the session.
func Open(cfg Config) (*Classifier, error) {
	md, err := LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}
	if err := md.CheckInputShape(cfg.InputShape); err != nil {
		return nil, err
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.OutputShape...))
	if err != nil {
		_ = inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{md.InputName}, []string{md.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		_ = inputTensor.Destroy()
		_ = outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	c := &Classifier{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		outputSize:   int(md.OutputShape[len(md.OutputShape)-1]),
	}
	slog.Info("ONNX model loaded", "path", cfg.ModelPath, "input", md.InputShape, "output", md.OutputShape)
	return c, nil
}

// Name identifies the backend in logs.
func (c *Classifier) Name() string {
	return "onnx"
}

// OutputSize is the length of the model's score vector.
func (c *Classifier) OutputSize() int {
	return c.outputSize
}

// Infer copies the tensor into the bound input, runs the session and returns the scores.
func (c *Classifier) Infer(ctx context.Context, input entity.Tensor) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.session == nil {
		return nil, fmt.Errorf("session closed")
	}

	buf := c.inputTensor.GetData()
	if len(buf) != len(input.Data) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input.Data), len(buf))
	}
	copy(buf, input.Data)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := c.outputTensor.GetData()
	scores := make([]float32, c.outputSize)
	copy(scores, out[len(out)-c.outputSize:])
	return scores, nil
}

// Close destroys the session and tensors and tears down the environment.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	var firstErr error
	for _, destroy := range []func() error{c.session.Destroy, c.inputTensor.Destroy, c.outputTensor.Destroy, ort.DestroyEnvironment} {
		if err := destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.session = nil
	return firstErr
}
