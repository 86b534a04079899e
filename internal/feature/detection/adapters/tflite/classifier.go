// Package tflite runs the classifier with the TensorFlow Lite C runtime.
package tflite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	tflite "github.com/tphakala/go-tflite"

	"apple_detector/internal/feature/detection/adapters/model"
	"apple_detector/internal/feature/detection/domain/entity"
)

// Config holds the interpreter settings.
type Config struct {
	ModelPath string
	Threads   int
	// InputShape is the expected NHWC input shape, e.g. [1, 224, 224, 3].
	InputShape []int
}

// Classifier wraps a TFLite interpreter. The interpreter owns mutable
// input/output buffers, so invocations are serialized.
type Classifier struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	outputSize  int
}

var _ model.Backend = (*Classifier)(nil)

// Open loads the model file and allocates the interpreter.
func Open(cfg Config) (*Classifier, error) {
	data, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", cfg.ModelPath, err)
	}

	m := tflite.NewModel(data)
	if m == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model %s", cfg.ModelPath)
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = max(1, runtime.NumCPU()/2)
	}
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		slog.Error("TFLite error", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(m, options)
	if interpreter == nil {
		options.Delete()
		m.Delete()
		return nil, fmt.Errorf("cannot create interpreter")
	}

	c := &Classifier{model: m, options: options, interpreter: interpreter}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		_ = c.Close()
		return nil, fmt.Errorf("tensor allocation failed: %v", status)
	}

	if err := c.checkInput(cfg.InputShape); err != nil {
		_ = c.Close()
		return nil, err
	}

	output := interpreter.GetOutputTensor(0)
	if output == nil || output.NumDims() == 0 {
		_ = c.Close()
		return nil, fmt.Errorf("model has no output tensor")
	}
	c.outputSize = output.Dim(output.NumDims() - 1)

	slog.Info("TFLite model loaded", "path", cfg.ModelPath, "threads", threads, "outputs", c.outputSize)
	return c, nil
}

// checkInput verifies the model takes a float32 tensor of the expected shape.
func (c *Classifier) checkInput(want []int) error {
	input := c.interpreter.GetInputTensor(0)
	if input == nil {
		return fmt.Errorf("model has no input tensor")
	}
	if input.Type() != tflite.Float32 {
		return fmt.Errorf("model input type is %v, want float32", input.Type())
	}
	if len(want) == 0 {
		return nil
	}
	got := make([]int, input.NumDims())
	for i := range got {
		got[i] = input.Dim(i)
	}
	if len(got) != len(want) {
		return fmt.Errorf("model input shape %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("model input shape %v, want %v", got, want)
		}
	}
	return nil
}

// Name identifies the backend in logs.
func (c *Classifier) Name() string {
	return "tflite"
}

// OutputSize is the length of the model's score vector.
func (c *Classifier) OutputSize() int {
	return c.outputSize
}

// Infer copies the tensor into the interpreter, invokes it and returns the scores.
func (c *Classifier) Infer(ctx context.Context, input entity.Tensor) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.interpreter == nil {
		return nil, fmt.Errorf("interpreter closed")
	}

	inputTensor := c.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	buf := inputTensor.Float32s()
	if len(buf) != len(input.Data) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input.Data), len(buf))
	}
	copy(buf, input.Data)

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	outputTensor := c.interpreter.GetOutputTensor(0)
	scores := make([]float32, c.outputSize)
	copy(scores, outputTensor.Float32s())
	return scores, nil
}

// Close frees the interpreter, its options and the model.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.interpreter != nil {
		c.interpreter.Delete()
		c.interpreter = nil
	}
	if c.options != nil {
		c.options.Delete()
		c.options = nil
	}
	if c.model != nil {
		c.model.Delete()
		c.model = nil
	}
	return nil
}
