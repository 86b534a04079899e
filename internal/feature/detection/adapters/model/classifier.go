// Package model binds a loaded inference backend to its class labels.
package model

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"apple_detector/internal/feature/detection/domain/entity"
	"apple_detector/internal/feature/detection/usecase"
)

// Backend is a loaded model that maps an input tensor to one score per class.
type Backend interface {
	Name() string
	OutputSize() int
	Infer(ctx context.Context, input entity.Tensor) ([]float32, error)
	Close() error
}

// Opener loads a backend. It is called once at startup.
type Opener func() (Backend, error)

// Classifier is the process-wide model and label list. When loading failed it
// stays in the unavailable state and every Infer call returns
// usecase.ErrInferenceUnavailable.
type Classifier struct {
	backend Backend
	labels  []string
	reason  error

	closeOnce sync.Once
}

var _ usecase.Classifier = (*Classifier)(nil)

// Load opens the backend and the label file and checks that they agree.
// It never returns nil; configuration problems are logged and leave the
// classifier unavailable so the process can still start.
func Load(open Opener, labelsPath string) *Classifier {
	labels, err := LoadLabels(labelsPath)
	if err != nil {
		return unavailable(fmt.Errorf("load labels: %w", err))
	}

	backend, err := open()
	if err != nil {
		return unavailable(fmt.Errorf("load model: %w", err))
	}

	c, err := Bind(backend, labels)
	if err != nil {
		if cerr := backend.Close(); cerr != nil {
			slog.Warn("failed to close model backend", "backend", backend.Name(), "error", cerr)
		}
		return unavailable(err)
	}

	slog.Info("model loaded", "backend", backend.Name(), "classes", len(labels), "labels", labels)
	return c
}

// Bind pairs a backend with its labels. The label count must equal the
// backend's output length.
func Bind(backend Backend, labels []string) (*Classifier, error) {
	if n := backend.OutputSize(); n != len(labels) {
		return nil, fmt.Errorf("label count %d does not match %s model output size %d", len(labels), backend.Name(), n)
	}
	return &Classifier{backend: backend, labels: append([]string(nil), labels...)}, nil
}

// Unavailable returns a classifier that refuses every inference.
func Unavailable(reason error) *Classifier {
	return &Classifier{reason: reason}
}

func unavailable(reason error) *Classifier {
	slog.Error("inference unavailable", "error", reason)
	return Unavailable(reason)
}

// Available reports whether a model is loaded.
func (c *Classifier) Available() bool {
	return c.backend != nil
}

// Reason returns why the classifier is unavailable, or nil.
func (c *Classifier) Reason() error {
	return c.reason
}

// Labels returns the class labels in output order.
func (c *Classifier) Labels() []string {
	return c.labels
}

// Infer runs the model once.
func (c *Classifier) Infer(ctx context.Context, input entity.Tensor) ([]float32, error) {
	if c.backend == nil {
		return nil, usecase.ErrInferenceUnavailable
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	scores, err := c.backend.Infer(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%s inference: %w", c.backend.Name(), err)
	}
	if len(scores) != len(c.labels) {
		return nil, fmt.Errorf("%s returned %d scores, want %d", c.backend.Name(), len(scores), len(c.labels))
	}
	return scores, nil
}

// Close releases the backend.
func (c *Classifier) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.backend != nil {
			err = c.backend.Close()
		}
	})
	return err
}
