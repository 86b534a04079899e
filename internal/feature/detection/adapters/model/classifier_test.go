package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apple_detector/internal/feature/detection/domain/entity"
	"apple_detector/internal/feature/detection/usecase"
)

const appleLabels = `{"0": "Blotch_Apple", "1": "Healthy_Apple", "2": "Rot_Apple", "3": "Scab_Apple"}`

// fakeBackend はBackendのテスト実装です。
type fakeBackend struct {
	outputSize int
	InferFunc  func(ctx context.Context, input entity.Tensor) ([]float32, error)
	closed     int
}

func (b *fakeBackend) Name() string    { return "fake" }
func (b *fakeBackend) OutputSize() int { return b.outputSize }
func (b *fakeBackend) Close() error    { b.closed++; return nil }
func (b *fakeBackend) Infer(ctx context.Context, input entity.Tensor) ([]float32, error) {
	if b.InferFunc != nil {
		return b.InferFunc(ctx, input)
	}
	return make([]float32, b.outputSize), nil
}

func writeLabels(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "class_labels.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		labels        string
		noLabelsFile  bool
		open          func(b *fakeBackend) Opener
		outputSize    int
		wantAvailable bool
		wantClosed    int
	}{
		{
			name:          "success: labels match model output",
			labels:        appleLabels,
			outputSize:    4,
			wantAvailable: true,
		},
		{
			name:       "error: label count mismatch closes backend",
			labels:     appleLabels,
			outputSize: 5,
			wantClosed: 1,
		},
		{
			name:         "error: missing labels file",
			noLabelsFile: true,
			outputSize:   4,
		},
		{
			name:       "error: malformed labels",
			labels:     `["Blotch_Apple"]`,
			outputSize: 1,
		},
		{
			name:       "error: model fails to load",
			labels:     appleLabels,
			outputSize: 4,
			open: func(*fakeBackend) Opener {
				return func() (Backend, error) { return nil, errors.New("model/best_model.tflite: no such file") }
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := &fakeBackend{outputSize: tt.outputSize}
			open := func() (Backend, error) { return backend, nil }
			if tt.open != nil {
				open = tt.open(backend)
			}
			path := filepath.Join(t.TempDir(), "missing.json")
			if !tt.noLabelsFile {
				path = writeLabels(t, tt.labels)
			}

			c := Load(open, path)

			require.NotNil(t, c)
			assert.Equal(t, tt.wantAvailable, c.Available())
			assert.Equal(t, tt.wantClosed, backend.closed)
			if !tt.wantAvailable {
				assert.Error(t, c.Reason())
				_, err := c.Infer(context.Background(), entity.NewTensor(1, 224, 224, 3))
				assert.ErrorIs(t, err, usecase.ErrInferenceUnavailable)
				assert.Empty(t, c.Labels())
				return
			}
			assert.NoError(t, c.Reason())
			assert.Equal(t, []string{"Blotch_Apple", "Healthy_Apple", "Rot_Apple", "Scab_Apple"}, c.Labels())
		})
	}
}

func TestClassifier_Infer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   entity.Tensor
		infer   func(ctx context.Context, input entity.Tensor) ([]float32, error)
		want    []float32
		wantErr bool
	}{
		{
			name:  "success: scores returned",
			input: entity.NewTensor(1, 224, 224, 3),
			infer: func(context.Context, entity.Tensor) ([]float32, error) {
				return []float32{0.1, 0.2, 0.3, 0.4}, nil
			},
			want: []float32{0.1, 0.2, 0.3, 0.4},
		},
		{
			name:    "error: malformed tensor",
			input:   entity.Tensor{Shape: []int{1, 2}},
			wantErr: true,
		},
		{
			name:  "error: backend failure",
			input: entity.NewTensor(1, 224, 224, 3),
			infer: func(context.Context, entity.Tensor) ([]float32, error) {
				return nil, errors.New("invoke failed")
			},
			wantErr: true,
		},
		{
			name:  "error: wrong score count",
			input: entity.NewTensor(1, 224, 224, 3),
			infer: func(context.Context, entity.Tensor) ([]float32, error) {
				return []float32{1}, nil
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := Bind(&fakeBackend{outputSize: 4, InferFunc: tt.infer}, []string{"a", "b", "c", "d"})
			require.NoError(t, err)

			got, err := c.Infer(context.Background(), tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifier_Close(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{outputSize: 1}
	c, err := Bind(backend, []string{"only"})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, backend.closed)

	assert.NoError(t, Unavailable(errors.New("x")).Close())
}
