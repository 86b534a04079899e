package di

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"apple_detector/internal/feature/detection/adapters/model"
	"apple_detector/internal/feature/detection/adapters/remote"
	"apple_detector/internal/platform/config"
	infrahttp "apple_detector/internal/platform/http"
)

// ErrBackendNotBuilt is returned when the configured backend was excluded
// from this binary with a build tag (notflite, noonnx).
var ErrBackendNotBuilt = errors.New("model backend not built into this binary")

// backendFactory opens one model backend.
type backendFactory func(ctx context.Context, cfg config.ModelConfig, inputShape []int) (model.Backend, error)

// cgo を使うバックエンドはビルドタグ付きのファイルから登録される
var backends = map[string]backendFactory{
	"remote": openRemote,
}

var knownBackends = []string{"tflite", "onnx", "remote"}

func registerBackend(name string, f backendFactory) {
	backends[name] = f
}

// NewClassifier creates the classifier for the configured backend.
// Load failures leave the classifier unavailable instead of returning an error.
func NewClassifier(ctx context.Context, cfg config.ModelConfig, inputShape []int) *model.Classifier {
	return model.Load(NewBackendOpener(ctx, cfg, inputShape), cfg.LabelsPath)
}

// NewBackendOpener returns the opener for cfg.Backend.
func NewBackendOpener(ctx context.Context, cfg config.ModelConfig, inputShape []int) model.Opener {
	return backendOpener(ctx, backends, cfg, inputShape)
}

func backendOpener(ctx context.Context, registry map[string]backendFactory, cfg config.ModelConfig, inputShape []int) model.Opener {
	open, ok := registry[cfg.Backend]
	if !ok {
		return func() (model.Backend, error) {
			if slices.Contains(knownBackends, cfg.Backend) {
				return nil, fmt.Errorf("%w: %q", ErrBackendNotBuilt, cfg.Backend)
			}
			return nil, fmt.Errorf("unsupported model backend %q", cfg.Backend)
		}
	}
	return func() (model.Backend, error) {
		return open(ctx, cfg, inputShape)
	}
}

func openRemote(ctx context.Context, cfg config.ModelConfig, inputShape []int) (model.Backend, error) {
	rc := remote.Config{BaseURL: cfg.RemoteURL, ModelName: cfg.RemoteName, Timeout: cfg.RemoteTimeout}
	c, err := remote.Open(ctx, rc, infrahttp.NewHTTPClient(cfg.RemoteTimeout), inputShape)
	if err != nil {
		return nil, err
	}
	return c, nil
}
