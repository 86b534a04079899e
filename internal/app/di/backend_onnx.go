//go:build !noonnx

package di

import (
	"context"

	"apple_detector/internal/feature/detection/adapters/model"
	"apple_detector/internal/feature/detection/adapters/onnx"
	"apple_detector/internal/platform/config"
)

func init() {
	registerBackend("onnx", func(_ context.Context, cfg config.ModelConfig, inputShape []int) (model.Backend, error) {
		c, err := onnx.Open(onnx.Config{ModelPath: cfg.Path, MetadataPath: cfg.MetadataPath, LibraryPath: cfg.LibraryPath, InputShape: inputShape})
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}
