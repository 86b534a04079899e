//go:build !notflite

package di

import (
	"context"

	"apple_detector/internal/feature/detection/adapters/model"
	"apple_detector/internal/feature/detection/adapters/tflite"
	"apple_detector/internal/platform/config"
)

func init() {
	registerBackend("tflite", func(_ context.Context, cfg config.ModelConfig, inputShape []int) (model.Backend, error) {
		c, err := tflite.Open(tflite.Config{ModelPath: cfg.Path, Threads: cfg.Threads, InputShape: inputShape})
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}
