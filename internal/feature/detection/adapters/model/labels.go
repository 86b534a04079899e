package model

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// LoadLabels reads a JSON object mapping class index ("0", "1", ...) to label
// name and returns the labels ordered by index. Indices must be contiguous
// from zero.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels %s: %w", path, err)
	}
	return ParseLabels(data)
}

// ParseLabels decodes the index to label mapping.
func ParseLabels(data []byte) ([]string, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("labels: no classes defined")
	}

	labels := make([]string, len(raw))
	for k, v := range raw {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(raw) {
			return nil, fmt.Errorf("labels: index %q is not in 0..%d", k, len(raw)-1)
		}
		if v == "" {
			return nil, fmt.Errorf("labels: class %d has an empty name", i)
		}
		labels[i] = v
	}
	for i, l := range labels {
		if l == "" {
			return nil, fmt.Errorf("labels: class %d is missing", i)
		}
	}
	return labels, nil
}
