// Package knowledge provides the static label to disease description lookup.
package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"apple_detector/internal/feature/detection/domain/entity"
	"apple_detector/internal/feature/detection/usecase"
)

const (
	unknownDescription    = "Unknown disease type"
	unknownRecommendation = "Consult with agricultural specialist."
)

//go:embed diseases.yaml
var defaultEntries []byte

// Base is an immutable, in-memory knowledge base.
type Base struct {
	entries map[string]entity.DiseaseInfo
}

var _ usecase.KnowledgeBase = (*Base)(nil)

// Default returns the knowledge base built from the embedded entries.
func Default() *Base {
	b, err := Parse(defaultEntries)
	if err != nil {
		panic(fmt.Sprintf("knowledge: embedded entries are invalid: %v", err))
	}
	return b
}

// Load reads a YAML entry list from path. An empty path yields Default().
func Load(path string) (*Base, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a knowledge base from a YAML list of entries.
func Parse(data []byte) (*Base, error) {
	var list []entity.DiseaseInfo
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse knowledge base: %w", err)
	}

	entries := make(map[string]entity.DiseaseInfo, len(list))
	for i, e := range list {
		if e.Label == "" {
			return nil, fmt.Errorf("knowledge base entry %d has no label", i)
		}
		if _, dup := entries[e.Label]; dup {
			return nil, fmt.Errorf("knowledge base label %q is defined twice", e.Label)
		}
		entries[e.Label] = e
	}

	return &Base{entries: entries}, nil
}

// Lookup returns the entry for label, or a generic record for labels the
// knowledge base does not know. It never fails.
func (b *Base) Lookup(label string) entity.DiseaseInfo {
	if e, ok := b.entries[label]; ok {
		return e
	}
	return entity.DiseaseInfo{
		Label:          label,
		DisplayName:    b.displayName(label),
		Description:    unknownDescription,
		Severity:       entity.SeverityUnknown,
		Recommendation: unknownRecommendation,
	}
}

// Len returns the number of known labels.
func (b *Base) Len() int {
	return len(b.entries)
}

func (b *Base) displayName(label string) string {
	name := strings.TrimSpace(strings.ReplaceAll(label, "_", " "))
	if name == "" {
		return "Unknown"
	}
	// cases.Caser is stateful and not safe for concurrent use.
	return cases.Title(language.English).String(name)
}
