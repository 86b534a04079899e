package entity

import "strings"

// Severity labels used by the knowledge base.
const (
	SeverityNone    = "None"
	SeverityUnknown = "Unknown"
)

// DiseaseInfo is the human-readable description of a predicted label.
type DiseaseInfo struct {
	Label          string `yaml:"label"`
	DisplayName    string `yaml:"name"`
	Description    string `yaml:"description"`
	Severity       string `yaml:"severity"`
	Recommendation string `yaml:"recommendations"`
}

// SeverityClass maps the severity to a presentation class.
// Healthy fruit is "success", moderate conditions are "warning" and
// everything else, including unknown labels, is "danger".
func (d DiseaseInfo) SeverityClass() string {
	switch {
	case d.Severity == SeverityNone:
		return "success"
	case strings.HasPrefix(d.Severity, "Moderate"):
		return "warning"
	default:
		return "danger"
	}
}
