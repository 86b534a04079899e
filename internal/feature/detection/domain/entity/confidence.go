package entity

// Default confidence thresholds, in percent.
const (
	DefaultHighConfidence   = 90.0
	DefaultMediumConfidence = 70.0
)

// ConfidenceThresholds buckets a confidence percentage for display.
type ConfidenceThresholds struct {
	High   float64
	Medium float64
}

// DefaultConfidenceThresholds returns the 90/70 buckets.
func DefaultConfidenceThresholds() ConfidenceThresholds {
	return ConfidenceThresholds{High: DefaultHighConfidence, Medium: DefaultMediumConfidence}
}

// Class returns "success", "warning" or "danger" for the given confidence.
func (t ConfidenceThresholds) Class(confidence float64) string {
	switch {
	case confidence >= t.High:
		return "success"
	case confidence >= t.Medium:
		return "warning"
	default:
		return "danger"
	}
}
