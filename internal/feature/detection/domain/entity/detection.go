package entity

import "time"

// TimestampLayout is the display layout used for detection timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Detection represents the persisted outcome of classifying one uploaded image.
// A Detection is never modified after it has been stored.
type Detection struct {
	ID               uint      // Store-assigned identifier
	SessionID        string    // Anonymous session that created the record
	Filename         string    // Generated storage name (<uuid>.<ext>)
	OriginalFilename string    // Sanitized name as uploaded, display only
	DiseaseType      string    // Predicted label
	Confidence       float64   // Top-class probability as a percentage in [0, 100]
	Timestamp        time.Time // Creation time in UTC
}

// FormattedTimestamp returns the creation time formatted for display.
func (d *Detection) FormattedTimestamp() string {
	return d.Timestamp.UTC().Format(TimestampLayout)
}

// VisibleTo reports whether the detection belongs to the given session.
func (d *Detection) VisibleTo(sessionID string) bool {
	return sessionID != "" && d.SessionID == sessionID
}
