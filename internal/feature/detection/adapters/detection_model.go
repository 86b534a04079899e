package adapters

import (
	"time"

	"apple_detector/internal/feature/detection/domain/entity"
)

// DetectionModel is the GORM model for the detections table.
type DetectionModel struct {
	ID               uint      `gorm:"primaryKey"`
	SessionID        string    `gorm:"size:36;not null;index;index:idx_detections_session_time,priority:1"`
	Filename         string    `gorm:"size:255;not null;uniqueIndex"`
	OriginalFilename string    `gorm:"size:255;not null"`
	DiseaseType      string    `gorm:"size:50;not null"`
	Confidence       float64   `gorm:"not null"`
	Timestamp        time.Time `gorm:"not null;precision:6;index:idx_detections_session_time,priority:2"`
}

// TableName returns the table name for GORM.
func (DetectionModel) TableName() string {
	return "detections"
}

// ToEntity converts the GORM model to a domain entity.
func (m *DetectionModel) ToEntity() entity.Detection {
	return entity.Detection{
		ID:               m.ID,
		SessionID:        m.SessionID,
		Filename:         m.Filename,
		OriginalFilename: m.OriginalFilename,
		DiseaseType:      m.DiseaseType,
		Confidence:       m.Confidence,
		Timestamp:        m.Timestamp.UTC(),
	}
}

// DetectionModelFromEntity converts a domain entity to a GORM model.
func DetectionModelFromEntity(d *entity.Detection) *DetectionModel {
	return &DetectionModel{
		ID:               d.ID,
		SessionID:        d.SessionID,
		Filename:         d.Filename,
		OriginalFilename: d.OriginalFilename,
		DiseaseType:      d.DiseaseType,
		Confidence:       d.Confidence,
		Timestamp:        d.Timestamp.UTC(),
	}
}
