package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apple_detector/internal/feature/detection/domain/entity"
)

func sampleResult() entity.Result {
	return entity.Result{
		Detection: entity.Detection{
			ID:               3,
			SessionID:        "s",
			Filename:         "0b8f6a8e.jpg",
			OriginalFilename: "orchard.jpg",
			DiseaseType:      "Scab_Apple",
			Confidence:       87.54,
			Timestamp:        time.Date(2024, 4, 2, 8, 30, 15, 0, time.UTC),
		},
		Disease: entity.DiseaseInfo{
			DisplayName:    "Apple Scab",
			Description:    "Fungal disease",
			Severity:       "Moderate to High",
			Recommendation: "Apply fungicide",
		},
	}
}

func TestNewDetectionView(t *testing.T) {
	t.Parallel()

	v := NewDetectionView(sampleResult(), entity.DefaultConfidenceThresholds())

	assert.Equal(t, uint(3), v.ID)
	assert.Equal(t, "/uploads/0b8f6a8e.jpg", v.ImageURL)
	assert.Equal(t, "Apple Scab", v.DisplayName)
	assert.Equal(t, "87.5%", v.ConfidenceText)
	assert.Equal(t, "warning", v.ConfidenceClass)
	assert.Equal(t, "warning", v.SeverityClass)
	assert.Equal(t, "2024-04-02 08:30:15", v.Timestamp)
}

func TestNewHistoryView(t *testing.T) {
	t.Parallel()

	p := entity.HistoryPage{
		Items:      []entity.Result{sampleResult(), sampleResult()},
		Page:       2,
		PageSize:   12,
		Total:      26,
		TotalPages: 3,
	}
	v := NewHistoryView(p, entity.DefaultConfidenceThresholds())

	require.Len(t, v.Items, 2)
	assert.True(t, v.HasPrev)
	assert.True(t, v.HasNext)
	assert.Equal(t, 1, v.PrevPage)
	assert.Equal(t, 3, v.NextPage)
}

func TestNewHistoryResponse_Empty(t *testing.T) {
	t.Parallel()

	r := NewHistoryResponse(entity.HistoryPage{Page: 1, PageSize: 12}, entity.DefaultConfidenceThresholds())

	assert.NotNil(t, r.Items)
	assert.Empty(t, r.Items)
	assert.False(t, r.HasPrev)
	assert.False(t, r.HasNext)
}

func TestNewDetectionResponse(t *testing.T) {
	t.Parallel()

	r := NewDetectionResponse(sampleResult(), entity.ConfidenceThresholds{High: 80, Medium: 50})

	assert.Equal(t, "success", r.ConfidenceClass)
	assert.Equal(t, "2024-04-02T08:30:15Z", r.Timestamp)
	assert.Equal(t, "Apple Scab", r.Disease.Name)
	assert.Equal(t, "warning", r.Disease.SeverityClass)
}
