// Package dto はdetectionフィーチャーのHTMLビューとJSONレスポンスへの変換を提供します。
package dto

import (
	"fmt"
	"net/url"
	"time"

	"apple_detector/internal/api"
	"apple_detector/internal/feature/detection/domain/entity"
)

// ImageURL は保存名から画像配信URLを組み立てます。
func ImageURL(filename string) string {
	return "/uploads/" + url.PathEscape(filename)
}

// DetectionView はテンプレートに渡す1件分の表示用データです。
type DetectionView struct {
	ID               uint
	ImageURL         string
	OriginalFilename string
	DiseaseType      string
	DisplayName      string
	Description      string
	Severity         string
	SeverityClass    string
	Recommendation   string
	Confidence       float64
	ConfidenceText   string // "87.5%"
	ConfidenceClass  string
	Timestamp        string
}

// NewDetectionView は検出結果を表示用データに変換します。
func NewDetectionView(r entity.Result, t entity.ConfidenceThresholds) DetectionView {
	d := r.Detection
	return DetectionView{
		ID:               d.ID,
		ImageURL:         ImageURL(d.Filename),
		OriginalFilename: d.OriginalFilename,
		DiseaseType:      d.DiseaseType,
		DisplayName:      r.Disease.DisplayName,
		Description:      r.Disease.Description,
		Severity:         r.Disease.Severity,
		SeverityClass:    r.Disease.SeverityClass(),
		Recommendation:   r.Disease.Recommendation,
		Confidence:       d.Confidence,
		ConfidenceText:   fmt.Sprintf("%.1f%%", d.Confidence),
		ConfidenceClass:  t.Class(d.Confidence),
		Timestamp:        d.FormattedTimestamp(),
	}
}

// HistoryView は履歴ページの表示用データです。
type HistoryView struct {
	Items      []DetectionView
	Page       int
	TotalPages int
	Total      int64
	HasPrev    bool
	HasNext    bool
	PrevPage   int
	NextPage   int
}

// NewHistoryView は履歴ページを表示用データに変換します。
func NewHistoryView(p entity.HistoryPage, t entity.ConfidenceThresholds) HistoryView {
	items := make([]DetectionView, 0, len(p.Items))
	for _, r := range p.Items {
		items = append(items, NewDetectionView(r, t))
	}
	return HistoryView{
		Items:      items,
		Page:       p.Page,
		TotalPages: p.TotalPages,
		Total:      p.Total,
		HasPrev:    p.HasPrev(),
		HasNext:    p.HasNext(),
		PrevPage:   p.PrevPage(),
		NextPage:   p.NextPage(),
	}
}

// NewDetectionResponse は検出結果をJSONレスポンスに変換します。
func NewDetectionResponse(r entity.Result, t entity.ConfidenceThresholds) api.DetectionResponse {
	d := r.Detection
	return api.DetectionResponse{
		ID:               d.ID,
		Filename:         d.Filename,
		OriginalFilename: d.OriginalFilename,
		DiseaseType:      d.DiseaseType,
		Confidence:       d.Confidence,
		ConfidenceClass:  t.Class(d.Confidence),
		Timestamp:        d.Timestamp.UTC().Format(time.RFC3339Nano),
		ImageURL:         ImageURL(d.Filename),
		Disease: api.DiseaseResponse{
			Name:           r.Disease.DisplayName,
			Description:    r.Disease.Description,
			Severity:       r.Disease.Severity,
			SeverityClass:  r.Disease.SeverityClass(),
			Recommendation: r.Disease.Recommendation,
		},
	}
}

// NewHistoryResponse は履歴ページをJSONレスポンスに変換します。
func NewHistoryResponse(p entity.HistoryPage, t entity.ConfidenceThresholds) api.HistoryResponse {
	items := make([]api.DetectionResponse, 0, len(p.Items))
	for _, r := range p.Items {
		items = append(items, NewDetectionResponse(r, t))
	}
	return api.HistoryResponse{
		Items:      items,
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      p.Total,
		TotalPages: p.TotalPages,
		HasPrev:    p.HasPrev(),
		HasNext:    p.HasNext(),
	}
}
