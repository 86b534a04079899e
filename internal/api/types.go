// Package api はJSON APIのリクエスト・レスポンス型を定義します。
package api

// ErrorResponse はエラー時のレスポンスです。
type ErrorResponse struct {
	Error string `json:"error"`
}

// DiseaseResponse は予測ラベルに対応する病害情報です。
type DiseaseResponse struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Severity       string `json:"severity"`
	SeverityClass  string `json:"severity_class"`
	Recommendation string `json:"recommendation"`
}

// DetectionResponse は1件の検出結果です。
type DetectionResponse struct {
	ID               uint            `json:"id"`
	Filename         string          `json:"filename"`
	OriginalFilename string          `json:"original_filename"`
	DiseaseType      string          `json:"disease_type"`
	Confidence       float64         `json:"confidence"`
	ConfidenceClass  string          `json:"confidence_class"`
	Timestamp        string          `json:"timestamp"` // RFC3339 (UTC)
	ImageURL         string          `json:"image_url"`
	Disease          DiseaseResponse `json:"disease"`
}

// HistoryResponse はセッションの検出履歴の1ページです。
type HistoryResponse struct {
	Items      []DetectionResponse `json:"items"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	Total      int64               `json:"total"`
	TotalPages int                 `json:"total_pages"`
	HasPrev    bool                `json:"has_prev"`
	HasNext    bool                `json:"has_next"`
}
