package entity

// Result is a detection enriched with its knowledge base entry.
type Result struct {
	Detection Detection
	Disease   DiseaseInfo
}

// HistoryPage is one page of a session's detections, newest first.
type HistoryPage struct {
	Items      []Result
	Page       int
	PageSize   int
	Total      int64
	TotalPages int
}

// HasPrev reports whether a previous page exists.
func (p HistoryPage) HasPrev() bool {
	return p.Page > 1
}

// HasNext reports whether a following page exists.
func (p HistoryPage) HasNext() bool {
	return p.Page < p.TotalPages
}

// PrevPage returns the previous page number.
func (p HistoryPage) PrevPage() int {
	return p.Page - 1
}

// NextPage returns the next page number.
func (p HistoryPage) NextPage() int {
	return p.Page + 1
}
