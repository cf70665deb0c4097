package shared

import "math"

// PageMeta carries listing metadata in the shape the admin UI consumes.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	From        int `json:"from"`
	To          int `json:"to"`
}

// NewPageMeta computes page metadata for a listing.
func NewPageMeta(page, perPage, total int) PageMeta {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	lastPage := int(math.Ceil(float64(total) / float64(perPage)))
	if lastPage < 1 {
		lastPage = 1
	}
	meta := PageMeta{CurrentPage: page, LastPage: lastPage, PerPage: perPage, Total: total}
	if total > 0 && page <= lastPage {
		meta.From = (page-1)*perPage + 1
		meta.To = page * perPage
		if meta.To > total {
			meta.To = total
		}
	}
	return meta
}

// Offset returns the row offset for the page.
func (m PageMeta) Offset() int {
	return (m.CurrentPage - 1) * m.PerPage
}
