package shared

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// PageItem is one entry of a condensed page-number strip.
type PageItem struct {
	Number   int  `json:"number,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
	Current  bool `json:"current,omitempty"`
}

// Pager is the view model behind Previous/Next controls and the page strip.
type Pager struct {
	Page       int        `json:"page"`
	TotalPages int        `json:"totalPages"`
	HasPrev    bool       `json:"hasPrev"`
	HasNext    bool       `json:"hasNext"`
	Items      []PageItem `json:"items"`
}

// NewPager builds the pager for page out of totalPages.
func NewPager(page, totalPages int) Pager {
	return Pager{
		Page:       page,
		TotalPages: totalPages,
		HasPrev:    page > 1 && totalPages > 0,
		HasNext:    page < totalPages,
		Items:      PageStrip(page, totalPages),
	}
}

// PageStrip condenses page numbers for display. Up to five pages are listed in full;
// beyond that the first and last page, the current page and its neighbours are shown,
// with an ellipsis wherever the gap between two shown pages exceeds one.
func PageStrip(page, totalPages int) []PageItem {
	if totalPages <= 0 {
		return []PageItem{}
	}
	var shown []int
	if totalPages <= 5 {
		for n := 1; n <= totalPages; n++ {
			shown = append(shown, n)
		}
	} else {
		for _, n := range []int{1, page - 1, page, page + 1, totalPages} {
			if n < 1 || n > totalPages {
				continue
			}
			if len(shown) > 0 && shown[len(shown)-1] >= n {
				continue
			}
			shown = append(shown, n)
		}
	}
	items := make([]PageItem, 0, len(shown)+2)
	prev := 0
	for _, n := range shown {
		if prev > 0 && n-prev > 1 {
			items = append(items, PageItem{Ellipsis: true})
		}
		items = append(items, PageItem{Number: n, Current: n == page})
		prev = n
	}
	return items
}
