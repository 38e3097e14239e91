package searchhttp

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/leadforge/backoffice/internal/search"
)

const (
	defaultPageSize = search.DefaultPageSize
	maxPageSize     = 100
)

// ListRequest is the query-string form of a filtered list read.
type ListRequest struct {
	Query     string   `validate:"max=200"`
	Status    []string `validate:"max=20,dive,max=64"`
	Source    []string `validate:"max=20,dive,max=64"`
	DateFrom  string   `validate:"omitempty,datetime=2006-01-02"`
	DateTo    string   `validate:"omitempty,datetime=2006-01-02"`
	SortBy    string   `validate:"omitempty,max=64"`
	SortOrder string   `validate:"omitempty,oneof=asc desc"`
	Page      int      `validate:"gte=1,lte=1000000"`
	PageSize  int      `validate:"gte=1,lte=100"`
}

// Filters converts the request into a filter state.
func (l ListRequest) Filters() search.FilterState {
	f := search.DefaultFilters()
	f.Query = l.Query
	f.Status = l.Status
	f.Source = l.Source
	f.DateFrom = l.DateFrom
	f.DateTo = l.DateTo
	f.SortBy = l.SortBy
	if l.SortOrder != "" {
		f.SortOrder = search.SortOrder(l.SortOrder)
	}
	return f
}

// ParseListRequest reads filters and paging from r and validates them. Multi-valued
// filters accept both repeated parameters and comma separated lists.
func ParseListRequest(r *http.Request, v *validator.Validate) (ListRequest, error) {
	q := r.URL.Query()
	req := ListRequest{
		Query:     q.Get("query"),
		Status:    multi(q, "status"),
		Source:    multi(q, "source"),
		DateFrom:  strings.TrimSpace(q.Get("dateFrom")),
		DateTo:    strings.TrimSpace(q.Get("dateTo")),
		SortBy:    strings.TrimSpace(q.Get("sortBy")),
		SortOrder: strings.ToLower(strings.TrimSpace(q.Get("sortOrder"))),
		Page:      1,
		PageSize:  defaultPageSize,
	}
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return ListRequest{}, validationError{field: "page"}
		}
		req.Page = n
	}
	if raw := strings.TrimSpace(q.Get("pageSize")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return ListRequest{}, validationError{field: "pageSize"}
		}
		req.PageSize = n
	}
	if err := v.Struct(req); err != nil {
		return ListRequest{}, err
	}
	return req, nil
}

func multi(q url.Values, key string) []string {
	var out []string
	for _, raw := range q[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

type validationError struct {
	field string
}

func (e validationError) Error() string {
	return "invalid " + e.field
}
