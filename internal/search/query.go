package search

import (
	"context"
	"strings"
	"time"

	"github.com/leadforge/backoffice/internal/shared"
)

// Row is one record returned by the backend, keyed by column name.
type Row map[string]any

// Query is the backend-neutral description of one filtered, sorted and paginated read.
type Query struct {
	Table         Table
	Search        string
	SearchColumns []string
	// In holds inclusion filters keyed by column.
	In         map[string][]string
	DateColumn string
	DateFrom   *time.Time
	// DateBefore is an exclusive upper bound.
	DateBefore *time.Time
	SortColumn string
	SortOrder  SortOrder
	Offset     int
	Limit      int
	// SkipCount tells the backend the caller does not need the total count.
	SkipCount bool
}

// Page is one slice of rows plus the exact count of the filtered set.
type Page struct {
	Columns    []string
	Rows       []Row
	TotalCount int
}

// Source executes queries against the tabular backend.
type Source interface {
	Query(ctx context.Context, q Query) (Page, error)
}

// Snapshotter is implemented by sources that can pin a sequence of queries to one
// consistent view of the data.
type Snapshotter interface {
	Snapshot(ctx context.Context, fn func(Source) error) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, q Query) (Page, error)

// Query implements Source.
func (f SourceFunc) Query(ctx context.Context, q Query) (Page, error) {
	return f(ctx, q)
}

// ResultPage is the page shown by a list view.
type ResultPage struct {
	Columns    []string `json:"columns,omitempty"`
	Rows       []Row    `json:"rows"`
	TotalCount int      `json:"totalCount"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
}

// TotalPages returns ceil(TotalCount / PageSize), or 0 without a page size.
func (r ResultPage) TotalPages() int {
	if r.PageSize <= 0 {
		return 0
	}
	return shared.NewPagination(r.Page, r.PageSize, r.TotalCount).TotalPages
}

// MaxPage is the highest page BuildQuery will address; larger pages are clamped to it.
const MaxPage = 1_000_000

// BuildQuery translates filters plus a 1-based page into a backend query for spec.
func BuildQuery(spec TableSpec, filters FilterState, page, pageSize int) (Query, error) {
	from, before, err := filters.DateRange()
	if err != nil {
		return Query{}, err
	}
	page = min(max(page, 1), MaxPage)
	q := Query{
		Table:      spec.Name,
		DateColumn: spec.DateColumn,
		DateFrom:   from,
		DateBefore: before,
		SortColumn: spec.SortColumn(filters.SortBy),
		SortOrder:  filters.order(),
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
	}
	if term := strings.TrimSpace(filters.Query); term != "" {
		q.Search = term
		q.SearchColumns = spec.SearchColumns
	}
	addIn := func(column string, values []string) {
		if len(values) == 0 || !spec.Filters(column) {
			return
		}
		if q.In == nil {
			q.In = make(map[string][]string, 2)
		}
		q.In[column] = values
	}
	addIn(ColumnStatus, filters.Status)
	addIn(ColumnSource, filters.Source)
	return q, nil
}
