package search

import (
	"fmt"
	"slices"
	"sort"
)

// Table identifies one of the admin-managed tables.
type Table string

// Known tables.
const (
	TableLeads                 Table = "leads"
	TableBookings              Table = "bookings"
	TableNewsletterSubscribers Table = "newsletter_subscribers"
	TableTeardownRequests      Table = "teardown_requests"
	TableResourceDownloads     Table = "resource_downloads"
)

// Filter columns shared by the inclusion filters.
const (
	ColumnStatus = "status"
	ColumnSource = "source"
)

// TableSpec describes how a free-text and date-range filter maps onto a table.
type TableSpec struct {
	Name          Table
	SearchColumns []string
	DateColumn    string
	// FilterColumns lists which inclusion filters (status, source) the table supports.
	FilterColumns []string
	// SortColumns lists the columns a caller may sort by in addition to DateColumn.
	SortColumns []string
}

var tableSpecs = map[Table]TableSpec{
	TableLeads: {
		Name:          TableLeads,
		SearchColumns: []string{"name", "email", "message"},
		DateColumn:    "created_at",
		FilterColumns: []string{ColumnStatus, ColumnSource},
		SortColumns:   []string{"name", "email", "company", "status", "source", "updated_at"},
	},
	TableBookings: {
		Name:          TableBookings,
		SearchColumns: []string{"name", "email", "company"},
		DateColumn:    "created_at",
		FilterColumns: []string{ColumnStatus},
		SortColumns:   []string{"name", "email", "company", "status", "booking_date"},
	},
	TableNewsletterSubscribers: {
		Name:          TableNewsletterSubscribers,
		SearchColumns: []string{"email"},
		DateColumn:    "subscribed_at",
		FilterColumns: []string{ColumnSource},
		SortColumns:   []string{"email", "source", "is_active"},
	},
	TableTeardownRequests: {
		Name:          TableTeardownRequests,
		SearchColumns: []string{"name", "email", "company", "website_url"},
		DateColumn:    "created_at",
		FilterColumns: []string{ColumnStatus},
		SortColumns:   []string{"name", "email", "company", "status"},
	},
	TableResourceDownloads: {
		Name:          TableResourceDownloads,
		SearchColumns: []string{"name", "email", "resource_name"},
		DateColumn:    "downloaded_at",
		FilterColumns: []string{ColumnSource},
		SortColumns:   []string{"name", "email", "resource_name", "source"},
	},
}

// LookupTable returns the spec registered for name.
func LookupTable(name string) (TableSpec, error) {
	spec, ok := tableSpecs[Table(name)]
	if !ok {
		return TableSpec{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return spec, nil
}

// Tables lists every registered table spec ordered by name.
func Tables() []TableSpec {
	specs := make([]TableSpec, 0, len(tableSpecs))
	for _, spec := range tableSpecs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Filters reports whether the table supports the given inclusion filter column.
func (s TableSpec) Filters(column string) bool {
	return slices.Contains(s.FilterColumns, column)
}

// SortColumn resolves the requested sort column, falling back to the date column.
func (s TableSpec) SortColumn(requested string) string {
	if requested == "" || requested == s.DateColumn {
		return s.DateColumn
	}
	if slices.Contains(s.SortColumns, requested) {
		return requested
	}
	return s.DateColumn
}

// StorageKey is the key filter state for this table is persisted under.
func (s TableSpec) StorageKey() string {
	return "admin_filters_" + string(s.Name)
}
