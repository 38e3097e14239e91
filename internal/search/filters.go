package search

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DateLayout is the wire format of the date range bounds.
const DateLayout = "2006-01-02"

// SortOrder is the direction of a sort.
type SortOrder string

// Sort directions.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// FilterState is the query, filter and sort criteria driving one list view.
type FilterState struct {
	Query     string    `json:"query"`
	Status    []string  `json:"status,omitempty"`
	Source    []string  `json:"source,omitempty"`
	DateFrom  string    `json:"dateFrom,omitempty"`
	DateTo    string    `json:"dateTo,omitempty"`
	SortBy    string    `json:"sortBy,omitempty"`
	SortOrder SortOrder `json:"sortOrder"`
}

// DefaultFilters returns the state a freshly mounted view starts with.
func DefaultFilters() FilterState {
	return FilterState{SortOrder: SortDesc}
}

// HasActiveFilters reports whether any narrowing filter is set. Sorting does not count.
func (f FilterState) HasActiveFilters() bool {
	return strings.TrimSpace(f.Query) != "" ||
		len(f.Status) > 0 ||
		len(f.Source) > 0 ||
		f.DateFrom != "" ||
		f.DateTo != ""
}

// Validate checks the date bounds and sort order.
func (f FilterState) Validate() error {
	if _, _, err := f.DateRange(); err != nil {
		return err
	}
	switch f.SortOrder {
	case "", SortAsc, SortDesc:
	default:
		return fmt.Errorf("%w: sortOrder %q", ErrInvalidFilter, f.SortOrder)
	}
	return nil
}

// DateRange returns the inclusive lower bound and the exclusive upper bound of the
// date filter. The upper bound is the day after DateTo so the whole of DateTo matches.
func (f FilterState) DateRange() (from, before *time.Time, err error) {
	if f.DateFrom != "" {
		t, perr := time.Parse(DateLayout, f.DateFrom)
		if perr != nil {
			return nil, nil, fmt.Errorf("%w: dateFrom %q", ErrInvalidFilter, f.DateFrom)
		}
		from = &t
	}
	if f.DateTo != "" {
		t, perr := time.Parse(DateLayout, f.DateTo)
		if perr != nil {
			return nil, nil, fmt.Errorf("%w: dateTo %q", ErrInvalidFilter, f.DateTo)
		}
		end := t.AddDate(0, 0, 1)
		before = &end
	}
	return from, before, nil
}

func (f FilterState) order() SortOrder {
	if f.SortOrder == SortAsc {
		return SortAsc
	}
	return SortDesc
}

// Equal reports whether two states describe the same query.
func (f FilterState) Equal(other FilterState) bool {
	return f.Query == other.Query &&
		slices.Equal(f.Status, other.Status) &&
		slices.Equal(f.Source, other.Source) &&
		f.DateFrom == other.DateFrom &&
		f.DateTo == other.DateTo &&
		f.SortBy == other.SortBy &&
		f.order() == other.order()
}

// FilterPatch is a partial FilterState update. Nil fields are left unchanged.
type FilterPatch struct {
	Query     *string    `json:"query,omitempty"`
	Status    *[]string  `json:"status,omitempty"`
	Source    *[]string  `json:"source,omitempty"`
	DateFrom  *string    `json:"dateFrom,omitempty"`
	DateTo    *string    `json:"dateTo,omitempty"`
	SortBy    *string    `json:"sortBy,omitempty"`
	SortOrder *SortOrder `json:"sortOrder,omitempty"`
}

// Apply merges the patch into f and returns the result.
func (p FilterPatch) Apply(f FilterState) FilterState {
	if p.Query != nil {
		f.Query = *p.Query
	}
	if p.Status != nil {
		f.Status = compactValues(*p.Status)
	}
	if p.Source != nil {
		f.Source = compactValues(*p.Source)
	}
	if p.DateFrom != nil {
		f.DateFrom = strings.TrimSpace(*p.DateFrom)
	}
	if p.DateTo != nil {
		f.DateTo = strings.TrimSpace(*p.DateTo)
	}
	if p.SortBy != nil {
		f.SortBy = strings.TrimSpace(*p.SortBy)
	}
	if p.SortOrder != nil {
		f.SortOrder = *p.SortOrder
	}
	return f
}

// PatchFor builds a single-field patch, the form used by SetFilter.
func PatchFor(key string, value any) (FilterPatch, error) {
	var p FilterPatch
	switch key {
	case "query":
		s, err := stringValue(key, value)
		if err != nil {
			return p, err
		}
		p.Query = &s
	case "status", "source":
		values, err := stringsValue(key, value)
		if err != nil {
			return p, err
		}
		if key == "status" {
			p.Status = &values
		} else {
			p.Source = &values
		}
	case "dateFrom", "dateTo", "sortBy":
		s, err := stringValue(key, value)
		if err != nil {
			return p, err
		}
		switch key {
		case "dateFrom":
			p.DateFrom = &s
		case "dateTo":
			p.DateTo = &s
		default:
			p.SortBy = &s
		}
	case "sortOrder":
		s, err := stringValue(key, value)
		if err != nil {
			return p, err
		}
		order := SortOrder(strings.ToLower(s))
		p.SortOrder = &order
	default:
		return p, fmt.Errorf("%w: unknown key %q", ErrInvalidFilter, key)
	}
	return p, nil
}

func stringValue(key string, value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case SortOrder:
		return string(v), nil
	default:
		return "", fmt.Errorf("%w: %s expects a string, got %T", ErrInvalidFilter, key, value)
	}
}

func stringsValue(key string, value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return compactValues([]string{v}), nil
	case []string:
		return compactValues(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects strings, got %T", ErrInvalidFilter, key, item)
			}
			out = append(out, s)
		}
		return compactValues(out), nil
	default:
		return nil, fmt.Errorf("%w: %s expects a list of strings, got %T", ErrInvalidFilter, key, value)
	}
}

// compactValues trims, drops blanks and de-duplicates while keeping order.
func compactValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
