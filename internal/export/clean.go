package export

import (
	"bytes"
	"encoding/json"
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/leadforge/backoffice/internal/search"
)

// InternalPrefix marks fields that never leave the system.
const InternalPrefix = "_"

var dateHints = []string{"date", "time", "_at"}

var (
	supportedLocales = []language.Tag{
		language.AmericanEnglish,
		language.BritishEnglish,
		language.German,
		language.French,
		language.Spanish,
		language.Dutch,
		language.Japanese,
	}
	localeLayouts = []string{
		"1/2/2006, 3:04:05 PM",
		"02/01/2006, 15:04:05",
		"2.1.2006, 15:04:05",
		"02/01/2006 15:04:05",
		"2/1/2006, 15:04:05",
		"2-1-2006, 15:04:05",
		"2006/1/2 15:04:05",
	}
	localeMatcher = language.NewMatcher(supportedLocales)
)

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Cleaner turns backend rows into flat, serializable records.
type Cleaner struct {
	layout   string
	location *time.Location
}

// NewCleaner formats dates for the closest supported match of locale (a BCP 47 tag)
// in loc. Unknown tags fall back to American English, a nil loc to UTC.
func NewCleaner(locale string, loc *time.Location) Cleaner {
	if loc == nil {
		loc = time.UTC
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.AmericanEnglish
	}
	_, idx, _ := localeMatcher.Match(tag)
	return Cleaner{layout: localeLayouts[idx], location: loc}
}

// Clean processes rows and returns the header (union of cleaned keys, in backend
// column order followed by any extra keys sorted) and the cleaned records.
func (c Cleaner) Clean(columns []string, rows []search.Row) ([]string, []map[string]any) {
	records := make([]map[string]any, 0, len(rows))
	seen := make(map[string]struct{})
	for _, row := range rows {
		rec := make(map[string]any, len(row))
		for key, value := range row {
			if strings.HasPrefix(key, InternalPrefix) {
				continue
			}
			rec[key] = c.value(key, value)
			seen[key] = struct{}{}
		}
		records = append(records, rec)
	}

	headers := make([]string, 0, len(seen))
	for _, col := range columns {
		if _, ok := seen[col]; ok && !slices.Contains(headers, col) {
			headers = append(headers, col)
		}
	}
	var extra []string
	for key := range seen {
		if !slices.Contains(headers, key) {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return append(headers, extra...), records
}

func (c Cleaner) value(key string, v any) any {
	if v == nil {
		return nil
	}
	if isDateKey(key) {
		if t, ok := asTime(v); ok {
			return t.In(c.location).Format(c.layout)
		}
	}
	switch tv := v.(type) {
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v
	case time.Time:
		return tv.In(c.location).Format(time.RFC3339)
	case [16]byte:
		return uuid.UUID(tv).String()
	case json.Marshaler:
		raw, err := tv.MarshalJSON()
		if err != nil {
			return v
		}
		var out any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if dec.Decode(&out) == nil {
			switch ov := out.(type) {
			case nil, string, bool, json.Number:
				return ov
			}
		}
		return string(raw)
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		raw, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return string(raw)
	}
	return v
}

func isDateKey(key string) bool {
	lower := strings.ToLower(key)
	for _, hint := range dateHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func asTime(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case time.Time:
		return tv, !tv.IsZero()
	case *time.Time:
		if tv == nil || tv.IsZero() {
			return time.Time{}, false
		}
		return *tv, true
	case string:
		for _, layout := range parseLayouts {
			if t, err := time.Parse(layout, tv); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
