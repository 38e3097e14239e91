package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Format selects the serialization of an export.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates a user supplied format, defaulting to CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("export: unsupported format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

// Ext returns the file extension of the format.
func (f Format) Ext() string {
	if f == FormatJSON {
		return "json"
	}
	return "csv"
}

// Encode serializes cleaned records in format f.
func Encode(f Format, headers []string, records []map[string]any) ([]byte, error) {
	switch f {
	case FormatJSON:
		return EncodeJSON(records)
	case FormatCSV, "":
		return EncodeCSV(headers, records)
	default:
		return nil, fmt.Errorf("export: unsupported format %q", f)
	}
}

// EncodeCSV writes a header line followed by one line per record. Missing fields are
// written as empty cells. An empty record set produces an empty file.
func EncodeCSV(headers []string, records []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if len(records) == 0 {
		return buf.Bytes(), nil
	}
	writer := csv.NewWriter(&buf)
	if err := writer.Write(headers); err != nil {
		return nil, err
	}
	line := make([]string, len(headers))
	for _, rec := range records {
		for i, h := range headers {
			line[i] = cell(rec[h])
		}
		if err := writer.Write(line); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeJSON writes records as a pretty-printed array.
func EncodeJSON(records []map[string]any) ([]byte, error) {
	if records == nil {
		records = []map[string]any{}
	}
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: encode json: %w", err)
	}
	return out, nil
}

func cell(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case json.Number:
		return tv.String()
	case bool:
		return strconv.FormatBool(tv)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(tv), 'f', -1, 32)
	case fmt.Stringer:
		return tv.String()
	default:
		return fmt.Sprint(tv)
	}
}
