package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCSVQuotesAndFillsGaps(t *testing.T) {
	headers := []string{"name", "message", "score"}
	body, err := EncodeCSV(headers, []map[string]any{
		{"name": `Jane "JJ" Doe`, "message": "line one\nline two, with comma", "score": 2.5},
		{"name": "Bob"},
	})
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		headers,
		{`Jane "JJ" Doe`, "line one\nline two, with comma", "2.5"},
		{"Bob", "", ""},
	}, records)
}

func TestEncodeCSVEmpty(t *testing.T) {
	body, err := EncodeCSV([]string{"id"}, nil)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestEncodeJSON(t *testing.T) {
	body, err := EncodeJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))

	body, err = EncodeJSON([]map[string]any{{"b": 1, "a": "x"}})
	require.NoError(t, err)
	assert.Equal(t, "[\n  {\n    \"a\": \"x\",\n    \"b\": 1\n  }\n]", string(body))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Len(t, decoded, 1)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	assert.Equal(t, "application/json", f.ContentType())
	assert.Equal(t, "json", f.Ext())

	_, err = ParseFormat("xlsx")
	require.Error(t, err)

	_, err = Encode(Format("xml"), nil, nil)
	require.Error(t, err)
}
