package export

import (
	"encoding/json"
	"strings"
	"testing"

	"webscraper/internal/scrape"
)

var (
	testFields  = []string{"title", "price", "stock", "link"}
	testRecords = []scrape.Record{
		{"title": "A Light in the Attic", "price": 51.77, "stock": int64(22), "link": "https://example.com/b/1?a=1&b=2"},
		{"title": "Broken", "price": nil, "stock": int64(0), "link": ""},
	}
)

// TestWriteCSV verifies the header row, column order, numeric rendering,
// and the empty cell for the nil sentinel.
func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	if err := WriteCSV(&sb, testFields, testRecords); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), sb.String())
	}
	if lines[0] != "title,price,stock,link" {
		t.Fatalf("header: got %q", lines[0])
	}
	if lines[1] != "A Light in the Attic,51.77,22,https://example.com/b/1?a=1&b=2" {
		t.Fatalf("row 1: got %q", lines[1])
	}
	// Failed conversion renders as an empty cell, not "nil" or "<nil>".
	if lines[2] != "Broken,,0," {
		t.Fatalf("row 2: got %q", lines[2])
	}
}

// TestWriteCSV_NoRecords verifies an empty result still produces a header,
// so downstream tooling sees the schema.
func TestWriteCSV_NoRecords(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	if err := WriteCSV(&sb, []string{"a", "b"}, nil); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if got := strings.TrimSpace(sb.String()); got != "a,b" {
		t.Fatalf("got %q", got)
	}
}

// TestWriteJSON verifies the output is valid JSON, keys follow configured
// field order, the nil sentinel becomes null, and URLs are not HTML-escaped.
func TestWriteJSON(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	if err := WriteJSON(&sb, testFields, testRecords); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	out := sb.String()

	var decoded []map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not valid json: %v\n%s", err, out)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(decoded))
	}
	if decoded[0]["price"] != 51.77 {
		t.Fatalf("price: got %#v", decoded[0]["price"])
	}
	if v, ok := decoded[1]["price"]; !ok || v != nil {
		t.Fatalf("expected explicit null price, got %#v (present %v)", v, ok)
	}

	// Key order is the configured field order, not alphabetical.
	if !strings.Contains(out, `"title": "A Light in the Attic", "price": 51.77, "stock": 22, "link"`) {
		t.Fatalf("keys not in field order:\n%s", out)
	}
	// The ampersand must survive verbatim, not become \u0026.
	if !strings.Contains(out, "a=1&b=2") {
		t.Fatalf("url was html-escaped:\n%s", out)
	}
}

// TestWriteJSON_Empty verifies zero records yield an empty array.
func TestWriteJSON_Empty(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	if err := WriteJSON(&sb, testFields, nil); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var decoded []any
	if err := json.Unmarshal([]byte(sb.String()), &decoded); err != nil {
		t.Fatalf("output is not valid json: %v\n%s", err, sb.String())
	}
	if len(decoded) != 0 {
		t.Fatalf("expected empty array, got %v", decoded)
	}
}

// TestFieldValues verifies the projection fills missing keys with nil so
// every row has the full column set.
func TestFieldValues(t *testing.T) {
	t.Parallel()

	vals := fieldValues(scrape.Record{"a": "x"}, []string{"a", "missing"})
	if vals[0] != "x" || vals[1] != nil {
		t.Fatalf("got %#v", vals)
	}
}
