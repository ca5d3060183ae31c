package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"webscraper/internal/scrape"
)

// WriteJSON streams records as a JSON array of objects.
//
// Objects are written by hand rather than via map marshaling so keys appear
// in configured field order instead of Go's alphabetical map order. HTML
// escaping is off: extracted values frequently contain URLs and fragments
// that should round-trip verbatim.
func WriteJSON(w io.Writer, fields []string, records []scrape.Record) error {
	if _, err := io.WriteString(w, "[\n"); err != nil {
		return err
	}

	for i, rec := range records {
		if i > 0 {
			if _, err := io.WriteString(w, ",\n"); err != nil {
				return err
			}
		}
		if err := writeObject(w, fields, rec); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "\n]\n")
	return err
}

func writeObject(w io.Writer, fields []string, rec scrape.Record) error {
	if _, err := io.WriteString(w, "  {"); err != nil {
		return err
	}

	vals := fieldValues(rec, fields)
	for i, f := range fields {
		if i > 0 {
			if _, err := io.WriteString(w, ", "); err != nil {
				return err
			}
		}

		key, err := encodeValue(f)
		if err != nil {
			return fmt.Errorf("encode field name %q: %w", f, err)
		}
		val, err := encodeValue(vals[i])
		if err != nil {
			return fmt.Errorf("encode field %q: %w", f, err)
		}
		if _, err := fmt.Fprintf(w, "%s: %s", key, val); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "}")
	return err
}

func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
