package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"webscraper/internal/scrape"
)

// WriteCSV writes a header row of field names followed by one row per
// record.
//
// Numeric values are rendered without an exponent ("1049.99", not
// "1.04999e+03") so the output loads cleanly into spreadsheet tools.
func WriteCSV(w io.Writer, fields []string, records []scrape.Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(fields); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(fields))
	for _, rec := range records {
		for i, v := range fieldValues(rec, fields) {
			row[i] = cellString(v)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
