// Package export writes scraped records to row-oriented sinks.
//
// All sinks consume the same normalized shape: an ordered field-name list
// plus records whose values are string, float64, int64, or nil (the sentinel
// for a failed conversion). Missing fields are present as empty/null, never
// omitted, so every row has the same column set.
package export

import (
	"fmt"
	"strconv"

	"webscraper/internal/scrape"
)

// cellString renders a record value for delimited-text output. The nil
// sentinel becomes an empty cell.
func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// fieldValues projects rec onto fields in order, substituting nil for
// missing keys.
func fieldValues(rec scrape.Record, fields []string) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		if v, ok := rec[f]; ok {
			out[i] = v
		}
	}
	return out
}
