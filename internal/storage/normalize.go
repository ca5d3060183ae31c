package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeValue converts a record value to the canonical driver argument
// for a TEXT-affinity column: a string, or nil for the failed-conversion
// sentinel.
//
// Backends must not assume a particular underlying type for values; this
// helper keeps rows consistent across backends and keeps driver type
// inference out of the picture.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// NormalizeRows applies NormalizeValue to every cell.
func NormalizeRows(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		nr := make([]any, len(row))
		for j, v := range row {
			nr[j] = NormalizeValue(v)
		}
		out[i] = nr
	}
	return out
}
