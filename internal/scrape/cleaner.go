package scrape

import (
	"regexp"
	"strconv"
	"strings"
)

// reCurrency matches everything that is not a digit, decimal point, or
// thousands separator. "£1,049.99" and "1 049,99 Kč" both reduce to a
// parseable numeric string.
var reCurrency = regexp.MustCompile(`[^\d.,]`)

// CleanRecord applies the configured cleaning ops to rec in place.
//
// Behavior:
//   - Fields without rules pass through unchanged.
//   - String ops (remove_whitespace, remove_currency) are idempotent.
//   - A failed numeric conversion sets the field to nil and is reported as a
//     *FieldConversionError; the record's other fields are unaffected. One
//     bad field never discards an item.
//   - Ops on a field that already holds a non-string value (possible only if
//     rules are applied twice) are identity for conversions and no-ops for
//     string transforms.
//
// The returned errors have Page unset; the caller owns page numbering.
func CleanRecord(rec Record, rules map[string][]string) []*FieldConversionError {
	var errs []*FieldConversionError

	for field, ops := range rules {
		raw, ok := rec[field]
		if !ok {
			continue
		}

		val := raw
		for _, op := range ops {
			s, isString := val.(string)
			switch op {
			case OpRemoveWhitespace:
				if isString {
					val = collapseWhitespace(s)
				}
			case OpRemoveCurrency:
				if isString {
					val = reCurrency.ReplaceAllString(s, "")
				}
			case OpConvertToFloat:
				if !isString {
					break // already numeric: defined identity
				}
				f, err := strconv.ParseFloat(numericForm(s), 64)
				if err != nil {
					errs = append(errs, &FieldConversionError{Field: field, Raw: s})
					val = nil
					break
				}
				val = f
			case OpConvertToInt:
				if !isString {
					break
				}
				// Parse via float first so "1049.00" converts cleanly,
				// then truncate.
				f, err := strconv.ParseFloat(numericForm(s), 64)
				if err != nil {
					errs = append(errs, &FieldConversionError{Field: field, Raw: s})
					val = nil
					break
				}
				val = int64(f)
			}
		}
		rec[field] = val
	}

	return errs
}

// collapseWhitespace trims the ends and squeezes internal whitespace runs
// to a single space.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// numericForm strips thousands separators ahead of numeric parsing.
func numericForm(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ",", "")
}
