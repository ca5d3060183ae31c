package scrape

import "fmt"

// DisallowedByRobotsError is returned before any network call when the
// target path is blocked by the host's robots.txt for the configured
// user-agent. It is fatal for that URL but never discards records already
// collected by the surrounding scrape.
type DisallowedByRobotsError struct {
	URL string
}

func (e *DisallowedByRobotsError) Error() string {
	return fmt.Sprintf("disallowed by robots.txt: %s", e.URL)
}

// FetchFailedError is returned when all fetch attempts for a URL are
// exhausted. Status is the last HTTP status seen (0 if the failure was a
// transport error) and Err the last underlying error, if any.
type FetchFailedError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch failed: %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch failed: %s: last status %d", e.URL, e.Status)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

// FieldConversionError records a numeric conversion that failed for one
// field of one record. The field is set to the nil sentinel and the record
// is kept; this error never aborts a record or a scrape.
type FieldConversionError struct {
	Page  int
	Field string
	Raw   string
}

func (e *FieldConversionError) Error() string {
	return fmt.Sprintf("page %d: field %q: cannot convert %q to a number", e.Page, e.Field, e.Raw)
}
