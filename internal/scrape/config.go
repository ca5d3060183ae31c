package scrape

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// PagePlaceholder is the token substituted with the page index in
// URL-pattern pagination templates.
const PagePlaceholder = "{page}"

// Cleaning transform names accepted in job files.
const (
	OpRemoveWhitespace = "remove_whitespace"
	OpRemoveCurrency   = "remove_currency"
	OpConvertToFloat   = "convert_to_float"
	OpConvertToInt     = "convert_to_int"
)

// FieldSelector describes how one field is extracted from an item container.
//
// If Attribute is empty, the field value is the trimmed text content of the
// first selector match. Otherwise it is the named attribute of that match.
// The "selector can be a string or an object" shape of older job files is
// resolved into this struct once at load time, never re-inspected per item.
type FieldSelector struct {
	Name      string `json:"name"`
	Selector  string `json:"selector"`
	Attribute string `json:"attribute,omitempty"`
}

// Selectors groups the item (record boundary) selector with the ordered
// field selectors evaluated relative to each item.
type Selectors struct {
	Item   string          `json:"item"`
	Fields []FieldSelector `json:"fields"`
}

// Pagination selects one of two strategies for discovering the next page.
//
// Exactly one of NextSelector / URLPattern may be set:
//   - NextSelector: a CSS selector whose first match's href (resolved
//     absolute) is the next page URL; no match means the site is exhausted.
//   - URLPattern: a template containing PagePlaceholder; the page index
//     starts at Start (default 1) and increments by Step (default 1).
type Pagination struct {
	NextSelector string `json:"next_selector,omitempty"`
	URLPattern   string `json:"url_pattern,omitempty"`
	Start        int    `json:"start,omitempty"`
	Step         int    `json:"step,omitempty"`
}

// FetcherConfig tunes the HTTP layer of a scrape.
type FetcherConfig struct {
	DelayMin   Duration `json:"delay_min"`
	DelayMax   Duration `json:"delay_max"`
	Timeout    Duration `json:"timeout"`
	MaxRetries int      `json:"max_retries"`
	Proxy      string   `json:"proxy,omitempty"`
	UserAgent  string   `json:"user_agent,omitempty"`
}

// Job is one complete scrape configuration: where to start, what to
// extract, how to clean it, and how to walk pages.
type Job struct {
	URL        string              `json:"url"`
	Selectors  Selectors           `json:"selectors"`
	Cleaning   map[string][]string `json:"cleaning,omitempty"`
	Pagination *Pagination         `json:"pagination,omitempty"`
	LimitPages int                 `json:"limit_pages,omitempty"`
	Fetcher    FetcherConfig       `json:"fetcher"`
}

// Duration wraps time.Duration so job files can use human-readable values
// like "1s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// LoadJobFile loads and validates a JSON job file.
func LoadJobFile(path string) (*Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}

	var job Job
	if err := json.Unmarshal(b, &job); err != nil {
		return nil, fmt.Errorf("parse job json: %w", err)
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// Validate checks a Job for configuration errors.
//
// Edge cases:
//   - Both pagination variants set at once is rejected (ambiguous intent).
//   - URLPattern templates must contain the PagePlaceholder token, otherwise
//     every page would fetch the same URL.
//   - Cleaning rules may name at most one numeric conversion, and it must be
//     the last op (numeric output has no further string transforms).
//
// Errors:
//   - Returns the first validation error found; does not collect all of them.
func (j *Job) Validate() error {
	if !isValidURL(j.URL) {
		return fmt.Errorf("invalid url %q: must be absolute http or https", j.URL)
	}
	if strings.TrimSpace(j.Selectors.Item) == "" {
		return fmt.Errorf("selectors.item is required")
	}
	if len(j.Selectors.Fields) == 0 {
		return fmt.Errorf("selectors.fields must name at least one field")
	}

	seen := make(map[string]bool, len(j.Selectors.Fields))
	for _, f := range j.Selectors.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("field with selector %q has no name", f.Selector)
		}
		if strings.TrimSpace(f.Selector) == "" {
			return fmt.Errorf("field %q has no selector", f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field name %q", f.Name)
		}
		seen[f.Name] = true
	}

	for field, ops := range j.Cleaning {
		if !seen[field] {
			return fmt.Errorf("cleaning rule for unknown field %q", field)
		}
		if err := validateOps(field, ops); err != nil {
			return err
		}
	}

	if p := j.Pagination; p != nil {
		hasNext := strings.TrimSpace(p.NextSelector) != ""
		hasPattern := strings.TrimSpace(p.URLPattern) != ""
		if hasNext && hasPattern {
			return fmt.Errorf("pagination: next_selector and url_pattern are mutually exclusive")
		}
		if !hasNext && !hasPattern {
			return fmt.Errorf("pagination: one of next_selector or url_pattern is required")
		}
		if hasPattern && !strings.Contains(p.URLPattern, PagePlaceholder) {
			return fmt.Errorf("pagination: url_pattern must contain %s", PagePlaceholder)
		}
		if p.Step < 0 {
			return fmt.Errorf("pagination: step must be >= 0")
		}
	}

	if j.LimitPages < 0 {
		return fmt.Errorf("limit_pages must be >= 0")
	}

	f := j.Fetcher
	if f.DelayMin < 0 || f.DelayMax < 0 {
		return fmt.Errorf("fetcher: delays must be >= 0")
	}
	if f.DelayMax < f.DelayMin {
		return fmt.Errorf("fetcher: delay_max must be >= delay_min")
	}
	if f.MaxRetries < 0 {
		return fmt.Errorf("fetcher: max_retries must be >= 0")
	}
	return nil
}

// validateOps checks one field's cleaning op list.
func validateOps(field string, ops []string) error {
	for i, op := range ops {
		switch op {
		case OpRemoveWhitespace, OpRemoveCurrency:
			// string -> string, any position before a conversion
		case OpConvertToFloat, OpConvertToInt:
			if i != len(ops)-1 {
				return fmt.Errorf("cleaning %q: %s must be the last op", field, op)
			}
			for _, prev := range ops[:i] {
				if prev == OpConvertToFloat || prev == OpConvertToInt {
					return fmt.Errorf("cleaning %q: at most one numeric conversion allowed", field)
				}
			}
		default:
			return fmt.Errorf("cleaning %q: unknown op %q", field, op)
		}
	}
	return nil
}

// FieldNames returns the configured field names in declaration order.
func (j *Job) FieldNames() []string {
	out := make([]string, 0, len(j.Selectors.Fields))
	for _, f := range j.Selectors.Fields {
		out = append(out, f.Name)
	}
	return out
}

// isValidURL reports whether raw is an absolute http(s) URL.
func isValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
