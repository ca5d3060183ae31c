package scrape

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Record is one extracted item. Values are raw strings after extraction and
// may become float64/int64/nil after cleaning. Field order is not carried by
// the map; callers use the job's ordered field names.
type Record map[string]any

// ExtractRecords locates every item container matched by sel.Item and pulls
// one Record per container.
//
// Behavior:
//   - Zero item matches is not an error; empty pages are valid (for example
//     the last page of a listing) and return an empty slice.
//   - Each field selector is resolved relative to its item container. A
//     missing field match yields "" for that field; it never aborts the item.
//   - href/src attribute values are resolved absolute against base, since
//     relative links are useless once detached from the page they came from.
//
// Every record contains every configured field key, so downstream
// row-oriented sinks see a consistent column set.
func ExtractRecords(doc *goquery.Document, sel Selectors, base *url.URL) []Record {
	var records []Record

	doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		rec := make(Record, len(sel.Fields))
		for _, f := range sel.Fields {
			rec[f.Name] = extractField(item, f, base)
		}
		records = append(records, rec)
	})

	return records
}

// extractField pulls one field value from an item container.
func extractField(item *goquery.Selection, f FieldSelector, base *url.URL) string {
	m := item.Find(f.Selector).First()
	if m.Length() == 0 {
		return ""
	}

	if f.Attribute == "" {
		return strings.TrimSpace(m.Text())
	}

	val, ok := m.Attr(f.Attribute)
	if !ok {
		return ""
	}
	val = strings.TrimSpace(val)
	if val != "" && (f.Attribute == "href" || f.Attribute == "src") {
		val = resolveHref(base, val)
	}
	return val
}

// resolveHref resolves href against base, returning an absolute URL string.
// If href is invalid, it is returned unchanged.
func resolveHref(base *url.URL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
