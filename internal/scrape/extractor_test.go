package scrape

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

var bookSelectors = Selectors{
	Item: "article.product",
	Fields: []FieldSelector{
		{Name: "title", Selector: "h3 a"},
		{Name: "price", Selector: "p.price"},
		{Name: "link", Selector: "h3 a", Attribute: "href"},
	},
}

// TestExtractRecords verifies one record per item container, each carrying
// every configured field key.
//
// This is the core extraction contract: N item matches produce exactly N
// records, and a record never omits a field (empty string for misses).
func TestExtractRecords(t *testing.T) {
	t.Parallel()

	html := `
		<article class="product">
			<h3><a href="/b/1">First</a></h3>
			<p class="price">£10.00</p>
		</article>
		<article class="product">
			<h3><a href="/b/2">Second</a></h3>
		</article>
	`
	base, _ := url.Parse("https://example.com/catalogue/")

	recs := ExtractRecords(mustDoc(t, html), bookSelectors, base)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}

	for i, rec := range recs {
		for _, f := range bookSelectors.Fields {
			if _, ok := rec[f.Name]; !ok {
				t.Fatalf("record %d missing field %q: %#v", i, f.Name, rec)
			}
		}
	}

	if recs[0]["title"] != "First" || recs[0]["price"] != "£10.00" {
		t.Fatalf("unexpected first record: %#v", recs[0])
	}
	// The second item has no price node: empty string, not a missing key.
	if recs[1]["price"] != "" {
		t.Fatalf("expected empty price, got %#v", recs[1]["price"])
	}
}

// TestExtractRecords_AbsoluteLinks verifies href attributes resolve against
// the page URL. Relative links are useless once detached from their page.
func TestExtractRecords_AbsoluteLinks(t *testing.T) {
	t.Parallel()

	html := `<article class="product"><h3><a href="../b/9">X</a></h3></article>`
	base, _ := url.Parse("https://example.com/catalogue/page-2.html")

	recs := ExtractRecords(mustDoc(t, html), bookSelectors, base)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0]["link"] != "https://example.com/b/9" {
		t.Fatalf("unexpected link: %#v", recs[0]["link"])
	}
}

// TestExtractRecords_EmptyPage verifies zero item matches is not an error.
// Empty pages are valid; the last page of a listing often has none.
func TestExtractRecords_EmptyPage(t *testing.T) {
	t.Parallel()

	recs := ExtractRecords(mustDoc(t, `<div>nothing here</div>`), bookSelectors, nil)
	if len(recs) != 0 {
		t.Fatalf("expected no records, got %d", len(recs))
	}
}

// TestExtractRecords_MissingAttribute verifies a matched node without the
// requested attribute yields an empty string.
func TestExtractRecords_MissingAttribute(t *testing.T) {
	t.Parallel()

	html := `<article class="product"><h3><a>no href</a></h3></article>`
	recs := ExtractRecords(mustDoc(t, html), bookSelectors, nil)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0]["link"] != "" {
		t.Fatalf("expected empty link, got %#v", recs[0]["link"])
	}
}
