package scrape

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PaginatorState is the paginator's position in its lifecycle.
type PaginatorState int

const (
	// StateStart means only the seed URL has been produced.
	StateStart PaginatorState = iota
	// StateHasNext means the last observed page produced a follow-up URL.
	StateHasNext
	// StateExhausted is terminal: no further URLs will be produced.
	StateExhausted
)

// Paginator produces the sequence of page URLs for one scrape.
//
// Two strategies exist:
//   - next-link: after each fetched page, the configured selector is looked
//     up in that page's document; its href (resolved absolute) is the next
//     URL, and a missing match exhausts the paginator.
//   - url-pattern: a page index starting at Start is substituted into the
//     template and incremented by Step per page. This variant has no
//     document-derived stopping condition; it relies on the orchestrator's
//     page limit (which always takes precedence) or its empty-page stop.
//
// A nil pagination spec produces exactly the seed URL.
type Paginator struct {
	spec  *Pagination
	state PaginatorState

	seed  *url.URL
	index int
	step  int
}

// NewPaginator builds a Paginator over seedURL. seedURL must have passed
// Job.Validate; an unparseable seed degrades to nil-base resolution.
func NewPaginator(seedURL string, spec *Pagination) *Paginator {
	base, err := url.Parse(seedURL)
	if err != nil {
		base = nil
	}

	p := &Paginator{spec: spec, state: StateStart, seed: base}
	if spec != nil && spec.URLPattern != "" {
		p.index = spec.Start
		if p.index == 0 {
			p.index = 1
		}
		p.step = spec.Step
		if p.step == 0 {
			p.step = 1
		}
	}
	return p
}

// First returns the URL of the first page.
//
// For the url-pattern variant this is the template formatted with the start
// index (resolved against the seed when relative); otherwise it is the seed
// URL itself.
func (p *Paginator) First() string {
	if p.spec != nil && p.spec.URLPattern != "" {
		return p.formatPattern(p.index)
	}
	if p.seed == nil {
		return ""
	}
	return p.seed.String()
}

// Next advances the paginator after a page has been fetched and returns the
// next URL to visit. doc is the just-fetched page's parsed document; it is
// only consulted by the next-link variant and may be nil for url-pattern
// pagination.
//
// Once Next returns false the paginator is exhausted and stays exhausted.
func (p *Paginator) Next(doc *goquery.Document) (string, bool) {
	if p.state == StateExhausted {
		return "", false
	}
	if p.spec == nil {
		p.state = StateExhausted
		return "", false
	}

	if p.spec.URLPattern != "" {
		p.index += p.step
		p.state = StateHasNext
		return p.formatPattern(p.index), true
	}

	next := p.findNextLink(doc)
	if next == "" {
		p.state = StateExhausted
		return "", false
	}
	p.state = StateHasNext
	return next, true
}

// State reports the paginator's current lifecycle state.
func (p *Paginator) State() PaginatorState { return p.state }

// findNextLink locates the next-page anchor in doc and resolves its URL.
func (p *Paginator) findNextLink(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	m := doc.Find(p.spec.NextSelector).First()
	if m.Length() == 0 {
		return ""
	}
	href, ok := m.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	return resolveHref(p.seed, strings.TrimSpace(href))
}

// formatPattern substitutes idx into the URL template and resolves the
// result against the seed URL.
func (p *Paginator) formatPattern(idx int) string {
	formatted := strings.ReplaceAll(p.spec.URLPattern, PagePlaceholder, strconv.Itoa(idx))
	return resolveHref(p.seed, formatted)
}
