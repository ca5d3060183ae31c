package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"webscraper/internal/metrics"
)

// StopReason says why a scrape stopped paginating.
type StopReason string

const (
	// StopExhausted: the paginator ran out of pages (next link absent, or a
	// single-page job finished).
	StopExhausted StopReason = "exhausted"
	// StopPageLimit: the configured page limit was reached.
	StopPageLimit StopReason = "page_limit"
	// StopEmptyPage: url-pattern pagination hit a page with zero items. This
	// is the documented stop heuristic for the variant that has no
	// document-derived continuation signal.
	StopEmptyPage StopReason = "empty_page"
	// StopError: a fetch or parse failure halted pagination. Records
	// collected before the failure are still returned.
	StopError StopReason = "error"
)

// Result is the outcome of one Scrape call. It is owned by that call alone;
// no state is shared across invocations.
//
// Records is ordered by page, then by DOM order within a page. Fields
// carries the column order (Records are maps and cannot). Callers must
// inspect Stop/LastError to distinguish a completed scrape from a partial
// one.
type Result struct {
	Fields       []string
	Records      []Record
	PagesFetched int
	Stop         StopReason
	LastError    error

	// FieldErrors are per-field cleaning failures; they never imply missing
	// records, only nil sentinel values inside them.
	FieldErrors []*FieldConversionError
}

// Completed reports whether the scrape ended without a page-level failure.
func (r *Result) Completed() bool { return r.Stop != StopError }

// ProgressFunc observes per-page progress: the 1-based page number just
// processed and the records accumulated so far. It is a side channel, not
// part of the returned data.
type ProgressFunc func(page, totalRecords int)

// Scraper drives the fetch → extract → clean → paginate loop.
type Scraper struct {
	fetcher *Fetcher

	// OnPage, when set, is invoked after each processed page.
	OnPage ProgressFunc
}

// NewScraper builds a Scraper around fetcher.
func NewScraper(fetcher *Fetcher) *Scraper {
	return &Scraper{fetcher: fetcher}
}

// Scrape runs job to completion and returns the accumulated result.
//
// Behavior:
//   - Pages are fetched strictly sequentially; the next-link variant needs
//     page N's document to find page N+1, and the blocking inter-request
//     delay is the rate limiter either way.
//   - A fetch or parse failure stops pagination but returns everything
//     collected so far (fail-partial, never fail-fast).
//   - Field-level cleaning failures are collected in Result.FieldErrors and
//     never cross the record boundary.
//
// The result is never nil.
func (s *Scraper) Scrape(ctx context.Context, job *Job) *Result {
	res := &Result{
		Fields: job.FieldNames(),
		Stop:   StopExhausted,
	}

	pag := NewPaginator(job.URL, job.Pagination)
	current := pag.First()

	for current != "" {
		if job.LimitPages > 0 && res.PagesFetched >= job.LimitPages {
			res.Stop = StopPageLimit
			break
		}

		start := time.Now()
		body, _, err := s.fetcher.Fetch(ctx, current)
		if err != nil {
			res.Stop = StopError
			res.LastError = err
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			res.Stop = StopError
			res.LastError = fmt.Errorf("parse page %s: %w", current, err)
			break
		}
		res.PagesFetched++

		base, _ := url.Parse(current)
		pageRecords := ExtractRecords(doc, job.Selectors, base)
		for _, rec := range pageRecords {
			for _, ce := range CleanRecord(rec, job.Cleaning) {
				ce.Page = res.PagesFetched
				res.FieldErrors = append(res.FieldErrors, ce)
			}
			res.Records = append(res.Records, rec)
		}

		metrics.RecordPage(len(pageRecords), time.Since(start))
		if s.OnPage != nil {
			s.OnPage(res.PagesFetched, len(res.Records))
		}

		// The url-pattern variant would loop forever on an unbounded site:
		// a page with zero items is its stop signal.
		if job.Pagination != nil && job.Pagination.URLPattern != "" && len(pageRecords) == 0 {
			res.Stop = StopEmptyPage
			break
		}

		next, ok := pag.Next(doc)
		if !ok {
			res.Stop = StopExhausted
			break
		}
		current = next
	}

	return res
}
