package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newQuietScraper builds a Scraper whose fetcher never sleeps, for loop
// tests that exercise several pages.
func newQuietScraper(t *testing.T, cfg FetcherConfig) *Scraper {
	t.Helper()
	f, err := NewFetcher(cfg)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	f.sleep = func(d time.Duration) {}
	return NewScraper(f)
}

const bookPage1 = `
	<article class="product"><h3><a href="/b/1">Alpha</a></h3><p class="price">£10.00</p></article>
	<article class="product"><h3><a href="/b/2">Beta</a></h3><p class="price">£20.00</p></article>
	<ul><li class="next"><a href="/page-2.html">next</a></li></ul>`

const bookPage2 = `
	<article class="product"><h3><a href="/b/3">Gamma</a></h3><p class="price">£30.00</p></article>
	<ul><li>no next</li></ul>`

// bookSite serves a small two-page catalogue with a next link on page one.
func bookSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/page-1.html":
			_, _ = fmt.Fprint(w, bookPage1)
		case "/page-2.html":
			_, _ = fmt.Fprint(w, bookPage2)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestScrape_NextLink runs the full loop against a two-page site: all
// records from both pages, cleaned values typed, StopExhausted at the end.
func TestScrape_NextLink(t *testing.T) {
	t.Parallel()

	srv := bookSite(t)
	s := newQuietScraper(t, FetcherConfig{})

	var pages []int
	s.OnPage = func(page, total int) { pages = append(pages, page) }

	res := s.Scrape(context.Background(), &Job{
		URL:       srv.URL + "/page-1.html",
		Selectors: bookSelectors,
		Cleaning: map[string][]string{
			"price": {OpRemoveCurrency, OpConvertToFloat},
		},
		Pagination: &Pagination{NextSelector: "li.next a"},
	})

	if !res.Completed() || res.Stop != StopExhausted {
		t.Fatalf("stop: got %q (err %v)", res.Stop, res.LastError)
	}
	if res.PagesFetched != 2 {
		t.Fatalf("pages: got %d", res.PagesFetched)
	}
	if len(res.Records) != 3 {
		t.Fatalf("records: got %d", len(res.Records))
	}
	if len(res.FieldErrors) != 0 {
		t.Fatalf("unexpected field errors: %v", res.FieldErrors)
	}

	// Page order then DOM order.
	titles := make([]string, 0, 3)
	for _, rec := range res.Records {
		titles = append(titles, rec["title"].(string))
	}
	want := []string{"Alpha", "Beta", "Gamma"}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("titles: got %v, want %v", titles, want)
		}
	}
	if res.Records[2]["price"] != 30.00 {
		t.Fatalf("price not converted: %#v", res.Records[2]["price"])
	}
	if res.Records[0]["link"] != srv.URL+"/b/1" {
		t.Fatalf("link not absolute: %#v", res.Records[0]["link"])
	}

	if len(pages) != 2 || pages[0] != 1 || pages[1] != 2 {
		t.Fatalf("progress pages: got %v", pages)
	}
}

// TestScrape_PartialOnFetchFailure verifies fail-partial: when page two
// keeps failing, page one's records are still returned, Stop is StopError,
// and LastError unwraps to *FetchFailedError.
func TestScrape_PartialOnFetchFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/page-1.html":
			_, _ = fmt.Fprint(w, bookPage1)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)

	s := newQuietScraper(t, FetcherConfig{MaxRetries: 1})

	res := s.Scrape(context.Background(), &Job{
		URL:        srv.URL + "/page-1.html",
		Selectors:  bookSelectors,
		Pagination: &Pagination{NextSelector: "li.next a"},
	})

	if res.Completed() || res.Stop != StopError {
		t.Fatalf("stop: got %q", res.Stop)
	}
	var ff *FetchFailedError
	if !errors.As(res.LastError, &ff) {
		t.Fatalf("expected *FetchFailedError, got %v", res.LastError)
	}
	if res.PagesFetched != 1 || len(res.Records) != 2 {
		t.Fatalf("partial result: pages=%d records=%d", res.PagesFetched, len(res.Records))
	}
}

// TestScrape_PageLimit verifies the limit caps url-pattern pagination even
// though the pattern variant never exhausts on its own.
func TestScrape_PageLimit(t *testing.T) {
	t.Parallel()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		hits++
		_, _ = fmt.Fprintf(w, `<article class="product"><h3><a>Item %d</a></h3></article>`, hits)
	}))
	t.Cleanup(srv.Close)

	s := newQuietScraper(t, FetcherConfig{})

	res := s.Scrape(context.Background(), &Job{
		URL:        srv.URL + "/",
		Selectors:  bookSelectors,
		Pagination: &Pagination{URLPattern: "page/{page}"},
		LimitPages: 3,
	})

	if res.Stop != StopPageLimit {
		t.Fatalf("stop: got %q", res.Stop)
	}
	if res.PagesFetched != 3 || len(res.Records) != 3 {
		t.Fatalf("pages=%d records=%d", res.PagesFetched, len(res.Records))
	}
}

// TestScrape_EmptyPageStops verifies the url-pattern stop heuristic: the
// first page with zero item matches ends the scrape.
func TestScrape_EmptyPageStops(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/page/1", "/page/2":
			_, _ = fmt.Fprint(w, `<article class="product"><h3><a>X</a></h3></article>`)
		default:
			_, _ = fmt.Fprint(w, `<div>no products</div>`)
		}
	}))
	t.Cleanup(srv.Close)

	s := newQuietScraper(t, FetcherConfig{})

	res := s.Scrape(context.Background(), &Job{
		URL:        srv.URL + "/",
		Selectors:  bookSelectors,
		Pagination: &Pagination{URLPattern: "page/{page}"},
	})

	if res.Stop != StopEmptyPage {
		t.Fatalf("stop: got %q", res.Stop)
	}
	if res.PagesFetched != 3 || len(res.Records) != 2 {
		t.Fatalf("pages=%d records=%d", res.PagesFetched, len(res.Records))
	}
}

// TestScrape_FieldErrorsCarryPage verifies cleaning failures are stamped
// with the page they came from and do not drop the record.
func TestScrape_FieldErrorsCarryPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprint(w, `<article class="product"><h3><a>Odd</a></h3><p class="price">N/A</p></article>`)
	}))
	t.Cleanup(srv.Close)

	s := newQuietScraper(t, FetcherConfig{})

	res := s.Scrape(context.Background(), &Job{
		URL:       srv.URL + "/",
		Selectors: bookSelectors,
		Cleaning:  map[string][]string{"price": {OpConvertToFloat}},
	})

	if res.Stop != StopExhausted {
		t.Fatalf("stop: got %q (err %v)", res.Stop, res.LastError)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records: got %d", len(res.Records))
	}
	if res.Records[0]["price"] != nil {
		t.Fatalf("expected nil sentinel, got %#v", res.Records[0]["price"])
	}
	if len(res.FieldErrors) != 1 {
		t.Fatalf("field errors: got %d", len(res.FieldErrors))
	}
	fe := res.FieldErrors[0]
	if fe.Page != 1 || fe.Field != "price" || fe.Raw != "N/A" {
		t.Fatalf("unexpected field error: %+v", fe)
	}
}
