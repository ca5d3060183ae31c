// Command scrape runs a configured scrape job and exports the records.
//
// Usage (job file):
//
//	scrape -config job.json -o books -format csv
//
// Usage (built-in example job, books.toscrape.com):
//
//	scrape -o books
//
// Debug (print outer HTML blocks for a selector, for authoring jobs):
//
//	scrape -url "https://example.com/page" -selector "div.product"
//
// Debug (print text for selector matches):
//
//	scrape -url "https://example.com/page" -selector "h3 a" -text
//
// Records can additionally be persisted to a SQL backend with -store/-dsn.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"webscraper/internal/export"
	"webscraper/internal/metrics"
	"webscraper/internal/metrics/datadog"
	"webscraper/internal/scrape"
	"webscraper/internal/storage"

	_ "webscraper/internal/storage/mssql"
	_ "webscraper/internal/storage/postgres"
	_ "webscraper/internal/storage/sqlite"
)

// progressRecord is emitted as JSONL to stderr after each scraped page.
//
// This output is intended for machine parsing. Additive changes are safe;
// renames/removals are breaking changes for downstream log consumers.
type progressRecord struct {
	Timestamp string `json:"ts"`
	Page      int    `json:"page"`
	Records   int    `json:"records"`
}

// backendCloser is the minimal interface used by this command to manage a
// metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
	OpenStore      func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	Now            func() time.Time
}

// runConfig holds the parsed flags for a run.
type runConfig struct {
	ConfigPath string
	URL        string
	OutBase    string
	Format     string
	Table      string

	DebugSelector string
	DebugText     bool

	StoreKind string
	StoreDSN  string

	JobName      string
	Datadog      bool
	DDTagsCSV    string
	FlushEvery   time.Duration
	DebugTimeout time.Duration
}

// main is intentionally small: it wires real dependencies and exits with a
// code.
func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
		OpenStore: storage.New,
		Now:       time.Now,
	})
	os.Exit(code)
}

// run executes the scrape command and returns an exit code.
//
// Exit codes:
//   - 0: scrape completed (page limit or natural exhaustion).
//   - 1: scrape stopped early on an error; partial results were exported.
//   - 2: configuration/initialization error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.OpenStore == nil {
		d.OpenStore = storage.New
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	// Debug selector mode: fetch one page, print matches, done.
	if cfg.DebugSelector != "" {
		if err := debugSelector(ctx, cfg, d.Stdout); err != nil {
			fmt.Fprintf(d.Stderr, "debug selector: %v\n", err)
			return 1
		}
		return 0
	}

	job, err := loadJob(cfg)
	if err != nil {
		fmt.Fprintf(d.Stderr, "load job: %v\n", err)
		return 2
	}

	if cfg.Datadog {
		if d.BackendFactory == nil {
			fmt.Fprintln(d.Stderr, "internal error: BackendFactory is nil")
			return 2
		}
		tags := append(parseTagsCSV(cfg.DDTagsCSV), "tool:scrape")
		backend, err := d.BackendFactory(ctx, cfg.JobName, tags, cfg.FlushEvery)
		if err != nil {
			fmt.Fprintf(d.Stderr, "datadog backend init failed: %v\n", err)
			return 2
		}
		metrics.SetBackend(backend)
		defer func() {
			_ = metrics.Flush()
			_ = backend.Close()
			metrics.SetBackend(nil)
		}()
	}

	fetcher, err := scrape.NewFetcher(job.Fetcher)
	if err != nil {
		fmt.Fprintf(d.Stderr, "init fetcher: %v\n", err)
		return 2
	}

	scraper := scrape.NewScraper(fetcher)
	enc := json.NewEncoder(d.Stderr)
	scraper.OnPage = func(page, total int) {
		_ = enc.Encode(progressRecord{
			Timestamp: d.Now().UTC().Format(time.RFC3339),
			Page:      page,
			Records:   total,
		})
	}

	res := scraper.Scrape(ctx, job)

	if err := exportResult(cfg, d, job, res); err != nil {
		fmt.Fprintf(d.Stderr, "export: %v\n", err)
		return 1
	}

	if cfg.StoreKind != "" {
		if err := storeResult(ctx, cfg, d, res); err != nil {
			fmt.Fprintf(d.Stderr, "store: %v\n", err)
			return 1
		}
	}

	fmt.Fprintf(d.Stderr, "scraped %d records from %d pages (stop: %s)\n",
		len(res.Records), res.PagesFetched, res.Stop)
	for _, fe := range res.FieldErrors {
		fmt.Fprintf(d.Stderr, "warning: %v\n", fe)
	}

	if !res.Completed() {
		fmt.Fprintf(d.Stderr, "scrape stopped early: %v\n", res.LastError)
		return 1
	}
	return 0
}

// parseFlags parses command arguments into a validated runConfig.
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("scrape", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.ConfigPath, "config", "", "Path to job JSON file (omit for the built-in example job)")
	fs.StringVar(&cfg.URL, "url", "", "Override the job's target URL (required for -selector debug mode)")
	fs.StringVar(&cfg.OutBase, "o", "", "Output base path; records go to <base>.csv / <base>.json (default: derived from host and timestamp)")
	fs.StringVar(&cfg.Format, "format", "both", "Export format: csv, json, or both")
	fs.StringVar(&cfg.DebugSelector, "selector", "", "Debug: CSS selector to print matches for (no scrape)")
	fs.BoolVar(&cfg.DebugText, "text", false, "Debug: print text blocks for -selector matches instead of HTML")
	fs.DurationVar(&cfg.DebugTimeout, "timeout", 20*time.Second, "Timeout for the -selector debug fetch")
	fs.StringVar(&cfg.StoreKind, "store", "", "Optional storage backend kind: sqlite, postgres, or mssql")
	fs.StringVar(&cfg.StoreDSN, "dsn", "", "Storage DSN (required with -store)")
	fs.StringVar(&cfg.Table, "table", "records", "Storage table name")
	fs.StringVar(&cfg.JobName, "name", "default_scrape", "Logical job name used in metrics tags")
	fs.BoolVar(&cfg.Datadog, "dd", false, "Submit run metrics to Datadog")
	fs.StringVar(&cfg.DDTagsCSV, "dd_tags", "", "Extra Datadog tags CSV (e.g. env:prod,service:scraper)")
	fs.DurationVar(&cfg.FlushEvery, "metrics_flush", 1*time.Minute, "Datadog flush interval")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	switch cfg.Format {
	case "csv", "json", "both":
	default:
		return runConfig{}, fmt.Errorf("-format must be csv, json, or both")
	}
	if cfg.DebugSelector != "" && cfg.URL == "" {
		return runConfig{}, errors.New("-selector requires -url")
	}
	if cfg.StoreKind != "" && cfg.StoreDSN == "" {
		return runConfig{}, errors.New("-store requires -dsn")
	}

	return cfg, nil
}

// loadJob resolves the job configuration: a file when -config is given,
// otherwise the built-in example job. -url overrides the job's target.
func loadJob(cfg runConfig) (*scrape.Job, error) {
	var (
		job *scrape.Job
		err error
	)
	if cfg.ConfigPath != "" {
		job, err = scrape.LoadJobFile(cfg.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		job = exampleJob()
	}

	if cfg.URL != "" {
		job.URL = cfg.URL
		if err := job.Validate(); err != nil {
			return nil, err
		}
	}
	return job, nil
}

// exampleJob is the built-in configuration for books.toscrape.com, handy
// for trying the tool without writing a job file first.
func exampleJob() *scrape.Job {
	return &scrape.Job{
		URL: "https://books.toscrape.com/",
		Selectors: scrape.Selectors{
			Item: "article.product_pod",
			Fields: []scrape.FieldSelector{
				{Name: "title", Selector: "h3 a"},
				{Name: "price", Selector: "p.price_color"},
				{Name: "rating", Selector: "p.star-rating"},
				{Name: "link", Selector: "h3 a", Attribute: "href"},
			},
		},
		Cleaning: map[string][]string{
			"price":  {scrape.OpRemoveCurrency, scrape.OpConvertToFloat},
			"title":  {scrape.OpRemoveWhitespace},
			"rating": {scrape.OpRemoveWhitespace},
		},
		Pagination: &scrape.Pagination{NextSelector: "li.next a"},
		LimitPages: 2,
		Fetcher: scrape.FetcherConfig{
			DelayMin:   scrape.Duration(1 * time.Second),
			DelayMax:   scrape.Duration(2 * time.Second),
			Timeout:    scrape.Duration(10 * time.Second),
			MaxRetries: 2,
		},
	}
}

// exportResult writes the records to the requested formats.
func exportResult(cfg runConfig, d deps, job *scrape.Job, res *scrape.Result) error {
	base := cfg.OutBase
	if base == "" {
		base = defaultOutBase(job.URL, d.Now())
	}

	writeFile := func(path string, write func(w io.Writer) error) error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := write(f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(d.Stderr, "wrote %s\n", path)
		return nil
	}

	if cfg.Format == "csv" || cfg.Format == "both" {
		err := writeFile(base+".csv", func(w io.Writer) error {
			return export.WriteCSV(w, res.Fields, res.Records)
		})
		if err != nil {
			return err
		}
	}
	if cfg.Format == "json" || cfg.Format == "both" {
		err := writeFile(base+".json", func(w io.Writer) error {
			return export.WriteJSON(w, res.Fields, res.Records)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// storeResult persists the records into the configured SQL backend.
func storeResult(ctx context.Context, cfg runConfig, d deps, res *scrape.Result) error {
	repo, err := d.OpenStore(ctx, storage.Config{Kind: cfg.StoreKind, DSN: cfg.StoreDSN})
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.EnsureTable(ctx, cfg.Table, res.Fields); err != nil {
		return err
	}

	rows := make([][]any, len(res.Records))
	for i, rec := range res.Records {
		row := make([]any, len(res.Fields))
		for j, f := range res.Fields {
			row[j] = rec[f]
		}
		rows[i] = row
	}

	n, err := repo.InsertRecords(ctx, cfg.Table, res.Fields, rows)
	if err != nil {
		return err
	}
	fmt.Fprintf(d.Stderr, "stored %d rows in %s (%s)\n", n, cfg.Table, cfg.StoreKind)
	return nil
}

// debugSelector fetches one page and prints selector matches, for
// interactive authoring of job files.
func debugSelector(ctx context.Context, cfg runConfig, stdout io.Writer) error {
	fetcher, err := scrape.NewFetcher(scrape.FetcherConfig{
		Timeout: scrape.Duration(cfg.DebugTimeout),
	})
	if err != nil {
		return err
	}

	body, _, err := fetcher.Fetch(ctx, cfg.URL)
	if err != nil {
		return err
	}
	return scrape.DebugPrintSelector(stdout, string(body), cfg.DebugSelector, cfg.DebugText)
}

// defaultOutBase mirrors the classic "<host>_data_<timestamp>" naming.
func defaultOutBase(rawURL string, now time.Time) string {
	host := "scrape"
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = strings.ReplaceAll(u.Host, ".", "_")
	}
	return fmt.Sprintf("%s_data_%s", host, now.Format("20060102_150405"))
}

// parseTagsCSV splits a comma-separated tag list, dropping empties.
func parseTagsCSV(csv string) []string {
	var out []string
	for _, t := range strings.Split(csv, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
