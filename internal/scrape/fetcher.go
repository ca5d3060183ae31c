package scrape

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"webscraper/internal/metrics"
)

// DefaultUserAgent identifies this scraper to target sites and in
// robots.txt matching when the job does not configure its own.
const DefaultUserAgent = "webscraper/1.0"

// Fetcher issues HTTP GET requests with a per-request timeout, bounded
// retries, a randomized inter-request delay, and a per-host robots.txt
// compliance check. It knows nothing about page semantics.
//
// The inter-request delay is a deliberate blocking pause: it is the
// backpressure mechanism that bounds the request rate against a host. The
// delay is drawn uniformly from [DelayMin, DelayMax] before every attempt
// except the very first request of the session.
type Fetcher struct {
	cfg    FetcherConfig
	client *http.Client
	robots *robotsCache

	rng   *rand.Rand
	sleep func(d time.Duration)

	started bool
}

// NewFetcher constructs a Fetcher from cfg.
//
// Edge cases:
//   - An empty UserAgent falls back to DefaultUserAgent; an empty
//     identification header is rude to target sites.
//   - An invalid Proxy URL is an error; a misconfigured proxy silently
//     bypassed would leak the caller's address.
//   - Timeout <= 0 disables the per-request timeout.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Timeout:   time.Duration(cfg.Timeout),
		Transport: transport,
	}

	return &Fetcher{
		cfg:    cfg,
		client: client,
		robots: newRobotsCache(client, cfg.UserAgent),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  time.Sleep,
	}, nil
}

// Fetch retrieves rawURL and returns its body decoded to UTF-8 along with
// the final HTTP status code.
//
// Behavior:
//   - The host's robots.txt is consulted (fetched once per host, cached for
//     the session) before any request; a blocked path returns
//     *DisallowedByRobotsError without network I/O to the target.
//   - On a transport error or non-2xx status the request is retried up to
//     cfg.MaxRetries times, each retry preceded by a fresh random delay.
//   - Exhausting all attempts returns *FetchFailedError carrying the last
//     status or error.
//
// The returned status is 0 when no response was ever received.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, int, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	if !f.robots.Allowed(ctx, target) {
		return nil, 0, &DisallowedByRobotsError{URL: rawURL}
	}

	var (
		lastStatus int
		lastErr    error
	)

	attempts := 1 + f.cfg.MaxRetries
	for attempt := 1; attempt <= attempts; attempt++ {
		if f.started {
			f.sleep(f.randomDelay())
		}
		f.started = true

		start := time.Now()
		body, status, err := f.do(ctx, rawURL)
		metrics.RecordHTTP(status, err, time.Since(start), int64(len(body)))

		if err == nil && status >= 200 && status < 300 {
			return body, status, nil
		}
		lastStatus, lastErr = status, err

		if ctx.Err() != nil {
			break
		}
	}

	return nil, lastStatus, &FetchFailedError{URL: rawURL, Status: lastStatus, Err: lastErr}
}

// do performs a single GET attempt.
func (f *Fetcher) do(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused across retries.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	br := bufio.NewReader(resp.Body)
	body, err := io.ReadAll(transform.NewReader(br, detectEncoding(br).NewDecoder()))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// randomDelay draws a delay uniformly from [DelayMin, DelayMax].
func (f *Fetcher) randomDelay() time.Duration {
	min := time.Duration(f.cfg.DelayMin)
	max := time.Duration(f.cfg.DelayMax)
	if max <= min {
		return min
	}
	return min + time.Duration(f.rng.Int63n(int64(max-min)+1))
}

// detectEncoding sniffs the response charset from the first bytes of the
// body, defaulting to UTF-8 when there is not enough data to decide.
func detectEncoding(r *bufio.Reader) encoding.Encoding {
	head, err := r.Peek(1024)
	if err != nil && len(head) == 0 {
		return unicode.UTF8
	}
	e, _, _ := charset.DetermineEncoding(head, "")
	return e
}
