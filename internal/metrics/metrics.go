// Package metrics is a minimal facade between the scraping engine and a
// metrics backend.
//
// Design goals (intentionally opinionated):
//   - The engine depends only on this package, never on a vendor SDK.
//   - The default backend is a no-op, so library users pay nothing unless a
//     backend is installed.
//   - Backends buffer; Flush is explicit so short-lived commands can drain
//     before exit.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are free-form metric dimensions (e.g. {"status": "200"}).
type Labels map[string]string

// Backend receives raw metric observations.
//
// Implementations must be safe for concurrent use. Unknown metric names may
// be ignored.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is optionally implemented by backends that buffer.
type Flusher interface {
	Flush() error
}

// Metric names emitted by the engine.
const (
	MetricHTTPRequests = "scrape_http_requests_total"
	MetricHTTPErrors   = "scrape_http_errors_total"
	MetricHTTPDuration = "scrape_http_request_duration_seconds"
	MetricHTTPDownload = "scrape_http_download_bytes"
	MetricPages        = "scrape_pages_total"
	MetricRecords      = "scrape_records_total"
	MetricPageDuration = "scrape_page_duration_seconds"
)

type noopBackend struct{}

func (noopBackend) IncCounter(string, float64, Labels)       {}
func (noopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = noopBackend{}
)

// SetBackend installs b as the process-wide backend. Passing nil restores
// the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = noopBackend{}
		return
	}
	backend = b
}

// Flush drains the installed backend if it buffers; otherwise it is a no-op.
func Flush() error {
	mu.RLock()
	b := backend
	mu.RUnlock()

	if f, ok := b.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// RecordHTTP records one fetch attempt: its status (0 when no response was
// received), transport error if any, wall duration, and downloaded bytes.
func RecordHTTP(status int, err error, dur time.Duration, bytes int64) {
	b := current()
	labels := Labels{"status": statusLabel(status)}

	b.IncCounter(MetricHTTPRequests, 1, labels)
	if err != nil || status < 200 || status >= 300 {
		b.IncCounter(MetricHTTPErrors, 1, labels)
	}
	b.ObserveHistogram(MetricHTTPDuration, dur.Seconds(), labels)
	if bytes >= 0 {
		b.ObserveHistogram(MetricHTTPDownload, float64(bytes), labels)
	}
}

// RecordPage records one processed page and the records it yielded.
func RecordPage(records int, dur time.Duration) {
	b := current()
	b.IncCounter(MetricPages, 1, nil)
	b.IncCounter(MetricRecords, float64(records), nil)
	b.ObserveHistogram(MetricPageDuration, dur.Seconds(), nil)
}

func statusLabel(status int) string {
	if status == 0 {
		return "network_error"
	}
	return strconv.Itoa(status)
}
