package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// robotsCache fetches and caches per-host robots.txt rules for the duration
// of one scrape session.
//
// Behavior:
//   - robots.txt is fetched at most once per host; the parsed ruleset (or
//     the decision to allow everything) is cached.
//   - An unreachable or unparseable robots.txt allows all paths. Sites
//     without robots.txt should not be treated as off-limits.
//
// Concurrency:
//   - Safe for concurrent use. The fetch-and-cache step is serialized so a
//     host's robots.txt is requested exactly once even with multiple callers.
type robotsCache struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

func newRobotsCache(client *http.Client, userAgent string) *robotsCache {
	return &robotsCache{
		client:    client,
		userAgent: userAgent,
		hosts:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether target may be fetched for the cache's user-agent.
//
// A nil ruleset in the cache means "allow everything" for that host.
func (rc *robotsCache) Allowed(ctx context.Context, target *url.URL) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	host := target.Scheme + "://" + target.Host
	data, ok := rc.hosts[host]
	if !ok {
		data = rc.fetch(ctx, host)
		rc.hosts[host] = data
	}

	if data == nil {
		return true
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return data.TestAgent(path, rc.userAgent)
}

// fetch retrieves and parses host's robots.txt. It returns nil (allow all)
// on any transport, status, or parse failure.
func (rc *robotsCache) fetch(ctx context.Context, host string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/robots.txt", host), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data
}
