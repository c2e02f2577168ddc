package process

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/benjaminestes/robots"
)

// RobotsChecker answers robots.txt questions for one user agent, fetching
// each robots.txt once. It is not safe for concurrent use; the crawl phase
// is single threaded.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	cache     map[string]*robots.Robots
}

func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		cache:     make(map[string]*robots.Robots),
	}
}

// Allowed reports whether url may be fetched. A missing or unreadable
// robots.txt allows everything.
func (c *RobotsChecker) Allowed(url string) bool {
	r := c.lookup(url)
	if r == nil {
		return true
	}
	return r.Test(c.userAgent, url)
}

func (c *RobotsChecker) lookup(url string) (found *robots.Robots) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("panic in robots.txt parsing, assuming allowed", slog.String("url", url), slog.Any("panic", r))
			found = nil
		}
	}()

	robotsURL, err := robots.Locate(url)
	if err != nil {
		return nil
	}

	if r, ok := c.cache[robotsURL]; ok {
		return r
	}

	r, err := c.get(robotsURL)
	if err != nil {
		slog.Warn("failed to fetch robots.txt", slog.String("url", robotsURL), slog.Any("err", err))
		c.cache[robotsURL] = nil
		return nil
	}

	c.cache[robotsURL] = r
	return r
}

func (c *RobotsChecker) get(url string) (*robots.Robots, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	slog.Debug("robots.txt response",
		slog.String("url", url),
		slog.Int("status_code", resp.StatusCode),
		slog.Int("body_length", len(body)),
		slog.String("body_preview", string(body[:min(len(body), 200)])),
	)

	return robots.From(resp.StatusCode, bytes.NewReader(body))
}
