package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// Response is a successful (2xx) fetch.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Getter is what the crawler and downloader need from a fetcher.
type Getter interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

type Options struct {
	UserAgent string
	Timeout   time.Duration
	DelayMin  time.Duration
	DelayMax  time.Duration
	// MaxBodyBytes caps the body read; 0 means 20MB.
	MaxBodyBytes int64
	// Gate, when set, is waited on after the politeness delay so a pause
	// that started during the delay still holds the request back.
	Gate *Gate
}

// Fetcher performs single GET requests with a random politeness delay
// before each one. It never retries; callers apply their own Backoff.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	delayMin     time.Duration
	delayMax     time.Duration
	maxBodyBytes int64
	gate         *Gate

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(n int64) int64
}

func New(client *http.Client, opts Options) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Timeout > 0 {
		c := *client
		c.Timeout = opts.Timeout
		client = &c
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 20 * 1024 * 1024
	}
	if opts.DelayMax < opts.DelayMin {
		opts.DelayMax = opts.DelayMin
	}

	return &Fetcher{
		client:       client,
		userAgent:    opts.UserAgent,
		delayMin:     opts.DelayMin,
		delayMax:     opts.DelayMax,
		maxBodyBytes: opts.MaxBodyBytes,
		gate:         opts.Gate,
		sleep:        Sleep,
		jitter:       rand.Int64N,
	}
}

// Client exposes the underlying HTTP client, e.g. for robots.txt lookups.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Delay draws the politeness delay uniformly from [DelayMin, DelayMax].
func (f *Fetcher) Delay() time.Duration {
	spread := int64(f.delayMax - f.delayMin)
	if spread <= 0 {
		return f.delayMin
	}
	return f.delayMin + time.Duration(f.jitter(spread+1))
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	if err := f.sleep(ctx, f.Delay()); err != nil {
		return nil, err
	}
	if f.gate != nil {
		if err := f.gate.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindConnection, URL: url, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransport(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, classifyStatus(url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, classifyTransport(url, err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, &FetchError{Kind: KindConnection, URL: url, Err: fmt.Errorf("response body exceeds limit of %d bytes", f.maxBodyBytes)}
	}

	slog.Debug("fetched",
		slog.String("url", url),
		slog.Int("status_code", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Duration("latency", time.Since(start)),
	)

	return &Response{URL: url, StatusCode: resp.StatusCode, Body: body}, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
