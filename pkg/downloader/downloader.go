package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	frontier "github.com/devraulu/sitecrawl/pkg"
	"github.com/devraulu/sitecrawl/pkg/checkpoint"
	"github.com/devraulu/sitecrawl/pkg/fetch"
)

// Saver persists download snapshots. A failing save stops the run.
type Saver interface {
	SaveDownload(ctx context.Context, state *frontier.DownloadState) error
}

type Options struct {
	ResponsesDir string
	// ListingPath, when set, receives the full link list once.
	ListingPath string
	FlushEvery  int
	Workers     int
	Backoff     fetch.Backoff
	// Gate is the phase-wide pause; pass the same gate to the Fetcher so
	// requests already past their delay honor it too.
	Gate *fetch.Gate
}

type Stats struct {
	StartTime   time.Time
	Total       int
	Downloaded  int
	Skipped     int
	Recovered   int
	Errored     int
	RateLimited int
}

func (s Stats) Elapsed() time.Duration {
	return time.Since(s.StartTime)
}

type job struct {
	index int
	link  string
}

type Downloader struct {
	fetcher fetch.Getter
	store   Saver
	opts    Options
	gate    *fetch.Gate

	mu         sync.Mutex
	sinceFlush int
	stats      Stats
}

func New(fetcher fetch.Getter, store Saver, opts Options) *Downloader {
	if opts.FlushEvery < 1 {
		opts.FlushEvery = 5
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ResponsesDir == "" {
		opts.ResponsesDir = "responses"
	}
	if opts.Gate == nil {
		opts.Gate = &fetch.Gate{}
	}
	return &Downloader{
		fetcher: fetcher,
		store:   store,
		opts:    opts,
		gate:    opts.Gate,
	}
}

// FileName is the content file for the link at index.
func FileName(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("response%d.md", index))
}

// Stats returns a copy of the counters of the last Run.
func (d *Downloader) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Run downloads every link not yet complete. links must be in index
// order; the slice is the snapshot this run works on. The state is flushed
// before Run returns, also on cancellation.
func (d *Downloader) Run(ctx context.Context, links []string, state *frontier.DownloadState) error {
	d.mu.Lock()
	d.stats = Stats{StartTime: time.Now(), Total: len(links)}
	d.sinceFlush = 0
	d.mu.Unlock()

	if err := os.MkdirAll(d.opts.ResponsesDir, 0o755); err != nil {
		return fmt.Errorf("create responses dir: %w", err)
	}

	if d.opts.ListingPath != "" {
		if _, err := frontier.WriteListing(d.opts.ListingPath, links); err != nil {
			slog.Warn("failed to write link listing", slog.String("path", d.opts.ListingPath), slog.Any("err", err))
		}
	}

	slog.Info("starting download",
		slog.Int("links", len(links)),
		slog.Int("already_processed", state.Len()),
		slog.Int("workers", d.opts.Workers),
	)

	var err error
	if d.opts.Workers == 1 {
		err = d.runSequential(ctx, links, state)
	} else {
		err = d.runParallel(ctx, links, state)
	}

	return d.finish(ctx, state, err)
}

func (d *Downloader) runSequential(ctx context.Context, links []string, state *frontier.DownloadState) error {
	for i, link := range links {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.process(ctx, job{index: i, link: link}, state); err != nil {
			return err
		}
	}
	return nil
}

// runParallel hands jobs to a bounded errgroup. Indices are fixed by the
// links slice before dispatch, so workers never compete for a filename.
func (d *Downloader) runParallel(ctx context.Context, links []string, state *frontier.DownloadState) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)

	for i, link := range links {
		if gctx.Err() != nil {
			break
		}
		j := job{index: i, link: link}
		g.Go(func() error {
			return d.process(gctx, j, state)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// process handles one link. It only returns errors that must stop the
// run: cancellation and local I/O failures.
func (d *Downloader) process(ctx context.Context, j job, state *frontier.DownloadState) error {
	if state.Has(j.link) {
		d.count(func(s *Stats) { s.Skipped++ })
		return nil
	}

	path := FileName(d.opts.ResponsesDir, j.index)
	if _, err := os.Stat(path); err == nil {
		slog.Debug("content file present, marking processed", slog.String("link", j.link), slog.String("path", path))
		state.Add(j.link)
		d.count(func(s *Stats) { s.Recovered++ })
		return d.changed(ctx, state)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := d.gate.Wait(ctx); err != nil {
		return err
	}

	slog.Info("downloading", slog.Int("index", j.index+1), slog.Int("total", d.Stats().Total), slog.String("link", j.link))

	resp, err := d.fetcher.Fetch(ctx, j.link)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return d.fail(ctx, j, err)
	}

	if err := checkpoint.WriteFileAtomic(path, resp.Body); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	state.Add(j.link)
	d.count(func(s *Stats) { s.Downloaded++ })
	return d.changed(ctx, state)
}

func (d *Downloader) fail(ctx context.Context, j job, err error) error {
	wait := d.opts.Backoff.Delay(err)

	if fetch.IsRateLimited(err) {
		d.count(func(s *Stats) {
			s.Errored++
			s.RateLimited++
		})
		slog.Warn("rate limited, pausing downloads", slog.String("link", j.link), slog.Duration("wait", wait))
		d.gate.Pause(wait)
		return nil
	}

	d.count(func(s *Stats) { s.Errored++ })
	slog.Error("download failed", slog.String("link", j.link), slog.Any("err", err), slog.Duration("wait", wait))
	return fetch.Sleep(ctx, wait)
}

func (d *Downloader) count(update func(*Stats)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	update(&d.stats)
}

// changed records one more completed link and flushes every FlushEvery.
func (d *Downloader) changed(ctx context.Context, state *frontier.DownloadState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sinceFlush++
	if d.sinceFlush < d.opts.FlushEvery {
		return nil
	}
	d.sinceFlush = 0
	return d.save(ctx, state)
}

// save must be called with d.mu held.
func (d *Downloader) save(ctx context.Context, state *frontier.DownloadState) error {
	if err := d.store.SaveDownload(context.WithoutCancel(ctx), state); err != nil {
		return fmt.Errorf("checkpoint downloads: %w", err)
	}
	return nil
}

func (d *Downloader) finish(ctx context.Context, state *frontier.DownloadState, err error) error {
	d.mu.Lock()
	saveErr := d.save(ctx, state)
	stats := d.stats
	d.mu.Unlock()

	if saveErr != nil && err == nil {
		err = saveErr
	}

	slog.Info("download complete",
		slog.Int("total", stats.Total),
		slog.Int("downloaded", stats.Downloaded),
		slog.Int("skipped", stats.Skipped),
		slog.Int("recovered", stats.Recovered),
		slog.Int("errored", stats.Errored),
		slog.Duration("elapsed", stats.Elapsed()),
	)
	return err
}
