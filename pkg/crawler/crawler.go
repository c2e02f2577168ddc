package crawler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	frontier "github.com/devraulu/sitecrawl/pkg"
	"github.com/devraulu/sitecrawl/pkg/fetch"
	"github.com/devraulu/sitecrawl/pkg/process"
)

type Options struct {
	ProxyPrefix string
	// CheckpointEvery saves the state each time the visited count reaches a
	// multiple of it, on top of the save after every fetched page.
	CheckpointEvery int
	Backoff         fetch.Backoff
	Gate            *fetch.Gate
}

// Crawler walks one site depth first and records what it finds in a
// frontier.CrawlState. It is single threaded.
type Crawler struct {
	fetcher fetch.Getter
	scope   *process.Scope
	store   Checkpointer
	opts    Options
	gate    *fetch.Gate
	Stats   CrawlStats
}

func New(fetcher fetch.Getter, scope *process.Scope, store Checkpointer, opts Options) *Crawler {
	if opts.CheckpointEvery < 1 {
		opts.CheckpointEvery = 10
	}
	if opts.Gate == nil {
		opts.Gate = &fetch.Gate{}
	}
	return &Crawler{
		fetcher: fetcher,
		scope:   scope,
		store:   store,
		opts:    opts,
		gate:    opts.Gate,
	}
}

// Start crawls a fresh state from rootURL at depth 1. The root itself is
// recorded as visited so its content is downloaded with the rest.
func (c *Crawler) Start(ctx context.Context, state *frontier.CrawlState, rootURL string) error {
	c.Stats.StartTime = time.Now()
	slog.Info("starting new crawl", slog.String("url", rootURL), slog.Int("max_depth", state.MaxDepth))

	if state.MarkVisited(rootURL, frontier.Transform(c.opts.ProxyPrefix, rootURL), 1) {
		c.Stats.Discovered++
	}

	err := c.Crawl(ctx, state, rootURL, 1)
	return c.finish(ctx, state, err)
}

// Resume crawls every visited but unprocessed URL again, in discovery
// order, at its recorded depth (or the path based estimate for old
// checkpoints).
func (c *Crawler) Resume(ctx context.Context, state *frontier.CrawlState) error {
	c.Stats.StartTime = time.Now()
	pending := state.Pending()
	slog.Info("resuming crawl",
		slog.Int("visited", state.VisitedLen()),
		slog.Int("processed", state.ProcessedLen()),
		slog.Int("pending", len(pending)),
	)

	var err error
	for _, u := range pending {
		if err = c.Crawl(ctx, state, u, state.ResumeDepth(u)); err != nil {
			break
		}
	}
	return c.finish(ctx, state, err)
}

// Crawl fetches u at depth and walks everything reachable from it. It does
// nothing when depth exceeds the state's max depth or u is processed.
// Failed fetches leave the URL visited but unprocessed.
func (c *Crawler) Crawl(ctx context.Context, state *frontier.CrawlState, u string, depth int) error {
	var stack []*frame

	f, err := c.visit(ctx, state, u, depth)
	if err != nil {
		return err
	}
	if f != nil {
		stack = append(stack, f)
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		top := stack[len(stack)-1]
		if top.next >= len(top.links) {
			stack = stack[:len(stack)-1]
			continue
		}

		href := top.links[top.next]
		top.next++

		link, ok := c.scope.AdmitAbsolute(href)
		if !ok || state.IsVisited(link) {
			continue
		}

		childDepth := top.depth + 1
		state.MarkVisited(link, frontier.Transform(c.opts.ProxyPrefix, link), childDepth)
		c.Stats.Discovered++
		slog.Debug("discovered", slog.Int("depth", top.depth), slog.String("url", link))

		if state.VisitedLen()%c.opts.CheckpointEvery == 0 {
			if err := c.save(ctx, state); err != nil {
				return err
			}
		}

		child, err := c.visit(ctx, state, link, childDepth)
		if err != nil {
			return err
		}
		if child != nil {
			stack = append(stack, child)
		}
	}

	return nil
}

// visit fetches one page and returns the frame of its links, or nil when
// the page is skipped or the fetch failed.
func (c *Crawler) visit(ctx context.Context, state *frontier.CrawlState, u string, depth int) (*frame, error) {
	if depth > state.MaxDepth || state.IsProcessed(u) {
		c.Stats.PagesSkipped++
		return nil, nil
	}

	if err := c.gate.Wait(ctx); err != nil {
		return nil, err
	}

	slog.Info("processing", slog.Int("depth", depth), slog.String("url", u))

	resp, err := c.fetcher.Fetch(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.fail(ctx, u, err)
	}

	links, err := process.ExtractLinks(bytes.NewReader(resp.Body), u)
	if err != nil {
		slog.Warn("failed to extract links", slog.String("url", u), slog.Any("err", err))
		links = nil
	}

	state.MarkProcessed(u)
	c.Stats.PagesProcessed++
	if err := c.save(ctx, state); err != nil {
		return nil, err
	}

	slog.Info("crawl success",
		slog.String("url", u),
		slog.Int("outlinks", len(links)),
		slog.Int("processed", c.Stats.PagesProcessed),
		slog.Float64("pages_per_sec", c.Stats.PagesPerSecond()),
	)

	return &frame{depth: depth, links: links}, nil
}

func (c *Crawler) fail(ctx context.Context, u string, err error) error {
	c.Stats.PagesErrored++
	wait := c.opts.Backoff.Delay(err)

	if fetch.IsRateLimited(err) {
		c.Stats.RateLimited++
		slog.Warn("rate limited, backing off", slog.String("url", u), slog.Duration("wait", wait))
		c.gate.Pause(wait)
		return nil
	}

	slog.Error("crawl failed", slog.String("url", u), slog.Any("err", err), slog.Duration("wait", wait))
	if err := fetch.Sleep(ctx, wait); err != nil {
		return err
	}
	return nil
}

// save is not cancelled with the crawl: a page that was fetched is always
// recorded.
func (c *Crawler) save(ctx context.Context, state *frontier.CrawlState) error {
	if err := c.store.SaveCrawl(context.WithoutCancel(ctx), state); err != nil {
		return fmt.Errorf("checkpoint crawl: %w", err)
	}
	c.Stats.Checkpoints++
	return nil
}

// finish flushes the state whatever happened, so a cancelled crawl keeps
// everything discovered up to the last fetched page.
func (c *Crawler) finish(ctx context.Context, state *frontier.CrawlState, err error) error {
	if saveErr := c.save(ctx, state); saveErr != nil && err == nil {
		err = saveErr
	}

	slog.Info("crawl complete",
		slog.Int("visited", state.VisitedLen()),
		slog.Int("processed", c.Stats.PagesProcessed),
		slog.Int("errored", c.Stats.PagesErrored),
		slog.Int("skipped", c.Stats.PagesSkipped),
		slog.Duration("elapsed", c.Stats.Elapsed()),
		slog.Float64("pages_per_sec", c.Stats.PagesPerSecond()),
	)
	return err
}
