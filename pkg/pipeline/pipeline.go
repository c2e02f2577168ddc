package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	frontier "github.com/devraulu/sitecrawl/pkg"
	"github.com/devraulu/sitecrawl/pkg/checkpoint"
	"github.com/devraulu/sitecrawl/pkg/config"
	"github.com/devraulu/sitecrawl/pkg/crawler"
	"github.com/devraulu/sitecrawl/pkg/downloader"
	"github.com/devraulu/sitecrawl/pkg/fetch"
	"github.com/devraulu/sitecrawl/pkg/process"
)

// Result summarizes a run.
type Result struct {
	Resumed        bool
	ConfigMismatch bool

	Visited     int
	Transformed int
	Processed   int
	Pending     int
	Downloaded  int

	Crawl    crawler.CrawlStats
	Download downloader.Stats
}

// Pipeline drives the crawl and download phases for one configured site.
type Pipeline struct {
	cfg    *config.Config
	store  *checkpoint.Store
	root   string
	domain string

	crawlFetcher    fetch.Getter
	downloadFetcher fetch.Getter
	crawlGate       *fetch.Gate
	downloadGate    *fetch.Gate
	robots          *process.RobotsChecker
}

type Option func(*Pipeline)

// WithFetchers replaces the HTTP fetchers of both phases.
func WithFetchers(crawl, download fetch.Getter) Option {
	return func(p *Pipeline) {
		p.crawlFetcher = crawl
		p.downloadFetcher = download
	}
}

// Open builds a pipeline with the checkpoint backend named in cfg.
func Open(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := checkpoint.OpenBackend(cfg.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint backend: %w", err)
	}
	p, err := New(cfg, backend, opts...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return p, nil
}

func New(cfg *config.Config, backend checkpoint.Backend, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	root, err := process.Normalize(cfg.Target.RootURL)
	if err != nil {
		return nil, fmt.Errorf("normalize root url: %w", err)
	}
	domain, err := process.BaseDomain(root)
	if err != nil {
		return nil, err
	}

	crawlGate, downloadGate := &fetch.Gate{}, &fetch.Gate{}
	crawlFetcher := fetch.New(nil, fetchOptions(cfg.Crawler.PhaseConfig, crawlGate))
	p := &Pipeline{
		cfg:             cfg,
		store:           checkpoint.NewStore(backend, domain, cfg.Target.ProxyPrefix),
		root:            root,
		domain:          domain,
		crawlFetcher:    crawlFetcher,
		downloadFetcher: fetch.New(nil, fetchOptions(cfg.Downloader.PhaseConfig, downloadGate)),
		crawlGate:       crawlGate,
		downloadGate:    downloadGate,
	}
	if cfg.Crawler.RespectRobots {
		p.robots = process.NewRobotsChecker(crawlFetcher.Client(), cfg.Crawler.UserAgent)
	}

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func fetchOptions(phase config.PhaseConfig, gate *fetch.Gate) fetch.Options {
	return fetch.Options{
		UserAgent: phase.UserAgent,
		Timeout:   phase.GetTimeout(),
		DelayMin:  phase.GetDelayMin(),
		DelayMax:  phase.GetDelayMax(),
		Gate:      gate,
	}
}

func backoff(phase config.PhaseConfig) fetch.Backoff {
	return fetch.Backoff{
		RateLimited: phase.GetRateLimitBackoff(),
		Failure:     phase.GetFailureBackoff(),
	}
}

func (p *Pipeline) Close() error {
	return p.store.Close()
}

// Domain is the crawl's base domain.
func (p *Pipeline) Domain() string {
	return p.domain
}

// ListingPath is where the downloader records the discovered links.
func (p *Pipeline) ListingPath() string {
	return filepath.Join(p.cfg.Checkpoint.Dir, "linksJina_"+process.DomainSlug(p.domain)+".txt")
}

// Run loads the checkpoints, starts or resumes the crawl and downloads
// every discovered link.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	state, err := p.crawl(ctx, res)
	if err != nil {
		return res, err
	}

	slog.Info("crawl totals",
		slog.Int("links", state.VisitedLen()),
		slog.Int("transformed_links", state.LinksLen()),
	)

	if err := p.download(ctx, state.Links(), res); err != nil {
		return res, err
	}

	slog.Info("pipeline complete",
		slog.Int("visited", res.Visited),
		slog.Int("processed", res.Processed),
		slog.Int("pending", res.Pending),
		slog.Int("downloaded", res.Downloaded),
	)
	return res, nil
}

// Crawl runs only the crawl phase.
func (p *Pipeline) Crawl(ctx context.Context) (*Result, error) {
	res := &Result{}
	_, err := p.crawl(ctx, res)
	return res, err
}

// Download runs only the download phase over the saved crawl state, or
// over the link listing when no crawl checkpoint exists.
func (p *Pipeline) Download(ctx context.Context) (*Result, error) {
	res := &Result{}

	var links []string
	state, err := p.store.LoadCrawl(ctx, p.cfg.Target.RootURL, p.cfg.Target.MaxDepth)
	switch {
	case err == nil:
		p.fill(res, state)
		links = state.Links()
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
		links, err = frontier.LoadListing(p.ListingPath())
		if err != nil {
			return res, fmt.Errorf("no crawl checkpoint and no usable link listing: %w", err)
		}
		res.Transformed = len(links)
	default:
		return res, err
	}

	return res, p.download(ctx, links, res)
}

func (p *Pipeline) crawl(ctx context.Context, res *Result) (*frontier.CrawlState, error) {
	state, err := p.loadCrawlState(ctx, res)
	if err != nil {
		return nil, err
	}

	scope := &process.Scope{BaseDomain: p.domain, Robots: p.robots}
	c := crawler.New(p.crawlFetcher, scope, p.store, crawler.Options{
		ProxyPrefix:     p.cfg.Target.ProxyPrefix,
		CheckpointEvery: p.cfg.Crawler.CheckpointEvery,
		Backoff:         backoff(p.cfg.Crawler.PhaseConfig),
		Gate:            p.crawlGate,
	})

	if state.Empty() {
		err = c.Start(ctx, state, p.root)
	} else {
		res.Resumed = true
		err = c.Resume(ctx, state)
	}

	res.Crawl = c.Stats
	p.fill(res, state)
	return state, err
}

// loadCrawlState returns the checkpointed state, or a fresh one when there
// is none or it belongs to another configuration. Corrupt checkpoints and
// I/O errors are returned.
func (p *Pipeline) loadCrawlState(ctx context.Context, res *Result) (*frontier.CrawlState, error) {
	rootURL, maxDepth := p.cfg.Target.RootURL, p.cfg.Target.MaxDepth

	state, err := p.store.LoadCrawl(ctx, rootURL, maxDepth)
	switch {
	case err == nil:
		return state, nil
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
		return frontier.NewCrawlState(rootURL, maxDepth), nil
	case errors.Is(err, checkpoint.ErrConfigMismatch):
		slog.Warn("configuration changed, starting a new crawl", slog.String("url", rootURL), slog.Any("err", err))
		res.ConfigMismatch = true
		if err := p.discardDownloads(ctx); err != nil {
			return nil, err
		}
		return frontier.NewCrawlState(rootURL, maxDepth), nil
	default:
		return nil, fmt.Errorf("load crawl checkpoint: %w", err)
	}
}

// discardDownloads forgets download progress made for a previous crawl
// configuration. Content files and the link listing are indexed by that
// crawl's link order, so both are moved aside rather than reused.
func (p *Pipeline) discardDownloads(ctx context.Context) error {
	if err := p.store.SaveDownload(ctx, frontier.NewDownloadState()); err != nil {
		return err
	}

	suffix := fmt.Sprintf("-stale-%d", time.Now().Unix())

	dir := p.cfg.Downloader.ResponsesDir
	entries, err := os.ReadDir(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	case len(entries) > 0:
		if err := moveAside(dir, filepath.Clean(dir)+suffix); err != nil {
			return fmt.Errorf("move stale responses: %w", err)
		}
	}

	listing := p.ListingPath()
	if _, err := os.Stat(listing); err == nil {
		if err := moveAside(listing, listing+suffix); err != nil {
			return fmt.Errorf("move stale link listing: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func moveAside(from, to string) error {
	if err := os.Rename(from, to); err != nil {
		return err
	}
	slog.Warn("moved output of previous crawl", slog.String("from", from), slog.String("to", to))
	return nil
}

func (p *Pipeline) download(ctx context.Context, links []string, res *Result) error {
	state, err := p.store.LoadDownloadOrEmpty(ctx)
	if err != nil {
		return fmt.Errorf("load download checkpoint: %w", err)
	}

	d := downloader.New(p.downloadFetcher, p.store, downloader.Options{
		ResponsesDir: p.cfg.Downloader.ResponsesDir,
		ListingPath:  p.ListingPath(),
		FlushEvery:   p.cfg.Downloader.FlushEvery,
		Workers:      p.cfg.Downloader.Workers,
		Backoff:      backoff(p.cfg.Downloader.PhaseConfig),
		Gate:         p.downloadGate,
	})

	err = d.Run(ctx, links, state)
	res.Download = d.Stats()
	res.Downloaded = state.Len()
	return err
}

func (p *Pipeline) fill(res *Result, state *frontier.CrawlState) {
	res.Visited = state.VisitedLen()
	res.Transformed = state.LinksLen()
	res.Processed = state.ProcessedLen()
	res.Pending = len(state.Pending())
}
