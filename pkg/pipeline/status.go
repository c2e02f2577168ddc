package pipeline

import (
	"context"
	"errors"
	"os"

	"github.com/devraulu/sitecrawl/pkg/checkpoint"
	"github.com/devraulu/sitecrawl/pkg/downloader"
)

// Status describes the saved progress without touching the network.
type Status struct {
	Domain      string
	CrawlKey    string
	DownloadKey string

	// HasCrawl is false when there is no usable crawl checkpoint;
	// Mismatch then holds the reason if one exists for other settings.
	HasCrawl bool
	Mismatch error

	Visited     int
	Transformed int
	Processed   int
	Pending     int
	Downloaded  int
	Files       int
}

func (p *Pipeline) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		Domain:      p.domain,
		CrawlKey:    p.store.CrawlKey(),
		DownloadKey: p.store.DownloadKey(),
	}

	downloads, err := p.store.LoadDownloadOrEmpty(ctx)
	if err != nil {
		return nil, err
	}
	st.Downloaded = downloads.Len()

	state, err := p.store.LoadCrawl(ctx, p.cfg.Target.RootURL, p.cfg.Target.MaxDepth)
	switch {
	case err == nil:
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
		return st, nil
	case errors.Is(err, checkpoint.ErrConfigMismatch):
		st.Mismatch = err
		return st, nil
	default:
		return nil, err
	}

	st.HasCrawl = true
	st.Visited = state.VisitedLen()
	st.Transformed = state.LinksLen()
	st.Processed = state.ProcessedLen()
	st.Pending = len(state.Pending())

	for i := range state.Links() {
		if _, err := os.Stat(downloader.FileName(p.cfg.Downloader.ResponsesDir, i)); err == nil {
			st.Files++
		}
	}
	return st, nil
}
