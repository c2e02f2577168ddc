package crawler

import (
	"context"
	"time"

	frontier "github.com/devraulu/sitecrawl/pkg"
)

// Checkpointer persists crawl snapshots. A failing save stops the crawl.
type Checkpointer interface {
	SaveCrawl(ctx context.Context, state *frontier.CrawlState) error
}

type CrawlStats struct {
	StartTime      time.Time
	PagesProcessed int
	PagesErrored   int
	PagesSkipped   int
	RateLimited    int
	Discovered     int
	Checkpoints    int
}

func (s *CrawlStats) Elapsed() time.Duration {
	return time.Since(s.StartTime)
}

func (s *CrawlStats) PagesPerSecond() float64 {
	elapsed := s.Elapsed().Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(s.PagesProcessed) / elapsed
}

// frame is one page whose outbound links are being walked. The crawler
// keeps a stack of frames instead of recursing, so the order in which
// links are discovered is the same as a recursive depth-first walk.
type frame struct {
	depth int
	links []string
	next  int
}
