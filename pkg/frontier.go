package frontier

import (
	"net/url"
	"strings"
	"sync"
)

// CrawlState is the resumable record of a crawl: which URLs were discovered
// (visited), which were fetched and expanded (processed), and the proxy link
// derived from every visited URL. Visited URLs and their transformed links
// are kept in discovery order; a link's position is its download index.
//
// A CrawlState is owned by one component at a time and is not safe for
// concurrent mutation.
type CrawlState struct {
	RootURL  string
	MaxDepth int

	visited   []string
	links     []string
	processed []string

	visitedSet   map[string]struct{}
	linkSet      map[string]struct{}
	processedSet map[string]struct{}
	depths       map[string]int
}

func NewCrawlState(rootURL string, maxDepth int) *CrawlState {
	return &CrawlState{
		RootURL:      rootURL,
		MaxDepth:     maxDepth,
		visitedSet:   make(map[string]struct{}),
		linkSet:      make(map[string]struct{}),
		processedSet: make(map[string]struct{}),
		depths:       make(map[string]int),
	}
}

// Transform builds the proxy link for u.
func Transform(prefix, u string) string {
	return prefix + u
}

// MarkVisited records u as discovered at depth, together with its
// transformed link. It reports false when u was already visited.
func (s *CrawlState) MarkVisited(u, transformed string, depth int) bool {
	if _, ok := s.visitedSet[u]; ok {
		return false
	}
	s.visitedSet[u] = struct{}{}
	s.visited = append(s.visited, u)
	s.depths[u] = depth

	if _, ok := s.linkSet[transformed]; !ok {
		s.linkSet[transformed] = struct{}{}
		s.links = append(s.links, transformed)
	}
	return true
}

// MarkProcessed records that u was fetched and its links expanded. URLs
// that were never visited are ignored so that processed stays a subset of
// visited.
func (s *CrawlState) MarkProcessed(u string) bool {
	if _, ok := s.visitedSet[u]; !ok {
		return false
	}
	if _, ok := s.processedSet[u]; ok {
		return false
	}
	s.processedSet[u] = struct{}{}
	s.processed = append(s.processed, u)
	return true
}

func (s *CrawlState) IsVisited(u string) bool {
	_, ok := s.visitedSet[u]
	return ok
}

func (s *CrawlState) IsProcessed(u string) bool {
	_, ok := s.processedSet[u]
	return ok
}

// Depth returns the recorded discovery depth of u.
func (s *CrawlState) Depth(u string) (int, bool) {
	d, ok := s.depths[u]
	return d, ok
}

// ResumeDepth is the depth a pending URL is crawled at on resume: the
// recorded discovery depth, or an estimate from the URL path for
// checkpoints written without depths.
func (s *CrawlState) ResumeDepth(u string) int {
	if d, ok := s.depths[u]; ok {
		return d
	}
	return ApproximateDepth(u, s.MaxDepth)
}

// ApproximateDepth estimates a crawl depth from the number of path
// segments: min(segments+1, maxDepth). It can be off in both directions.
func ApproximateDepth(u string, maxDepth int) int {
	parsed, err := url.Parse(u)
	if err != nil {
		return maxDepth
	}
	segments := len(strings.Split(strings.Trim(parsed.Path, "/"), "/"))
	return min(segments+1, maxDepth)
}

// Pending returns visited URLs that were never processed, in discovery order.
func (s *CrawlState) Pending() []string {
	var pending []string
	for _, u := range s.visited {
		if _, ok := s.processedSet[u]; !ok {
			pending = append(pending, u)
		}
	}
	return pending
}

func (s *CrawlState) Visited() []string {
	return append([]string(nil), s.visited...)
}

// Links returns the transformed links in index order.
func (s *CrawlState) Links() []string {
	return append([]string(nil), s.links...)
}

func (s *CrawlState) Processed() []string {
	return append([]string(nil), s.processed...)
}

// Depths returns a copy of the recorded discovery depths.
func (s *CrawlState) Depths() map[string]int {
	out := make(map[string]int, len(s.depths))
	for k, v := range s.depths {
		out[k] = v
	}
	return out
}

func (s *CrawlState) Empty() bool {
	return len(s.visited) == 0
}

func (s *CrawlState) VisitedLen() int {
	return len(s.visited)
}

func (s *CrawlState) ProcessedLen() int {
	return len(s.processed)
}

func (s *CrawlState) LinksLen() int {
	return len(s.links)
}

// Restore rebuilds a state from its persisted lists. URLs missing from
// depths keep no recorded depth. Duplicates are dropped.
func Restore(rootURL string, maxDepth int, visited, links, processed []string, depths map[string]int) *CrawlState {
	s := NewCrawlState(rootURL, maxDepth)
	for _, u := range visited {
		if _, ok := s.visitedSet[u]; ok {
			continue
		}
		s.visitedSet[u] = struct{}{}
		s.visited = append(s.visited, u)
		if d, ok := depths[u]; ok {
			s.depths[u] = d
		}
	}
	for _, l := range links {
		if _, ok := s.linkSet[l]; ok {
			continue
		}
		s.linkSet[l] = struct{}{}
		s.links = append(s.links, l)
	}
	for _, u := range processed {
		if _, ok := s.processedSet[u]; ok {
			continue
		}
		s.processedSet[u] = struct{}{}
		s.processed = append(s.processed, u)
	}
	return s
}

// Check verifies that every processed URL is visited and that there is one
// transformed link per visited URL. It returns the first offending value,
// or "" when the state is consistent.
func (s *CrawlState) Check() (string, bool) {
	for _, u := range s.processed {
		if _, ok := s.visitedSet[u]; !ok {
			return u, false
		}
	}
	if len(s.links) != len(s.visited) {
		return "links/visited length mismatch", false
	}
	return "", true
}

// UsesPrefix reports whether every visited URL has its transformed link
// under prefix.
func (s *CrawlState) UsesPrefix(prefix string) bool {
	for _, u := range s.visited {
		if _, ok := s.linkSet[Transform(prefix, u)]; !ok {
			return false
		}
	}
	return true
}

// DownloadState tracks transformed links whose content file is written.
// It is safe for concurrent use by download workers.
type DownloadState struct {
	mu        sync.Mutex
	processed map[string]struct{}
	order     []string
}

func NewDownloadState(processed ...string) *DownloadState {
	s := &DownloadState{processed: make(map[string]struct{})}
	for _, l := range processed {
		s.Add(l)
	}
	return s
}

func (s *DownloadState) Add(link string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[link]; ok {
		return false
	}
	s.processed[link] = struct{}{}
	s.order = append(s.order, link)
	return true
}

func (s *DownloadState) Has(link string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.processed[link]
	return ok
}

func (s *DownloadState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Snapshot returns the processed links in the order they were added.
func (s *DownloadState) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}
