package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	frontier "github.com/devraulu/sitecrawl/pkg"
	"github.com/devraulu/sitecrawl/pkg/process"
)

// crawlRecord is the on-disk crawl checkpoint. Field names match the
// progress files of earlier crawls so those can still be resumed; depths
// is optional for that reason.
type crawlRecord struct {
	Visited        []string       `json:"visited"`
	LinksJina      []string       `json:"links_jina"`
	ProcessedLinks []string       `json:"processed_links"`
	InitialURL     string         `json:"initial_url"`
	MaxDepth       *int           `json:"max_depth,omitempty"`
	Depths         map[string]int `json:"depths,omitempty"`
}

// Store loads and saves crawl and download checkpoints for one target
// domain. It never mutates the states it is given.
type Store struct {
	backend     Backend
	slug        string
	proxyPrefix string
}

func NewStore(backend Backend, domain, proxyPrefix string) *Store {
	return &Store{
		backend:     backend,
		slug:        process.DomainSlug(domain),
		proxyPrefix: proxyPrefix,
	}
}

func (s *Store) CrawlKey() string {
	return "progress_" + s.slug + ".json"
}

func (s *Store) DownloadKey() string {
	return "processed_responses_" + s.slug + ".json"
}

// LoadCrawl returns the saved crawl state for rootURL and maxDepth.
// It fails with ErrNoCheckpoint when there is none, with a *MismatchError
// when the checkpoint was written for other parameters, and with
// ErrCheckpointCorrupt when it cannot be decoded or breaks the state
// invariants.
func (s *Store) LoadCrawl(ctx context.Context, rootURL string, maxDepth int) (*frontier.CrawlState, error) {
	key := s.CrawlKey()
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var rec crawlRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &corruptError{key: key, reason: "decode", err: err}
	}
	if rec.InitialURL == "" {
		return nil, &corruptError{key: key, reason: "missing initial_url"}
	}

	if rec.InitialURL != rootURL {
		return nil, &MismatchError{Field: "initial_url", Stored: rec.InitialURL, Wanted: rootURL}
	}
	if rec.MaxDepth != nil && *rec.MaxDepth != maxDepth {
		return nil, &MismatchError{Field: "max_depth", Stored: strconv.Itoa(*rec.MaxDepth), Wanted: strconv.Itoa(maxDepth)}
	}

	state := frontier.Restore(rootURL, maxDepth, rec.Visited, rec.LinksJina, rec.ProcessedLinks, rec.Depths)

	// Older progress files record the fetched root as processed without
	// ever listing it as visited. Appending keeps the download index of
	// every link already in the file.
	if state.IsProcessed(rootURL) && !state.IsVisited(rootURL) {
		state.MarkVisited(rootURL, frontier.Transform(s.proxyPrefix, rootURL), 1)
	}

	if offending, ok := state.Check(); !ok {
		return nil, &corruptError{key: key, reason: "inconsistent state at " + offending}
	}
	if !state.UsesPrefix(s.proxyPrefix) {
		return nil, &MismatchError{Field: "proxy_prefix", Stored: "other", Wanted: s.proxyPrefix}
	}

	slog.Debug("loaded crawl checkpoint",
		slog.String("key", key),
		slog.Int("visited", state.VisitedLen()),
		slog.Int("processed", state.ProcessedLen()),
	)
	return state, nil
}

// SaveCrawl writes a complete snapshot of state.
func (s *Store) SaveCrawl(ctx context.Context, state *frontier.CrawlState) error {
	maxDepth := state.MaxDepth
	rec := crawlRecord{
		Visited:        nonNil(state.Visited()),
		LinksJina:      nonNil(state.Links()),
		ProcessedLinks: nonNil(state.Processed()),
		InitialURL:     state.RootURL,
		MaxDepth:       &maxDepth,
		Depths:         state.Depths(),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, s.CrawlKey(), data); err != nil {
		return fmt.Errorf("save crawl checkpoint: %w", err)
	}
	return nil
}

// LoadDownload returns the saved download state, or ErrNoCheckpoint.
func (s *Store) LoadDownload(ctx context.Context) (*frontier.DownloadState, error) {
	key := s.DownloadKey()
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var links []string
	if err := json.Unmarshal(data, &links); err != nil {
		return nil, &corruptError{key: key, reason: "decode", err: err}
	}

	return frontier.NewDownloadState(links...), nil
}

func (s *Store) SaveDownload(ctx context.Context, state *frontier.DownloadState) error {
	data, err := json.Marshal(nonNil(state.Snapshot()))
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, s.DownloadKey(), data); err != nil {
		return fmt.Errorf("save download checkpoint: %w", err)
	}
	return nil
}

// LoadDownloadOrEmpty is LoadDownload with a missing checkpoint mapped to an
// empty state.
func (s *Store) LoadDownloadOrEmpty(ctx context.Context) (*frontier.DownloadState, error) {
	state, err := s.LoadDownload(ctx)
	if errors.Is(err, ErrNoCheckpoint) {
		return frontier.NewDownloadState(), nil
	}
	return state, err
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
