package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	frontier "github.com/devraulu/sitecrawl/pkg"
	"github.com/devraulu/sitecrawl/pkg/config"
)

const (
	root   = "https://site.example/"
	prefix = "https://r.jina.ai/"
)

func sampleState() *frontier.CrawlState {
	s := frontier.NewCrawlState(root, 2)
	for i, u := range []string{root, root + "a", root + "b"} {
		s.MarkVisited(u, frontier.Transform(prefix, u), i+1)
	}
	s.MarkProcessed(root)
	return s
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	sqlite, err := OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	out := map[string]Backend{
		"file":   NewFileBackend(t.TempDir()),
		"sqlite": sqlite,
	}

	if dsn := os.Getenv("SITECRAWL_TEST_DSN"); dsn != "" {
		pg, err := OpenPostgres(dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = pg.Close() })
		out["postgres"] = pg
	}
	return out
}

func TestCrawlRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(b, "site.example", prefix)
			want := sampleState()

			require.NoError(t, store.SaveCrawl(ctx, want))

			got, err := store.LoadCrawl(ctx, root, 2)
			require.NoError(t, err)

			assert.Equal(t, want.Visited(), got.Visited())
			assert.Equal(t, want.Links(), got.Links())
			assert.Equal(t, want.Processed(), got.Processed())
			assert.Equal(t, want.Depths(), got.Depths())
			assert.Equal(t, root, got.RootURL)
			assert.Equal(t, 2, got.MaxDepth)

			// overwrite keeps only the newest snapshot
			want.MarkProcessed(root + "a")
			require.NoError(t, store.SaveCrawl(ctx, want))
			got, err = store.LoadCrawl(ctx, root, 2)
			require.NoError(t, err)
			assert.Equal(t, want.Processed(), got.Processed())
		})
	}
}

func TestDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(b, "site.example", prefix)

			_, err := store.LoadDownload(ctx)
			require.ErrorIs(t, err, ErrNoCheckpoint)

			empty, err := store.LoadDownloadOrEmpty(ctx)
			require.NoError(t, err)
			assert.Zero(t, empty.Len())

			state := frontier.NewDownloadState(prefix+root, prefix+root+"a")
			require.NoError(t, store.SaveDownload(ctx, state))

			got, err := store.LoadDownload(ctx)
			require.NoError(t, err)
			assert.Equal(t, state.Snapshot(), got.Snapshot())
		})
	}
}

func TestLoadCrawlMissing(t *testing.T) {
	store := NewStore(NewFileBackend(t.TempDir()), "site.example", prefix)
	_, err := store.LoadCrawl(context.Background(), root, 2)
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestLoadCrawlMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewFileBackend(t.TempDir()), "site.example", prefix)
	require.NoError(t, store.SaveCrawl(ctx, sampleState()))

	_, err := store.LoadCrawl(ctx, root, 3)
	require.ErrorIs(t, err, ErrConfigMismatch)
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "max_depth", mismatch.Field)
	assert.Equal(t, "2", mismatch.Stored)
	assert.Equal(t, "3", mismatch.Wanted)

	_, err = store.LoadCrawl(ctx, "https://site.example/other", 2)
	require.ErrorIs(t, err, ErrConfigMismatch)
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "initial_url", mismatch.Field)

	other := NewStore(store.backend, "site.example", "https://proxy.example/")
	_, err = other.LoadCrawl(ctx, root, 2)
	require.ErrorIs(t, err, ErrConfigMismatch)
}

func TestLoadCrawlCorrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := NewFileBackend(dir)
	store := NewStore(b, "site.example", prefix)

	tests := map[string]string{
		"truncated":        `{"visited": ["https://site.example/"], "links_ji`,
		"no initial url":   `{"visited": [], "links_jina": [], "processed_links": []}`,
		"processed orphan": `{"visited": [], "links_jina": [], "processed_links": ["https://site.example/x"], "initial_url": "https://site.example/", "max_depth": 2}`,
		"missing link":     `{"visited": ["https://site.example/"], "links_jina": [], "processed_links": [], "initial_url": "https://site.example/", "max_depth": 2}`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(b.Path(store.CrawlKey()), []byte(content), 0o644))
			_, err := store.LoadCrawl(ctx, root, 2)
			require.ErrorIs(t, err, ErrCheckpointCorrupt)
			assert.NotErrorIs(t, err, ErrNoCheckpoint)
		})
	}
}

func TestLoadDownloadCorrupt(t *testing.T) {
	b := NewFileBackend(t.TempDir())
	store := NewStore(b, "site.example", prefix)
	require.NoError(t, os.WriteFile(b.Path(store.DownloadKey()), []byte(`{"not": "a list"}`), 0o644))

	_, err := store.LoadDownload(context.Background())
	assert.ErrorIs(t, err, ErrCheckpointCorrupt)

	_, err = store.LoadDownloadOrEmpty(context.Background())
	assert.ErrorIs(t, err, ErrCheckpointCorrupt)
}

func TestLoadLegacyProgressFile(t *testing.T) {
	b := NewFileBackend(t.TempDir())
	store := NewStore(b, "www.eldiario.es", prefix)
	assert.Equal(t, "progress_www_eldiario_es.json", store.CrawlKey())
	assert.Equal(t, "processed_responses_www_eldiario_es.json", store.DownloadKey())

	legacy := `{"visited": ["https://www.eldiario.es/a/b"],
		"links_jina": ["https://r.jina.ai/https://www.eldiario.es/a/b"],
		"processed_links": [],
		"initial_url": "https://www.eldiario.es/"}`
	require.NoError(t, os.WriteFile(b.Path(store.CrawlKey()), []byte(legacy), 0o644))

	state, err := store.LoadCrawl(context.Background(), "https://www.eldiario.es/", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.eldiario.es/a/b"}, state.Pending())
	_, known := state.Depth("https://www.eldiario.es/a/b")
	assert.False(t, known)
	assert.Equal(t, 2, state.ResumeDepth("https://www.eldiario.es/a/b"))
}

func TestLoadLegacyProgressFileWithProcessedRoot(t *testing.T) {
	const site = "https://www.eldiario.es/"
	ctx := context.Background()

	tests := []struct {
		name        string
		file        string
		wantVisited []string
		wantPending []string
	}{
		{
			name:        "saved right after the root fetch",
			file:        `{"visited":[],"links_jina":[],"processed_links":["https://www.eldiario.es/"],"initial_url":"https://www.eldiario.es/","max_depth":2}`,
			wantVisited: []string{site},
		},
		{
			name: "root processed, children visited",
			file: `{"visited":["https://www.eldiario.es/a"],
				"links_jina":["https://r.jina.ai/https://www.eldiario.es/a"],
				"processed_links":["https://www.eldiario.es/"],
				"initial_url":"https://www.eldiario.es/"}`,
			wantVisited: []string{site + "a", site},
			wantPending: []string{site + "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewFileBackend(t.TempDir())
			store := NewStore(b, "www.eldiario.es", prefix)
			require.NoError(t, os.WriteFile(b.Path(store.CrawlKey()), []byte(tt.file), 0o644))

			state, err := store.LoadCrawl(ctx, site, 2)
			require.NoError(t, err)

			assert.Equal(t, tt.wantVisited, state.Visited())
			assert.Equal(t, tt.wantPending, state.Pending())
			assert.True(t, state.IsProcessed(site))

			// existing links keep their index, the root's link goes last
			links := state.Links()
			assert.Equal(t, prefix+site, links[len(links)-1])
			depth, ok := state.Depth(site)
			require.True(t, ok)
			assert.Equal(t, 1, depth)
		})
	}
}

func TestLoadProcessedButNeverVisitedIsCorrupt(t *testing.T) {
	b := NewFileBackend(t.TempDir())
	store := NewStore(b, "www.eldiario.es", prefix)
	file := `{"visited":[],"links_jina":[],
		"processed_links":["https://www.eldiario.es/","https://www.eldiario.es/other"],
		"initial_url":"https://www.eldiario.es/"}`
	require.NoError(t, os.WriteFile(b.Path(store.CrawlKey()), []byte(file), 0o644))

	_, err := store.LoadCrawl(context.Background(), "https://www.eldiario.es/", 2)
	require.ErrorIs(t, err, ErrCheckpointCorrupt)
	assert.Contains(t, err.Error(), "https://www.eldiario.es/other")
}

func TestWriteFileAtomicLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one")))
	require.NoError(t, WriteFileAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpenBackend(t *testing.T) {
	b, err := OpenBackend(config.CheckpointConfig{Backend: config.BackendFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)

	b, err = OpenBackend(config.CheckpointConfig{Backend: config.BackendSQLite, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteBackend{}, b)
	require.NoError(t, b.Close())

	_, err = OpenBackend(config.CheckpointConfig{Backend: "redis"})
	assert.ErrorIs(t, err, config.ErrUnknownBackend)
}

func TestPostgresBackendUpsert(t *testing.T) {
	dsn := os.Getenv("SITECRAWL_TEST_DSN")
	if dsn == "" {
		t.Skip("SITECRAWL_TEST_DSN not set")
	}
	ctx := context.Background()

	b, err := OpenPostgres(dsn)
	require.NoError(t, err)
	defer b.Close()

	key := fmt.Sprintf("test_%d.json", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = b.db.ExecContext(context.Background(), `DELETE FROM checkpoints WHERE key = $1`, key)
	})

	_, err = b.Get(ctx, key)
	require.ErrorIs(t, err, ErrNoCheckpoint)

	require.NoError(t, b.Put(ctx, key, []byte(`["one"]`)))
	require.NoError(t, b.Put(ctx, key, []byte(`["one","two"]`)))

	data, err := b.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `["one","two"]`, string(data))

	var rows int
	require.NoError(t, b.db.QueryRowContext(ctx, `SELECT count(*) FROM checkpoints WHERE key = $1`, key).Scan(&rows))
	assert.Equal(t, 1, rows)
}
