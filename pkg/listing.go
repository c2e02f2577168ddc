package frontier

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNoLinks = errors.New("no links in listing")
)

// WriteListing writes links to path, one per line, unless the file already
// exists. The listing is a human readable record of the originally
// discovered set, not a checkpoint. It reports whether the file was written.
func WriteListing(path string, links []string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		slog.Debug("link listing already present", slog.String("path", path))
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, err
		}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return false, err
	}

	w := bufio.NewWriter(file)
	for _, link := range links {
		if _, err := fmt.Fprintln(w, link); err != nil {
			file.Close()
			return false, err
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return false, err
	}
	if err := file.Close(); err != nil {
		return false, err
	}

	slog.Info("wrote link listing", slog.String("path", path), slog.Int("count", len(links)))
	return true, nil
}

// LoadListing reads a listing written by WriteListing, skipping blank lines.
func LoadListing(path string) ([]string, error) {
	slog.Info("loading link listing", "path", path)
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var links []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		link := strings.TrimSpace(scanner.Text())
		if link == "" {
			continue
		}
		links = append(links, link)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(links) == 0 {
		return nil, ErrNoLinks
	}

	slog.Info("loaded link listing", "count", len(links))
	return links, nil
}
