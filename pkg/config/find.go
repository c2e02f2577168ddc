package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// DefaultConfigFile is looked up in the working directory.
const DefaultConfigFile = "sitecrawl.toml"

// FindConfigFile returns the first existing configuration file, looking at
// explicit, then ./sitecrawl.toml, then $XDG_CONFIG_HOME/sitecrawl/config.toml.
// It returns "" when none exists.
func FindConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	if path, err := xdg.SearchConfigFile(filepath.Join("sitecrawl", "config.toml")); err == nil {
		return path
	}

	return ""
}

// Resolve loads the configuration file found by FindConfigFile, or the
// defaults when there is none.
func Resolve(explicit string) (*Config, string, error) {
	path := FindConfigFile(explicit)
	if path == "" {
		if explicit != "" {
			return nil, "", &os.PathError{Op: "open", Path: explicit, Err: os.ErrNotExist}
		}
		return Default(), "", nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
