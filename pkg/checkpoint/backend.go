package checkpoint

import (
	"context"
	"fmt"

	"github.com/devraulu/sitecrawl/pkg/config"
)

// Backend stores opaque checkpoint snapshots by key. Put replaces the whole
// value atomically: a reader sees either the previous snapshot or the new
// one, never a partial write.
type Backend interface {
	// Get returns ErrNoCheckpoint when nothing is stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

// OpenBackend builds the backend selected in the configuration.
func OpenBackend(cfg config.CheckpointConfig) (Backend, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		return NewFileBackend(cfg.Dir), nil
	case config.BackendSQLite:
		return OpenSQLite(cfg.Dir)
	case config.BackendPostgres:
		return OpenPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
	}
}
